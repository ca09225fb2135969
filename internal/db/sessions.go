package db

import (
	"context"
	"fmt"
	"time"

	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

const sessionColumns = `id, teacher_id, session_date, starts_at, ends_at, created_by, created_at`

func scanSession(row interface{ Scan(...any) error }) (model.ScanSession, error) {
	var session model.ScanSession
	err := row.Scan(
		&session.ID,
		&session.TeacherID,
		&session.SessionDate,
		&session.StartsAt,
		&session.EndsAt,
		&session.CreatedBy,
		&session.CreatedAt,
	)
	return session, notFound(err)
}

func (s *Store) GetSessionByID(ctx context.Context, id string) (model.ScanSession, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM scan_sessions
		WHERE id = $1
	`, id)
	return scanSession(row)
}

func (s *Store) GetSessionByTeacherAndDate(ctx context.Context, teacherID int64, date time.Time) (model.ScanSession, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM scan_sessions
		WHERE teacher_id = $1 AND session_date = $2
	`, teacherID, date)
	return scanSession(row)
}

func (s *Store) CreateSession(ctx context.Context, session model.ScanSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_sessions (id, teacher_id, session_date, starts_at, ends_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, session.ID, session.TeacherID, session.SessionDate, session.StartsAt, session.EndsAt, session.CreatedBy)
	if err != nil && !IsUniqueViolation(err) {
		return fmt.Errorf("create session: %w", err)
	}
	return err
}
