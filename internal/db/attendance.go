package db

import (
	"context"
	"fmt"
	"time"

	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

const attendanceColumns = `id, session_id, account_id, status, recorded_by, recorded_at, note`

func scanAttendance(row interface{ Scan(...any) error }) (model.AttendanceRecord, error) {
	var record model.AttendanceRecord
	err := row.Scan(
		&record.ID,
		&record.SessionID,
		&record.AccountID,
		&record.Status,
		&record.RecordedBy,
		&record.RecordedAt,
		&record.Note,
	)
	return record, notFound(err)
}

func (s *Store) GetAttendance(ctx context.Context, sessionID string, accountID int64) (model.AttendanceRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance_records
		WHERE session_id = $1 AND account_id = $2
	`, sessionID, accountID)
	return scanAttendance(row)
}

// CreateAttendance inserts one presence event. A unique violation on
// (session_id, account_id) is returned unwrapped so callers can map the race
// to their idempotent path.
func (s *Store) CreateAttendance(ctx context.Context, record model.AttendanceRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance_records (id, session_id, account_id, status, recorded_by, recorded_at, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, record.ID, record.SessionID, record.AccountID, record.Status, record.RecordedBy, record.RecordedAt, record.Note)
	if err != nil && !IsUniqueViolation(err) {
		return fmt.Errorf("create attendance: %w", err)
	}
	return err
}

// SessionAttendee is one attendance row joined with the student identity,
// for operator-facing session listings.
type SessionAttendee struct {
	Record    model.AttendanceRecord
	FirstName string
	LastName  string
	QRToken   string
}

func (s *Store) ListSessionAttendance(ctx context.Context, sessionID string) ([]SessionAttendee, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ar.id, ar.session_id, ar.account_id, ar.status, ar.recorded_by, ar.recorded_at, ar.note,
		       a.first_name, a.last_name, a.qr_token
		FROM attendance_records ar
		JOIN accounts a ON a.id = ar.account_id
		WHERE ar.session_id = $1
		ORDER BY ar.recorded_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	defer rows.Close()

	var attendees []SessionAttendee
	for rows.Next() {
		var att SessionAttendee
		err := rows.Scan(
			&att.Record.ID,
			&att.Record.SessionID,
			&att.Record.AccountID,
			&att.Record.Status,
			&att.Record.RecordedBy,
			&att.Record.RecordedAt,
			&att.Record.Note,
			&att.FirstName,
			&att.LastName,
			&att.QRToken,
		)
		if err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		attendees = append(attendees, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendees: %w", err)
	}
	return attendees, nil
}

// TeacherDayStat is the per-teacher per-day presence count over a range.
type TeacherDayStat struct {
	TeacherID    int64
	TeacherName  string
	Day          time.Time
	PresentCount int64
}

func (s *Store) AttendanceStats(ctx context.Context, from, to time.Time) ([]TeacherDayStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.name, ss.session_date, COUNT(ar.id)
		FROM scan_sessions ss
		JOIN teachers t ON t.id = ss.teacher_id
		LEFT JOIN attendance_records ar
		       ON ar.session_id = ss.id AND ar.status = 'present'
		WHERE ss.session_date >= $1 AND ss.session_date <= $2
		GROUP BY t.id, t.name, ss.session_date
		ORDER BY t.id, ss.session_date
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("attendance stats: %w", err)
	}
	defer rows.Close()

	var stats []TeacherDayStat
	for rows.Next() {
		var stat TeacherDayStat
		if err := rows.Scan(&stat.TeacherID, &stat.TeacherName, &stat.Day, &stat.PresentCount); err != nil {
			return nil, fmt.Errorf("scan stat: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

// StudentHistoryRow is one attendance event in a student's paginated history.
type StudentHistoryRow struct {
	Record      model.AttendanceRecord
	TeacherID   int64
	TeacherName string
	SessionDate time.Time
}

func (s *Store) StudentHistory(ctx context.Context, accountID int64, from, to time.Time, limit, offset int32) ([]StudentHistoryRow, int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM attendance_records ar
		JOIN scan_sessions ss ON ss.id = ar.session_id
		WHERE ar.account_id = $1 AND ss.session_date >= $2 AND ss.session_date <= $3
	`, accountID, from, to).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count student history: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT ar.id, ar.session_id, ar.account_id, ar.status, ar.recorded_by, ar.recorded_at, ar.note,
		       t.id, t.name, ss.session_date
		FROM attendance_records ar
		JOIN scan_sessions ss ON ss.id = ar.session_id
		JOIN teachers t ON t.id = ss.teacher_id
		WHERE ar.account_id = $1 AND ss.session_date >= $2 AND ss.session_date <= $3
		ORDER BY ar.recorded_at DESC
		LIMIT $4 OFFSET $5
	`, accountID, from, to, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("student history: %w", err)
	}
	defer rows.Close()

	var history []StudentHistoryRow
	for rows.Next() {
		var row StudentHistoryRow
		err := rows.Scan(
			&row.Record.ID,
			&row.Record.SessionID,
			&row.Record.AccountID,
			&row.Record.Status,
			&row.Record.RecordedBy,
			&row.Record.RecordedAt,
			&row.Record.Note,
			&row.TeacherID,
			&row.TeacherName,
			&row.SessionDate,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan history row: %w", err)
		}
		history = append(history, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate history: %w", err)
	}
	return history, total, nil
}
