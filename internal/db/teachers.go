package db

import (
	"context"
	"fmt"

	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

func (s *Store) GetTeacherByID(ctx context.Context, id int64) (model.Teacher, error) {
	var teacher model.Teacher
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, is_alouaoui_teacher, created_at
		FROM teachers
		WHERE id = $1
	`, id)
	err := row.Scan(&teacher.ID, &teacher.Name, &teacher.IsAlouaouiTeacher, &teacher.CreatedAt)
	return teacher, notFound(err)
}

func (s *Store) ListPublishedChapterIDs(ctx context.Context, teacherID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id
		FROM chapters
		WHERE teacher_id = $1 AND published
		ORDER BY id
	`, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list published chapters: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *Store) ListAllPublishedChapterIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id
		FROM chapters
		WHERE published
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list all published chapters: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}
