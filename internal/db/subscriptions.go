package db

import (
	"context"
	"fmt"
	"time"

	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

const subscriptionColumns = `id, account_id, teacher_id, starts_at, ends_at, status,
	videos_access, lives_access, school_entry_access, created_at, updated_at`

func scanSubscription(row interface{ Scan(...any) error }) (model.Subscription, error) {
	var sub model.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.AccountID,
		&sub.TeacherID,
		&sub.StartsAt,
		&sub.EndsAt,
		&sub.Status,
		&sub.VideosAccess,
		&sub.LivesAccess,
		&sub.SchoolEntryAccess,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	return sub, notFound(err)
}

// GetEffectiveSubscription returns the single active subscription covering now
// for (account, teacher). Effectiveness is evaluated on every read.
func (s *Store) GetEffectiveSubscription(ctx context.Context, accountID, teacherID int64, now time.Time) (model.Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE account_id = $1 AND teacher_id = $2
		  AND status = 'active'
		  AND starts_at <= $3 AND $3 < ends_at
		ORDER BY starts_at DESC
		LIMIT 1
	`, accountID, teacherID, now)
	return scanSubscription(row)
}

func (s *Store) ListEffectiveSubscriptions(ctx context.Context, accountID int64, now time.Time) ([]model.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE account_id = $1
		  AND status = 'active'
		  AND starts_at <= $2 AND $2 < ends_at
		ORDER BY teacher_id
	`, accountID, now)
	if err != nil {
		return nil, fmt.Errorf("list effective subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// UpsertSubscription creates or refreshes the subscription keyed by
// (account, teacher, starts_at). Payment processing is idempotent through
// this key: replaying a confirmed payment rewrites the same row.
func (s *Store) UpsertSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions
			(account_id, teacher_id, starts_at, ends_at, status,
			 videos_access, lives_access, school_entry_access)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id, teacher_id, starts_at) DO UPDATE SET
			ends_at = EXCLUDED.ends_at,
			status = EXCLUDED.status,
			videos_access = EXCLUDED.videos_access,
			lives_access = EXCLUDED.lives_access,
			school_entry_access = EXCLUDED.school_entry_access,
			updated_at = now()
		RETURNING `+subscriptionColumns+`
	`, sub.AccountID, sub.TeacherID, sub.StartsAt, sub.EndsAt, sub.Status,
		sub.VideosAccess, sub.LivesAccess, sub.SchoolEntryAccess)
	saved, err := scanSubscription(row)
	if err != nil {
		return model.Subscription{}, fmt.Errorf("upsert subscription: %w", err)
	}
	return saved, nil
}

// ExpireOverdueSubscriptions soft-retires active rows whose window has passed.
func (s *Store) ExpireOverdueSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'expired', updated_at = now()
		WHERE status = 'active' AND ends_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}
	return tag.RowsAffected(), nil
}
