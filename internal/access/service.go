package access

import (
	"context"
	"errors"
	"time"

	"github.com/inodev-web/alouaoui-school-sub001/internal/db"
	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

var (
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")
	// ErrCashOnly rejects online payments toward in-person-only teachers.
	ErrCashOnly = errors.New("non-alouaoui teachers accept cash payment only")
)

// Store is the slice of persistence the engine needs.
type Store interface {
	GetEffectiveSubscription(ctx context.Context, accountID, teacherID int64, now time.Time) (model.Subscription, error)
	ListEffectiveSubscriptions(ctx context.Context, accountID int64, now time.Time) ([]model.Subscription, error)
	UpsertSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error)
	ExpireOverdueSubscriptions(ctx context.Context, now time.Time) (int64, error)
	GetTeacherByID(ctx context.Context, id int64) (model.Teacher, error)
	ListPublishedChapterIDs(ctx context.Context, teacherID int64) ([]int64, error)
	ListAllPublishedChapterIDs(ctx context.Context) ([]int64, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// DecideFor loads the effective subscription for (account, teacher) and
// applies the policy table. Missing records yield the all-false decision.
func (s *Service) DecideFor(ctx context.Context, account model.Account, teacher model.Teacher) (Capabilities, error) {
	now := s.now().UTC()
	if account.Role == model.RoleAdmin {
		return Decide(account, teacher, nil, now), nil
	}
	sub, err := s.store.GetEffectiveSubscription(ctx, account.ID, teacher.ID, now)
	if errors.Is(err, db.ErrNotFound) {
		return Decide(account, teacher, nil, now), nil
	}
	if err != nil {
		return Capabilities{}, err
	}
	return Decide(account, teacher, &sub, now), nil
}

// AccessibleChapters unions published chapters over every effective
// Alouaoui-teacher entitlement carrying videos access. Admins see everything.
func (s *Service) AccessibleChapters(ctx context.Context, account model.Account) ([]int64, error) {
	if account.Role == model.RoleAdmin {
		return s.store.ListAllPublishedChapterIDs(ctx)
	}
	subs, err := s.store.ListEffectiveSubscriptions(ctx, account.ID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{})
	var chapters []int64
	for _, sub := range subs {
		if !sub.VideosAccess {
			continue
		}
		teacher, err := s.store.GetTeacherByID(ctx, sub.TeacherID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !teacher.IsAlouaouiTeacher {
			continue
		}
		ids, err := s.store.ListPublishedChapterIDs(ctx, teacher.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			chapters = append(chapters, id)
		}
	}
	return chapters, nil
}

// ProcessPayment applies a confirmed payment as an idempotent subscription
// upsert covering the calendar month of the payment. Alouaoui teachers grant
// all three capabilities for either method; non-Alouaoui teachers accept cash
// only and grant physical entry alone.
func (s *Service) ProcessPayment(ctx context.Context, payment model.Payment) (model.Subscription, error) {
	if payment.Status != model.PaymentConfirmed {
		return model.Subscription{}, ErrPaymentNotConfirmed
	}
	teacher, err := s.store.GetTeacherByID(ctx, payment.TeacherID)
	if err != nil {
		return model.Subscription{}, err
	}

	sub := model.Subscription{
		AccountID: payment.AccountID,
		TeacherID: teacher.ID,
		Status:    model.SubscriptionActive,
	}
	sub.StartsAt, sub.EndsAt = monthWindow(payment.PaidAt)

	if teacher.IsAlouaouiTeacher {
		sub.VideosAccess = true
		sub.LivesAccess = true
		sub.SchoolEntryAccess = true
	} else {
		if payment.Method != model.PaymentCash {
			return model.Subscription{}, ErrCashOnly
		}
		sub.SchoolEntryAccess = true
	}
	return s.store.UpsertSubscription(ctx, sub)
}

// ExpireOverdue soft-retires active subscriptions whose window has ended.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	return s.store.ExpireOverdueSubscriptions(ctx, s.now().UTC())
}

// monthWindow returns the half-open UTC calendar month containing t.
func monthWindow(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
