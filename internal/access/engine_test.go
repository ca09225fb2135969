package access

import (
	"testing"
	"time"

	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

func TestDecideAdminBypassesSubscriptions(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	caps := Decide(model.Account{Role: model.RoleAdmin}, model.Teacher{}, nil, now)
	if !caps.Videos || !caps.Lives || !caps.Physical {
		t.Fatalf("admin should hold every capability, got %+v", caps)
	}
}

func TestDecidePolicyTable(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	active := func(videos, lives, entry bool) *model.Subscription {
		return &model.Subscription{
			Status:            model.SubscriptionActive,
			StartsAt:          now.AddDate(0, 0, -5),
			EndsAt:            now.AddDate(0, 0, 5),
			VideosAccess:      videos,
			LivesAccess:       lives,
			SchoolEntryAccess: entry,
		}
	}

	cases := []struct {
		name     string
		teacher  model.Teacher
		sub      *model.Subscription
		expected Capabilities
	}{
		{
			name:     "no subscription denies everything",
			teacher:  model.Teacher{IsAlouaouiTeacher: true},
			sub:      nil,
			expected: Capabilities{},
		},
		{
			name:    "expired subscription denies everything",
			teacher: model.Teacher{IsAlouaouiTeacher: true},
			sub: &model.Subscription{
				Status:            model.SubscriptionActive,
				StartsAt:          now.AddDate(0, -2, 0),
				EndsAt:            now.AddDate(0, -1, 0),
				VideosAccess:      true,
				SchoolEntryAccess: true,
			},
			expected: Capabilities{},
		},
		{
			name:    "inactive status denies despite valid window",
			teacher: model.Teacher{IsAlouaouiTeacher: true},
			sub: &model.Subscription{
				Status:       model.SubscriptionExpired,
				StartsAt:     now.AddDate(0, 0, -5),
				EndsAt:       now.AddDate(0, 0, 5),
				VideosAccess: true,
			},
			expected: Capabilities{},
		},
		{
			name:     "alouaoui teacher passes flags through",
			teacher:  model.Teacher{IsAlouaouiTeacher: true},
			sub:      active(true, false, true),
			expected: Capabilities{Videos: true, Physical: true},
		},
		{
			name:     "non-alouaoui teacher never grants digital access",
			teacher:  model.Teacher{IsAlouaouiTeacher: false},
			sub:      active(true, true, true),
			expected: Capabilities{Physical: true},
		},
		{
			name:     "non-alouaoui teacher without entry flag denies physical too",
			teacher:  model.Teacher{IsAlouaouiTeacher: false},
			sub:      active(true, true, false),
			expected: Capabilities{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			caps := Decide(model.Account{Role: model.RoleStudent}, tc.teacher, tc.sub, now)
			if caps != tc.expected {
				t.Fatalf("expected %+v, got %+v", tc.expected, caps)
			}
		})
	}
}

func TestEffectiveWindowIsHalfOpen(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	sub := model.Subscription{Status: model.SubscriptionActive, StartsAt: start, EndsAt: end}

	if !sub.EffectiveAt(start) {
		t.Fatal("subscription should be effective at the window start")
	}
	if sub.EffectiveAt(end) {
		t.Fatal("subscription should not be effective at the window end")
	}
	if !sub.EffectiveAt(end.Add(-time.Second)) {
		t.Fatal("subscription should be effective one second before the end")
	}
}
