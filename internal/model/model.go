package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

type Account struct {
	ID           int64
	UUID         uuid.UUID
	Role         Role
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	QRToken      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Teacher struct {
	ID                int64
	Name              string
	IsAlouaouiTeacher bool
	CreatedAt         time.Time
}

type Chapter struct {
	ID        int64
	TeacherID int64
	Title     string
	Published bool
}

type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Subscription grants an account capabilities for one teacher over the
// half-open interval [StartsAt, EndsAt).
type Subscription struct {
	ID                int64
	AccountID         int64
	TeacherID         int64
	StartsAt          time.Time
	EndsAt            time.Time
	Status            SubscriptionStatus
	VideosAccess      bool
	LivesAccess       bool
	SchoolEntryAccess bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EffectiveAt is re-derived on every read; effectiveness is never cached.
func (s Subscription) EffectiveAt(now time.Time) bool {
	if s.Status != SubscriptionActive {
		return false
	}
	return !now.Before(s.StartsAt) && now.Before(s.EndsAt)
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentOnline PaymentMethod = "online"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

type Payment struct {
	AccountID int64
	TeacherID int64
	Method    PaymentMethod
	Status    PaymentStatus
	PaidAt    time.Time
}

// ScanSession is the unique (teacher, calendar date) attendance window,
// created lazily on the first scan of that day.
type ScanSession struct {
	ID          uuid.UUID
	TeacherID   int64
	SessionDate time.Time
	StartsAt    time.Time
	EndsAt      time.Time
	CreatedBy   int64
	CreatedAt   time.Time
}

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
)

type AttendanceRecord struct {
	ID         uuid.UUID
	SessionID  uuid.UUID
	AccountID  int64
	Status     AttendanceStatus
	RecordedBy int64
	RecordedAt time.Time
	Note       *string
}

type Device struct {
	ID               uuid.UUID
	AccountID        int64
	DeviceIdentifier string
	Active           bool
	BoundAt          time.Time
	RevokedAt        *time.Time
}

type RefreshSession struct {
	ID        uuid.UUID
	AccountID int64
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

type DeviceEvent string

const (
	DeviceEventBound    DeviceEvent = "bound"
	DeviceEventConflict DeviceEvent = "conflict"
	DeviceEventTakeover DeviceEvent = "takeover"
)
