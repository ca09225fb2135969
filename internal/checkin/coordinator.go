package checkin

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inodev-web/alouaoui-school-sub001/internal/access"
	"github.com/inodev-web/alouaoui-school-sub001/internal/db"
	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

// qrIDPrefix is the structured token form encoding the numeric account id
// directly, avoiding an opaque-token lookup.
const qrIDPrefix = "StudentID-"

const (
	defaultSessionStartHour = 8
	defaultSessionDuration  = 12 * time.Hour
)

// Store is the persistence slice the coordinator needs. Uniqueness on
// (teacher, date) and (session, account) is enforced by the storage layer;
// the coordinator only maps violations back to its idempotent outcomes.
type Store interface {
	ResolveAccount(ctx context.Context, ref model.AccountRef) (model.Account, error)
	GetTeacherByID(ctx context.Context, id int64) (model.Teacher, error)
	GetSessionByID(ctx context.Context, id string) (model.ScanSession, error)
	GetSessionByTeacherAndDate(ctx context.Context, teacherID int64, date time.Time) (model.ScanSession, error)
	CreateSession(ctx context.Context, session model.ScanSession) error
	GetAttendance(ctx context.Context, sessionID string, accountID int64) (model.AttendanceRecord, error)
	CreateAttendance(ctx context.Context, record model.AttendanceRecord) error
	ListSessionAttendance(ctx context.Context, sessionID string) ([]db.SessionAttendee, error)
	AttendanceStats(ctx context.Context, from, to time.Time) ([]db.TeacherDayStat, error)
	StudentHistory(ctx context.Context, accountID int64, from, to time.Time, limit, offset int32) ([]db.StudentHistoryRow, int64, error)
}

// Decider is the entitlement question the coordinator asks before recording
// physical attendance.
type Decider interface {
	DecideFor(ctx context.Context, account model.Account, teacher model.Teacher) (access.Capabilities, error)
}

type Coordinator struct {
	store   Store
	decider Decider
	now     func() time.Time
}

func NewCoordinator(store Store, decider Decider) *Coordinator {
	return &Coordinator{store: store, decider: decider, now: time.Now}
}

// ParseQRToken maps a scanned token to an account reference, preferring the
// structured id form.
func ParseQRToken(token string) (model.AccountRef, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.AccountRef{}, false
	}
	if raw, ok := strings.CutPrefix(token, qrIDPrefix); ok {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			return model.RefByID(id), true
		}
		return model.AccountRef{}, false
	}
	return model.RefByQRToken(token), true
}

// ScanCheckIn records a presence event for a scanned QR token. Callers run it
// inside the scanner mutex; the storage uniqueness constraints stay the
// correctness backstop for anything that bypasses the lock.
func (c *Coordinator) ScanCheckIn(ctx context.Context, operatorID int64, qrToken string, teacherID int64, asOf *time.Time) (Result, error) {
	ref, ok := ParseQRToken(qrToken)
	if !ok {
		return Result{Outcome: OutcomeValidation, Reason: "invalid_qr_token"}, nil
	}

	student, result, err := c.resolveStudent(ctx, ref)
	if err != nil || result != nil {
		return deref(result), err
	}
	teacher, err := c.store.GetTeacherByID(ctx, teacherID)
	if errors.Is(err, db.ErrNotFound) {
		return Result{Outcome: OutcomeNotFound, Reason: "teacher_not_found"}, nil
	}
	if err != nil {
		return Result{}, err
	}

	caps, err := c.decider.DecideFor(ctx, student, teacher)
	if err != nil {
		return Result{}, err
	}
	if !caps.Physical {
		// Expected, reportable outcome; the operator needs to know who
		// was refused and for which teacher.
		return Result{
			Outcome: OutcomeAccessDenied,
			Reason:  "no_school_entry_access",
			Student: &student,
			Teacher: &teacher,
		}, nil
	}

	date := c.now().UTC()
	if asOf != nil {
		date = asOf.UTC()
	}
	session, err := c.getOrCreateSession(ctx, teacher.ID, date, operatorID)
	if err != nil {
		return Result{}, err
	}

	existing, err := c.store.GetAttendance(ctx, session.ID.String(), student.ID)
	if err == nil {
		return Result{
			Outcome:    OutcomeAlreadyPresent,
			Student:    &student,
			Teacher:    &teacher,
			Session:    &session,
			Attendance: &existing,
		}, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return Result{}, err
	}

	record := model.AttendanceRecord{
		ID:         uuid.New(),
		SessionID:  session.ID,
		AccountID:  student.ID,
		Status:     model.AttendancePresent,
		RecordedBy: operatorID,
		RecordedAt: c.now().UTC(),
	}
	if err := c.store.CreateAttendance(ctx, record); err != nil {
		if db.IsUniqueViolation(err) {
			// Lost the race to a concurrent scan; the first write wins
			// and this call reads it back as an idempotent success.
			existing, err := c.store.GetAttendance(ctx, session.ID.String(), student.ID)
			if err != nil {
				return Result{}, err
			}
			return Result{
				Outcome:    OutcomeAlreadyPresent,
				Student:    &student,
				Teacher:    &teacher,
				Session:    &session,
				Attendance: &existing,
			}, nil
		}
		return Result{}, err
	}

	return Result{
		Outcome:    OutcomeCreated,
		Student:    &student,
		Teacher:    &teacher,
		Session:    &session,
		Attendance: &record,
	}, nil
}

// ManualCheckIn is the administrative override path: no physical-access
// policy check, but a duplicate is an error rather than an idempotent read.
func (c *Coordinator) ManualCheckIn(ctx context.Context, operatorID int64, ref model.AccountRef, teacherID int64, date time.Time, reason *string) (Result, error) {
	if err := ref.Validate(); err != nil {
		return Result{Outcome: OutcomeValidation, Reason: "account_ref_required"}, nil
	}
	if date.IsZero() {
		return Result{Outcome: OutcomeValidation, Reason: "date_required"}, nil
	}

	student, result, err := c.resolveStudent(ctx, ref)
	if err != nil || result != nil {
		return deref(result), err
	}
	teacher, err := c.store.GetTeacherByID(ctx, teacherID)
	if errors.Is(err, db.ErrNotFound) {
		return Result{Outcome: OutcomeNotFound, Reason: "teacher_not_found"}, nil
	}
	if err != nil {
		return Result{}, err
	}

	session, err := c.getOrCreateSession(ctx, teacher.ID, date.UTC(), operatorID)
	if err != nil {
		return Result{}, err
	}

	if existing, err := c.store.GetAttendance(ctx, session.ID.String(), student.ID); err == nil {
		return Result{
			Outcome:    OutcomeAlreadyRecorded,
			Reason:     "attendance_already_recorded",
			Student:    &student,
			Teacher:    &teacher,
			Session:    &session,
			Attendance: &existing,
		}, nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return Result{}, err
	}

	record := model.AttendanceRecord{
		ID:         uuid.New(),
		SessionID:  session.ID,
		AccountID:  student.ID,
		Status:     model.AttendancePresent,
		RecordedBy: operatorID,
		RecordedAt: c.now().UTC(),
		Note:       reason,
	}
	if err := c.store.CreateAttendance(ctx, record); err != nil {
		if db.IsUniqueViolation(err) {
			existing, err := c.store.GetAttendance(ctx, session.ID.String(), student.ID)
			if err != nil {
				return Result{}, err
			}
			return Result{
				Outcome:    OutcomeAlreadyRecorded,
				Reason:     "attendance_already_recorded",
				Student:    &student,
				Teacher:    &teacher,
				Session:    &session,
				Attendance: &existing,
			}, nil
		}
		return Result{}, err
	}

	return Result{
		Outcome:    OutcomeCreated,
		Student:    &student,
		Teacher:    &teacher,
		Session:    &session,
		Attendance: &record,
	}, nil
}

func (c *Coordinator) resolveStudent(ctx context.Context, ref model.AccountRef) (model.Account, *Result, error) {
	account, err := c.store.ResolveAccount(ctx, ref)
	if errors.Is(err, db.ErrNotFound) {
		return model.Account{}, &Result{Outcome: OutcomeNotFound, Reason: "student_not_found"}, nil
	}
	if err != nil {
		return model.Account{}, nil, err
	}
	if account.Role != model.RoleStudent {
		return model.Account{}, &Result{Outcome: OutcomeNotFound, Reason: "student_not_found"}, nil
	}
	return account, nil, nil
}

// getOrCreateSession lazily creates the unique (teacher, date) session with
// the default duration window. A unique violation means another request
// created it first; read that one back.
func (c *Coordinator) getOrCreateSession(ctx context.Context, teacherID int64, at time.Time, operatorID int64) (model.ScanSession, error) {
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)

	session, err := c.store.GetSessionByTeacherAndDate(ctx, teacherID, day)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return model.ScanSession{}, err
	}

	starts := day.Add(defaultSessionStartHour * time.Hour)
	session = model.ScanSession{
		ID:          uuid.New(),
		TeacherID:   teacherID,
		SessionDate: day,
		StartsAt:    starts,
		EndsAt:      starts.Add(defaultSessionDuration),
		CreatedBy:   operatorID,
		CreatedAt:   c.now().UTC(),
	}
	if err := c.store.CreateSession(ctx, session); err != nil {
		if db.IsUniqueViolation(err) {
			return c.store.GetSessionByTeacherAndDate(ctx, teacherID, day)
		}
		return model.ScanSession{}, err
	}
	return session, nil
}

func deref(r *Result) Result {
	if r == nil {
		return Result{}
	}
	return *r
}
