package checkin

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inodev-web/alouaoui-school-sub001/internal/access"
	"github.com/inodev-web/alouaoui-school-sub001/internal/db"
	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

// memStore backs the coordinator with maps. Postgres unique-violation
// errors are not reproducible here, so duplicates are caught by the
// get-before-create paths instead.
type memStore struct {
	accounts     map[int64]model.Account
	teachers     map[int64]model.Teacher
	sessions     map[string]model.ScanSession
	attendance   map[string]model.AttendanceRecord
	createCalls  int
	historyCalls int
}

func newMemStore() *memStore {
	return &memStore{
		accounts:   make(map[int64]model.Account),
		teachers:   make(map[int64]model.Teacher),
		sessions:   make(map[string]model.ScanSession),
		attendance: make(map[string]model.AttendanceRecord),
	}
}

func attKey(sessionID string, accountID int64) string {
	return fmt.Sprintf("%s/%d", sessionID, accountID)
}

func (s *memStore) ResolveAccount(_ context.Context, ref model.AccountRef) (model.Account, error) {
	if err := ref.Validate(); err != nil {
		return model.Account{}, err
	}
	for _, account := range s.accounts {
		switch {
		case ref.ID != nil && account.ID == *ref.ID:
			return account, nil
		case ref.UUID != nil && account.UUID == *ref.UUID:
			return account, nil
		case ref.QRToken != nil && account.QRToken == *ref.QRToken:
			return account, nil
		}
	}
	return model.Account{}, db.ErrNotFound
}

func (s *memStore) GetTeacherByID(_ context.Context, id int64) (model.Teacher, error) {
	teacher, ok := s.teachers[id]
	if !ok {
		return model.Teacher{}, db.ErrNotFound
	}
	return teacher, nil
}

func (s *memStore) GetSessionByID(_ context.Context, id string) (model.ScanSession, error) {
	for _, session := range s.sessions {
		if session.ID.String() == id {
			return session, nil
		}
	}
	return model.ScanSession{}, db.ErrNotFound
}

func sessionKey(teacherID int64, date time.Time) string {
	return fmt.Sprintf("%d/%s", teacherID, date.Format("2006-01-02"))
}

func (s *memStore) GetSessionByTeacherAndDate(_ context.Context, teacherID int64, date time.Time) (model.ScanSession, error) {
	session, ok := s.sessions[sessionKey(teacherID, date)]
	if !ok {
		return model.ScanSession{}, db.ErrNotFound
	}
	return session, nil
}

func (s *memStore) CreateSession(_ context.Context, session model.ScanSession) error {
	s.sessions[sessionKey(session.TeacherID, session.SessionDate)] = session
	return nil
}

func (s *memStore) GetAttendance(_ context.Context, sessionID string, accountID int64) (model.AttendanceRecord, error) {
	record, ok := s.attendance[attKey(sessionID, accountID)]
	if !ok {
		return model.AttendanceRecord{}, db.ErrNotFound
	}
	return record, nil
}

func (s *memStore) CreateAttendance(_ context.Context, record model.AttendanceRecord) error {
	s.createCalls++
	s.attendance[attKey(record.SessionID.String(), record.AccountID)] = record
	return nil
}

func (s *memStore) ListSessionAttendance(_ context.Context, sessionID string) ([]db.SessionAttendee, error) {
	var out []db.SessionAttendee
	for _, record := range s.attendance {
		if record.SessionID.String() == sessionID {
			account := s.accounts[record.AccountID]
			out = append(out, db.SessionAttendee{
				Record:    record,
				FirstName: account.FirstName,
				LastName:  account.LastName,
				QRToken:   account.QRToken,
			})
		}
	}
	return out, nil
}

func (s *memStore) AttendanceStats(_ context.Context, _, _ time.Time) ([]db.TeacherDayStat, error) {
	return nil, nil
}

func (s *memStore) StudentHistory(_ context.Context, accountID int64, _, _ time.Time, _, _ int32) ([]db.StudentHistoryRow, int64, error) {
	s.historyCalls++
	var rows []db.StudentHistoryRow
	for _, record := range s.attendance {
		if record.AccountID == accountID {
			rows = append(rows, db.StudentHistoryRow{Record: record})
		}
	}
	return rows, int64(len(rows)), nil
}

// allowAll / denyAll are canned policy answers.
type cannedDecider struct {
	caps access.Capabilities
}

func (d cannedDecider) DecideFor(context.Context, model.Account, model.Teacher) (access.Capabilities, error) {
	return d.caps, nil
}

func testCoordinator(store Store, physical bool) *Coordinator {
	c := NewCoordinator(store, cannedDecider{caps: access.Capabilities{Physical: physical}})
	c.now = func() time.Time { return time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC) }
	return c
}

func seedStudent(store *memStore) model.Account {
	student := model.Account{
		ID:      42,
		UUID:    uuid.New(),
		Role:    model.RoleStudent,
		QRToken: "opaque-token-42",
	}
	store.accounts[student.ID] = student
	return student
}

func TestParseQRToken(t *testing.T) {
	cases := []struct {
		token  string
		wantID *int64
		ok     bool
	}{
		{"StudentID-42", int64Ptr(42), true},
		{"StudentID-0", nil, false},
		{"StudentID-abc", nil, false},
		{"opaque-token", nil, true},
		{"", nil, false},
		{"   ", nil, false},
	}
	for _, tc := range cases {
		ref, ok := ParseQRToken(tc.token)
		if ok != tc.ok {
			t.Fatalf("ParseQRToken(%q): ok = %v, want %v", tc.token, ok, tc.ok)
		}
		if tc.wantID != nil {
			if ref.ID == nil || *ref.ID != *tc.wantID {
				t.Fatalf("ParseQRToken(%q): expected id ref %d, got %+v", tc.token, *tc.wantID, ref)
			}
		}
		if tc.ok && tc.wantID == nil && tc.token != "" {
			if ref.QRToken == nil {
				t.Fatalf("ParseQRToken(%q): expected opaque token ref, got %+v", tc.token, ref)
			}
		}
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestScanCheckInCreatesThenIdempotent(t *testing.T) {
	store := newMemStore()
	student := seedStudent(store)
	store.teachers[1] = model.Teacher{ID: 1, Name: "Alouaoui", IsAlouaouiTeacher: true}
	c := testCoordinator(store, true)

	first, err := c.ScanCheckIn(context.Background(), 100, "StudentID-42", 1, nil)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if first.Outcome != OutcomeCreated {
		t.Fatalf("expected created, got %s (%s)", first.Outcome, first.Reason)
	}
	if first.Attendance == nil || first.Attendance.AccountID != student.ID {
		t.Fatalf("expected attendance for student %d, got %+v", student.ID, first.Attendance)
	}
	if first.Session == nil || !first.Session.SessionDate.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected session on scan date, got %+v", first.Session)
	}

	second, err := c.ScanCheckIn(context.Background(), 100, "StudentID-42", 1, nil)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if second.Outcome != OutcomeAlreadyPresent {
		t.Fatalf("re-scan should be already_present, got %s", second.Outcome)
	}
	if second.Attendance.ID != first.Attendance.ID {
		t.Fatal("re-scan must return the original attendance record")
	}
	if store.createCalls != 1 {
		t.Fatalf("expected one attendance write, got %d", store.createCalls)
	}
}

func TestScanCheckInOpaqueTokenLookup(t *testing.T) {
	store := newMemStore()
	seedStudent(store)
	store.teachers[1] = model.Teacher{ID: 1, IsAlouaouiTeacher: true}
	c := testCoordinator(store, true)

	result, err := c.ScanCheckIn(context.Background(), 100, "opaque-token-42", 1, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Outcome != OutcomeCreated {
		t.Fatalf("expected created via opaque token, got %s (%s)", result.Outcome, result.Reason)
	}
}

func TestScanCheckInAccessDeniedWritesNothing(t *testing.T) {
	store := newMemStore()
	student := seedStudent(store)
	store.teachers[1] = model.Teacher{ID: 1, Name: "External"}
	c := testCoordinator(store, false)

	result, err := c.ScanCheckIn(context.Background(), 100, "StudentID-42", 1, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Outcome != OutcomeAccessDenied {
		t.Fatalf("expected access_denied, got %s", result.Outcome)
	}
	if result.Student == nil || result.Student.ID != student.ID {
		t.Fatal("denial must still identify the student for the operator")
	}
	if result.Teacher == nil || result.Teacher.ID != 1 {
		t.Fatal("denial must name the teacher")
	}
	if len(store.sessions) != 0 || len(store.attendance) != 0 {
		t.Fatal("a denied scan must not create sessions or attendance")
	}
}

func TestScanCheckInUnknownStudent(t *testing.T) {
	store := newMemStore()
	store.teachers[1] = model.Teacher{ID: 1, IsAlouaouiTeacher: true}
	c := testCoordinator(store, true)

	result, err := c.ScanCheckIn(context.Background(), 100, "StudentID-999", 1, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Outcome != OutcomeNotFound || result.Reason != "student_not_found" {
		t.Fatalf("expected student_not_found, got %s (%s)", result.Outcome, result.Reason)
	}
}

func TestScanCheckInAdminTokenIsNotAStudent(t *testing.T) {
	store := newMemStore()
	store.accounts[7] = model.Account{ID: 7, Role: model.RoleAdmin, QRToken: "admin-token"}
	store.teachers[1] = model.Teacher{ID: 1, IsAlouaouiTeacher: true}
	c := testCoordinator(store, true)

	result, err := c.ScanCheckIn(context.Background(), 100, "admin-token", 1, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Outcome != OutcomeNotFound {
		t.Fatalf("non-student tokens must not check in, got %s", result.Outcome)
	}
}

func TestScanCheckInMalformedStructuredToken(t *testing.T) {
	store := newMemStore()
	c := testCoordinator(store, true)

	result, err := c.ScanCheckIn(context.Background(), 100, "StudentID-xyz", 1, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Outcome != OutcomeValidation || result.Reason != "invalid_qr_token" {
		t.Fatalf("expected validation failure, got %s (%s)", result.Outcome, result.Reason)
	}
}

func TestScanCheckInUnknownTeacher(t *testing.T) {
	store := newMemStore()
	seedStudent(store)
	c := testCoordinator(store, true)

	result, err := c.ScanCheckIn(context.Background(), 100, "StudentID-42", 9, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Outcome != OutcomeNotFound || result.Reason != "teacher_not_found" {
		t.Fatalf("expected teacher_not_found, got %s (%s)", result.Outcome, result.Reason)
	}
}

func TestScanCheckInReusesSessionPerTeacherDay(t *testing.T) {
	store := newMemStore()
	seedStudent(store)
	store.accounts[43] = model.Account{ID: 43, Role: model.RoleStudent, QRToken: "opaque-token-43"}
	store.teachers[1] = model.Teacher{ID: 1, IsAlouaouiTeacher: true}
	c := testCoordinator(store, true)

	first, err := c.ScanCheckIn(context.Background(), 100, "StudentID-42", 1, nil)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	second, err := c.ScanCheckIn(context.Background(), 100, "StudentID-43", 1, nil)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if first.Session.ID != second.Session.ID {
		t.Fatal("same teacher and day must share one session")
	}
	if len(store.sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(store.sessions))
	}
}

func TestManualCheckInDuplicateIsError(t *testing.T) {
	store := newMemStore()
	seedStudent(store)
	store.teachers[1] = model.Teacher{ID: 1, IsAlouaouiTeacher: true}
	c := testCoordinator(store, true)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	first, err := c.ManualCheckIn(context.Background(), 100, model.RefByID(42), 1, date, nil)
	if err != nil {
		t.Fatalf("first manual check-in: %v", err)
	}
	if first.Outcome != OutcomeCreated {
		t.Fatalf("expected created, got %s (%s)", first.Outcome, first.Reason)
	}

	second, err := c.ManualCheckIn(context.Background(), 100, model.RefByID(42), 1, date, nil)
	if err != nil {
		t.Fatalf("second manual check-in: %v", err)
	}
	if second.Outcome != OutcomeAlreadyRecorded {
		t.Fatalf("manual duplicate must be already_recorded, got %s", second.Outcome)
	}
}

func TestManualCheckInSkipsAccessPolicy(t *testing.T) {
	store := newMemStore()
	seedStudent(store)
	store.teachers[1] = model.Teacher{ID: 1}
	// Decider denies physical access; the manual path must not consult it.
	c := testCoordinator(store, false)

	result, err := c.ManualCheckIn(context.Background(), 100, model.RefByID(42), 1,
		time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), nil)
	if err != nil {
		t.Fatalf("manual check-in: %v", err)
	}
	if result.Outcome != OutcomeCreated {
		t.Fatalf("manual override must bypass the policy, got %s (%s)", result.Outcome, result.Reason)
	}
}

func TestManualCheckInValidation(t *testing.T) {
	store := newMemStore()
	c := testCoordinator(store, true)

	result, err := c.ManualCheckIn(context.Background(), 100, model.AccountRef{}, 1,
		time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), nil)
	if err != nil {
		t.Fatalf("manual check-in: %v", err)
	}
	if result.Outcome != OutcomeValidation || result.Reason != "account_ref_required" {
		t.Fatalf("expected account_ref_required, got %s (%s)", result.Outcome, result.Reason)
	}

	result, err = c.ManualCheckIn(context.Background(), 100, model.RefByID(42), 1, time.Time{}, nil)
	if err != nil {
		t.Fatalf("manual check-in: %v", err)
	}
	if result.Outcome != OutcomeValidation || result.Reason != "date_required" {
		t.Fatalf("expected date_required, got %s (%s)", result.Outcome, result.Reason)
	}
}

func TestManualCheckInCarriesNote(t *testing.T) {
	store := newMemStore()
	seedStudent(store)
	store.teachers[1] = model.Teacher{ID: 1}
	c := testCoordinator(store, true)

	note := "forgot card"
	result, err := c.ManualCheckIn(context.Background(), 100, model.RefByID(42), 1,
		time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), &note)
	if err != nil {
		t.Fatalf("manual check-in: %v", err)
	}
	if result.Attendance == nil || result.Attendance.Note == nil || *result.Attendance.Note != note {
		t.Fatalf("expected note on the record, got %+v", result.Attendance)
	}
}

func TestOutcomeHTTPStatus(t *testing.T) {
	cases := map[Outcome]int{
		OutcomeCreated:         201,
		OutcomeAlreadyPresent:  200,
		OutcomeAlreadyRecorded: 422,
		OutcomeAccessDenied:    403,
		OutcomeNotFound:        404,
		OutcomeValidation:      400,
	}
	for outcome, want := range cases {
		if got := outcome.HTTPStatus(); got != want {
			t.Fatalf("%s: expected %d, got %d", outcome, want, got)
		}
	}
}

func TestStudentHistoryClampsPagination(t *testing.T) {
	store := newMemStore()
	seedStudent(store)
	c := testCoordinator(store, true)

	page, err := c.StudentHistory(context.Background(), 100, model.RoleAdmin, model.RefByID(42),
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), 0, 500)
	if err != nil {
		t.Fatalf("StudentHistory: %v", err)
	}
	if page.Page != 1 || page.PerPage != 20 {
		t.Fatalf("expected clamped page=1 per_page=20, got page=%d per_page=%d", page.Page, page.PerPage)
	}
}

func TestStudentHistoryViewerAuthorization(t *testing.T) {
	store := newMemStore()
	seedStudent(store)
	store.accounts[43] = model.Account{ID: 43, Role: model.RoleStudent, QRToken: "opaque-token-43"}
	c := testCoordinator(store, true)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	// Another student is rejected before the paginated query runs.
	_, err := c.StudentHistory(context.Background(), 43, model.RoleStudent, model.RefByID(42), from, to, 1, 20)
	if err != ErrForbidden {
		t.Fatalf("expected ErrForbidden for another student, got %v", err)
	}
	if store.historyCalls != 0 {
		t.Fatalf("forbidden viewer must not trigger the history query, got %d calls", store.historyCalls)
	}

	// The student themself and an admin both get through.
	if _, err := c.StudentHistory(context.Background(), 42, model.RoleStudent, model.RefByID(42), from, to, 1, 20); err != nil {
		t.Fatalf("self lookup: %v", err)
	}
	if _, err := c.StudentHistory(context.Background(), 100, model.RoleAdmin, model.RefByID(42), from, to, 1, 20); err != nil {
		t.Fatalf("admin lookup: %v", err)
	}
	if store.historyCalls != 2 {
		t.Fatalf("expected two history queries, got %d", store.historyCalls)
	}
}
