package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inodev-web/alouaoui-school-sub001/internal/checkin"
	"github.com/inodev-web/alouaoui-school-sub001/internal/lock"
	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

type scanCheckInRequest struct {
	QRToken   string  `json:"qr_token"`
	TeacherID int64   `json:"teacher_id"`
	Date      *string `json:"date"`
}

type manualCheckInRequest struct {
	StudentID   *int64  `json:"student_id"`
	StudentUUID *string `json:"student_uuid"`
	QRToken     *string `json:"qr_token"`
	TeacherID   int64   `json:"teacher_id"`
	Date        string  `json:"date"`
	Reason      *string `json:"reason"`
}

type teacherSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type sessionSummary struct {
	ID        string `json:"id"`
	TeacherID int64  `json:"teacher_id"`
	Date      string `json:"date"`
	StartsAt  int64  `json:"starts_at"`
	EndsAt    int64  `json:"ends_at"`
}

type attendanceSummary struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	RecordedBy int64   `json:"recorded_by"`
	RecordedAt int64   `json:"recorded_at"`
	Note       *string `json:"note,omitempty"`
}

type checkInResponse struct {
	Outcome    string             `json:"outcome"`
	Reason     string             `json:"reason,omitempty"`
	Student    *accountSummary    `json:"student,omitempty"`
	Teacher    *teacherSummary    `json:"teacher,omitempty"`
	Session    *sessionSummary    `json:"session,omitempty"`
	Attendance *attendanceSummary `json:"attendance,omitempty"`
}

func mapResult(result checkin.Result) checkInResponse {
	resp := checkInResponse{
		Outcome: string(result.Outcome),
		Reason:  result.Reason,
	}
	if result.Student != nil {
		student := summarize(*result.Student)
		student.Email = ""
		resp.Student = &student
	}
	if result.Teacher != nil {
		resp.Teacher = &teacherSummary{ID: result.Teacher.ID, Name: result.Teacher.Name}
	}
	if result.Session != nil {
		resp.Session = &sessionSummary{
			ID:        result.Session.ID.String(),
			TeacherID: result.Session.TeacherID,
			Date:      result.Session.SessionDate.Format("2006-01-02"),
			StartsAt:  result.Session.StartsAt.Unix(),
			EndsAt:    result.Session.EndsAt.Unix(),
		}
	}
	if result.Attendance != nil {
		resp.Attendance = &attendanceSummary{
			ID:         result.Attendance.ID.String(),
			Status:     string(result.Attendance.Status),
			RecordedBy: result.Attendance.RecordedBy,
			RecordedAt: result.Attendance.RecordedAt.Unix(),
			Note:       result.Attendance.Note,
		}
	}
	return resp
}

func (s *Server) handleScanCheckIn(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req scanCheckInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.QRToken) == "" || req.TeacherID == 0 {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	var asOf *time.Time
	if req.Date != nil && *req.Date != "" {
		parsed, ok := parseDateParam(*req.Date)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		asOf = &parsed
	}

	operatorID := claims.AccountID
	var result checkin.Result
	err := s.scanner.WithLock(r.Context(), operatorID, func(ctx context.Context) error {
		var err error
		result, err = s.coordinator.ScanCheckIn(ctx, operatorID, req.QRToken, req.TeacherID, asOf)
		return err
	})
	switch {
	case errors.Is(err, lock.ErrBusy):
		checkinOutcomes.WithLabelValues("scan", "scanner_busy").Inc()
		writeError(w, http.StatusTooManyRequests, "SCANNER_BUSY")
		return
	case errors.Is(err, lock.ErrBusyLocal):
		checkinOutcomes.WithLabelValues("scan", "scanner_busy_cache").Inc()
		writeError(w, http.StatusTooManyRequests, "SCANNER_BUSY_CACHE")
		return
	case err != nil:
		s.logger.Error("scan check-in failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	checkinOutcomes.WithLabelValues("scan", string(result.Outcome)).Inc()
	writeJSON(w, result.Outcome.HTTPStatus(), mapResult(result))
}

func (s *Server) handleManualCheckIn(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req manualCheckInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.TeacherID == 0 {
		writeError(w, http.StatusBadRequest, "missing_teacher_id")
		return
	}
	date, ok := parseDateParam(req.Date)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	var ref model.AccountRef
	switch {
	case req.StudentID != nil:
		ref = model.RefByID(*req.StudentID)
	case req.StudentUUID != nil:
		parsed, err := uuid.Parse(*req.StudentUUID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_student_uuid")
			return
		}
		ref = model.RefByUUID(parsed)
	case req.QRToken != nil:
		ref = model.RefByQRToken(*req.QRToken)
	}

	result, err := s.coordinator.ManualCheckIn(r.Context(), claims.AccountID, ref, req.TeacherID, date, req.Reason)
	if err != nil {
		s.logger.Error("manual check-in failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	checkinOutcomes.WithLabelValues("manual", string(result.Outcome)).Inc()
	writeJSON(w, result.Outcome.HTTPStatus(), mapResult(result))
}

func (s *Server) handleSessionAttendance(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if _, err := uuid.Parse(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session_id")
		return
	}
	report, err := s.coordinator.SessionAttendance(r.Context(), sessionID)
	if err != nil {
		if checkin.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "session_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	attendees := make([]map[string]any, 0, len(report.Attendees))
	for _, att := range report.Attendees {
		attendees = append(attendees, map[string]any{
			"attendance_id": att.Record.ID.String(),
			"account_id":    att.Record.AccountID,
			"first_name":    att.FirstName,
			"last_name":     att.LastName,
			"qr_token":      att.QRToken,
			"status":        string(att.Record.Status),
			"recorded_at":   att.Record.RecordedAt.Unix(),
			"recorded_by":   att.Record.RecordedBy,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": sessionSummary{
			ID:        report.Session.ID.String(),
			TeacherID: report.Session.TeacherID,
			Date:      report.Session.SessionDate.Format("2006-01-02"),
			StartsAt:  report.Session.StartsAt.Unix(),
			EndsAt:    report.Session.EndsAt.Unix(),
		},
		"attendees": attendees,
	})
}

func (s *Server) handleAttendanceStats(w http.ResponseWriter, r *http.Request) {
	to, ok := parseDateParam(r.URL.Query().Get("to"))
	if !ok {
		to = time.Now().UTC().Truncate(24 * time.Hour)
	}
	from, ok := parseDateParam(r.URL.Query().Get("from"))
	if !ok {
		from = to.AddDate(0, 0, -30)
	}
	if from.After(to) {
		writeError(w, http.StatusBadRequest, "invalid_range")
		return
	}

	report, err := s.coordinator.AttendanceStats(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStudentHistory(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	// The path accepts either the numeric id or the public UUID.
	raw := chi.URLParam(r, "accountId")
	var ref model.AccountRef
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		ref = model.RefByID(id)
	} else if parsed, err := uuid.Parse(raw); err == nil {
		ref = model.RefByUUID(parsed)
	} else {
		writeError(w, http.StatusBadRequest, "invalid_account_id")
		return
	}

	to, ok := parseDateParam(r.URL.Query().Get("to"))
	if !ok {
		to = time.Now().UTC().Truncate(24 * time.Hour)
	}
	from, ok := parseDateParam(r.URL.Query().Get("from"))
	if !ok {
		from = to.AddDate(0, 0, -30)
	}
	page := parseInt32Param(r, "page", 1)
	perPage := parseInt32Param(r, "per_page", 20)

	history, err := s.coordinator.StudentHistory(r.Context(), claims.AccountID, model.Role(claims.Role), ref, from, to, page, perPage)
	if err != nil {
		switch {
		case checkin.IsNotFound(err):
			writeError(w, http.StatusNotFound, "student_not_found")
		case errors.Is(err, checkin.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden")
		default:
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}

	rows := make([]map[string]any, 0, len(history.Rows))
	for _, row := range history.Rows {
		rows = append(rows, map[string]any{
			"attendance_id": row.Record.ID.String(),
			"teacher_id":    row.TeacherID,
			"teacher_name":  row.TeacherName,
			"session_date":  row.SessionDate.Format("2006-01-02"),
			"status":        string(row.Record.Status),
			"recorded_at":   row.Record.RecordedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"student_id": history.Student.ID,
		"total":      history.Total,
		"page":       history.Page,
		"per_page":   history.PerPage,
		"rows":       rows,
	})
}
