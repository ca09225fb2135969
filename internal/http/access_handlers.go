package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/inodev-web/alouaoui-school-sub001/internal/access"
	"github.com/inodev-web/alouaoui-school-sub001/internal/db"
	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(r.URL.Query().Get("student_id"), 10, 64)
	if err != nil || accountID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_student_id")
		return
	}
	teacherID, err := strconv.ParseInt(r.URL.Query().Get("teacher_id"), 10, 64)
	if err != nil || teacherID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_teacher_id")
		return
	}

	account, err := s.store.GetAccountByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	teacher, err := s.store.GetTeacherByID(r.Context(), teacherID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "teacher_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	caps, err := s.engine.DecideFor(r.Context(), account, teacher)
	if err != nil {
		s.logger.Error("access decision failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"student_id":   account.ID,
		"teacher_id":   teacher.ID,
		"capabilities": caps,
	})
}

func (s *Server) handleAccessibleContent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	account, err := s.store.GetAccountByID(r.Context(), claims.AccountID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "account_not_found")
		return
	}
	chapters, err := s.engine.AccessibleChapters(r.Context(), account)
	if err != nil {
		s.logger.Error("accessible content lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if chapters == nil {
		chapters = []int64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chapter_ids": chapters})
}

type processPaymentRequest struct {
	AccountID int64  `json:"account_id"`
	TeacherID int64  `json:"teacher_id"`
	Method    string `json:"method"`
	Status    string `json:"status"`
	PaidAt    string `json:"paid_at"`
}

func (s *Server) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req processPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.AccountID <= 0 || req.TeacherID <= 0 {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	method := model.PaymentMethod(req.Method)
	if method != model.PaymentCash && method != model.PaymentOnline {
		writeError(w, http.StatusBadRequest, "invalid_method")
		return
	}
	status := model.PaymentStatus(req.Status)
	if status == "" {
		status = model.PaymentConfirmed
	}
	paidAt := time.Now().UTC()
	if req.PaidAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.PaidAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_paid_at")
			return
		}
		paidAt = parsed.UTC()
	}

	sub, err := s.engine.ProcessPayment(r.Context(), model.Payment{
		AccountID: req.AccountID,
		TeacherID: req.TeacherID,
		Method:    method,
		Status:    status,
		PaidAt:    paidAt,
	})
	switch {
	case errors.Is(err, access.ErrPaymentNotConfirmed):
		writeError(w, http.StatusUnprocessableEntity, "payment_not_confirmed")
		return
	case errors.Is(err, access.ErrCashOnly):
		writeError(w, http.StatusUnprocessableEntity, "cash_only_teacher")
		return
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "teacher_not_found")
		return
	case err != nil:
		s.logger.Error("payment processing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subscription_id":     sub.ID,
		"account_id":          sub.AccountID,
		"teacher_id":          sub.TeacherID,
		"status":              string(sub.Status),
		"starts_at":           sub.StartsAt.Format(time.RFC3339),
		"ends_at":             sub.EndsAt.Format(time.RFC3339),
		"videos_access":       sub.VideosAccess,
		"lives_access":        sub.LivesAccess,
		"school_entry_access": sub.SchoolEntryAccess,
	})
}
