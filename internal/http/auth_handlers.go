package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inodev-web/alouaoui-school-sub001/internal/auth"
	"github.com/inodev-web/alouaoui-school-sub001/internal/db"
	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	Account      accountSummary `json:"account"`
}

type accountSummary struct {
	ID        int64  `json:"id"`
	UUID      string `json:"uuid"`
	Role      string `json:"role"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func summarize(account model.Account) accountSummary {
	return accountSummary{
		ID:        account.ID,
		UUID:      account.UUID.String(),
		Role:      string(account.Role),
		Email:     account.Email,
		FirstName: account.FirstName,
		LastName:  account.LastName,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	account, err := s.store.GetAccountByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := auth.CheckPassword(account.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	// Students authenticate from exactly one device; a login from a new
	// device revokes the previous session outright.
	if account.Role == model.RoleStudent {
		deviceID := strings.TrimSpace(r.Header.Get("X-Device-ID"))
		switch err := s.guard.Enforce(r.Context(), account.ID, deviceID); {
		case err == nil:
		case errors.Is(err, auth.ErrDeviceRequired):
			writeError(w, http.StatusBadRequest, "DEVICE_UUID_REQUIRED")
			return
		case errors.Is(err, auth.ErrDeviceConflict):
			writeError(w, http.StatusConflict, "DEVICE_CONFLICT")
			return
		default:
			s.logger.Error("device guard failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
	}

	accessToken, refreshToken, err := s.issueTokens(r, account)
	if err != nil {
		s.logger.Error("token issue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Account:      summarize(account),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing_refresh_token")
		return
	}

	session, err := s.store.GetRefreshSession(r.Context(), auth.HashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if session.RevokedAt != nil || session.ExpiresAt.Before(time.Now().UTC()) {
		writeError(w, http.StatusUnauthorized, "refresh_token_expired")
		return
	}

	account, err := s.store.GetAccountByID(r.Context(), session.AccountID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "account_not_found")
		return
	}

	// Rotate: the presented token dies with this exchange.
	if err := s.store.RevokeRefreshSession(r.Context(), session.ID.String(), time.Now().UTC()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	accessToken, refreshToken, err := s.issueTokens(r, account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Account:      summarize(account),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	now := time.Now().UTC()
	if err := s.store.RevokeAccountRefreshSessions(r.Context(), claims.AccountID, now); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := s.denylist.Deny(r.Context(), claims.AccountID); err != nil {
		s.logger.Warn("token denylist write failed", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) issueTokens(r *http.Request, account model.Account) (string, string, error) {
	accessToken, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		AccountID: account.ID,
		Role:      string(account.Role),
	})
	if err != nil {
		return "", "", err
	}
	refreshToken, err := auth.NewRefreshToken()
	if err != nil {
		return "", "", err
	}
	now := time.Now().UTC()
	err = s.store.CreateRefreshSession(r.Context(), model.RefreshSession{
		ID:        uuid.New(),
		AccountID: account.ID,
		TokenHash: auth.HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	})
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}
