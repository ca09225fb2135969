package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/inodev-web/alouaoui-school-sub001/internal/access"
	"github.com/inodev-web/alouaoui-school-sub001/internal/auth"
	"github.com/inodev-web/alouaoui-school-sub001/internal/checkin"
	"github.com/inodev-web/alouaoui-school-sub001/internal/config"
	"github.com/inodev-web/alouaoui-school-sub001/internal/db"
	"github.com/inodev-web/alouaoui-school-sub001/internal/lock"
	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

var checkinOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "checkin_outcomes_total",
	Help: "Check-in requests by outcome kind.",
}, []string{"path", "outcome"})

type Server struct {
	cfg         config.Config
	store       *db.Store
	engine      *access.Service
	coordinator *checkin.Coordinator
	guard       *auth.DeviceGuard
	scanner     *lock.ScannerMutex
	denylist    *auth.Denylist
	logger      *zap.Logger
}

func NewServer(
	cfg config.Config,
	store *db.Store,
	engine *access.Service,
	coordinator *checkin.Coordinator,
	guard *auth.DeviceGuard,
	scanner *lock.ScannerMutex,
	denylist *auth.Denylist,
	logger *zap.Logger,
) *Server {
	return &Server{
		cfg:         cfg,
		store:       store,
		engine:      engine,
		coordinator: coordinator,
		guard:       guard,
		scanner:     scanner,
		denylist:    denylist,
		logger:      logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)
	r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)

	r.With(s.authMiddleware, s.requireAdmin, s.deviceGuardMiddleware).Post("/checkin/scan", s.handleScanCheckIn)
	r.With(s.authMiddleware, s.requireAdmin).Post("/checkin/manual", s.handleManualCheckIn)

	r.With(s.authMiddleware, s.requireAdmin).Get("/sessions/{sessionId}/attendance", s.handleSessionAttendance)
	r.With(s.authMiddleware, s.requireAdmin).Get("/attendance/stats", s.handleAttendanceStats)
	r.With(s.authMiddleware).Get("/students/{accountId}/attendance", s.handleStudentHistory)

	r.With(s.authMiddleware, s.requireAdmin).Get("/access/decide", s.handleDecide)
	r.With(s.authMiddleware, s.deviceGuardMiddleware).Get("/content/accessible", s.handleAccessibleContent)

	r.With(s.authMiddleware, s.requireAdmin).Post("/payments/process", s.handleProcessPayment)

	return r
}

// Auth

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		issuedAt := time.Time{}
		if claims.IssuedAt != nil {
			issuedAt = claims.IssuedAt.Time
		}
		denied, err := s.denylist.Denied(r.Context(), claims.AccountID, issuedAt)
		if err != nil {
			s.logger.Warn("token denylist check failed", zap.Error(err))
		}
		if denied {
			writeError(w, http.StatusUnauthorized, "token_revoked")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		if claims.Role != string(model.RoleAdmin) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// deviceGuardMiddleware runs the one-session-per-account binding protocol
// against the X-Device-ID header before the handler touches any state.
func (s *Server) deviceGuardMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		deviceID := strings.TrimSpace(r.Header.Get("X-Device-ID"))
		switch err := s.guard.Enforce(r.Context(), claims.AccountID, deviceID); {
		case err == nil:
			next.ServeHTTP(w, r)
		case err == auth.ErrDeviceRequired:
			writeError(w, http.StatusBadRequest, "DEVICE_UUID_REQUIRED")
		case err == auth.ErrDeviceConflict:
			writeError(w, http.StatusConflict, "DEVICE_CONFLICT")
		default:
			s.logger.Error("device guard failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "server_error")
		}
	})
}

// Utilities

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func parseDateParam(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

func parseInt32Param(r *http.Request, key string, fallback int32) int32 {
	if raw := r.URL.Query().Get(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return int32(parsed)
		}
	}
	return fallback
}
