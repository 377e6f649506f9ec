package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/foliohq/folio/internal/audit"
	"github.com/foliohq/folio/internal/platform/httpx"
	"github.com/foliohq/folio/internal/ratelimit"
	"github.com/foliohq/folio/internal/shared"
)

// Login attempts allowed per client IP per window.
const (
	loginAttemptLimit  = 10
	loginAttemptWindow = 15 * time.Minute
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	limiter        *ratelimit.Limiter
	recorder       audit.Recorder
	salt           string
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance. salt keys the login throttle
// identifier so raw IPs never reach the counter store.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, limiter *ratelimit.Limiter, recorder audit.Recorder, salt string) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		limiter:        limiter,
		recorder:       recorder,
		salt:           salt,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	identifier := h.loginIdentifier(r)
	res, err := h.limiter.Check(r.Context(), identifier, loginAttemptLimit, loginAttemptWindow)
	if err != nil {
		h.logger.Error("login rate check", slog.Any("error", err))
	}
	if !res.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(res.ResetIn/time.Second)))
		httpx.Problem(w, http.StatusTooManyRequests, "Too Many Attempts", "retry later")
		return
	}

	user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		h.record(r, form.Email, "denied")
		httpx.JSON(w, http.StatusUnauthorized, map[string]any{
			"error":              "invalid credentials",
			"remaining_attempts": res.Remaining,
		})
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	sess.SetUser(strconv.FormatInt(user.ID, 10), user.Role)
	if err := h.limiter.Reset(r.Context(), identifier); err != nil {
		h.logger.Warn("login counter reset", slog.Any("error", err))
	}
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.record(r, form.Email, "allowed")
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id": user.ID,
		"role":    user.Role,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

// loginIdentifier throttles per client IP, not per connection: the port is
// stripped before the digest so reconnecting never earns a fresh window.
func (h *Handler) loginIdentifier(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	mac := hmac.New(sha256.New, []byte(h.salt))
	_, _ = mac.Write([]byte("login|"))
	_, _ = mac.Write([]byte(ip))
	return "login:" + hex.EncodeToString(mac.Sum(nil))
}

func (h *Handler) record(r *http.Request, email, outcome string) {
	decision := audit.Decision{
		Kind:    "login_attempt",
		Subject: email,
		Outcome: outcome,
	}
	if assessment, ok := shared.AssessmentFromContext(r.Context()); ok {
		decision.TrustScore = assessment.Score
		decision.Reasons = assessment.Reasons
	}
	h.recorder.Record(r.Context(), decision)
}
