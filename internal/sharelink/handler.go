package sharelink

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/foliohq/folio/internal/audit"
	"github.com/foliohq/folio/internal/observability"
	"github.com/foliohq/folio/internal/platform/httpx"
	"github.com/foliohq/folio/internal/shared"
	"github.com/foliohq/folio/internal/token"
)

// cookieName carries the capability token back on later requests.
const cookieName = "folio_share_access"

// ResourceFetcher loads the protected resource once a capability proves
// access. Keeps the handler decoupled from the quotation domain.
type ResourceFetcher func(ctx context.Context, slug string) (any, error)

// Handler wires the public share-link endpoints.
type Handler struct {
	logger    *slog.Logger
	verifier  *Verifier
	fetch     ResourceFetcher
	recorder  audit.Recorder
	metrics   *observability.Metrics
	validator *validator.Validate
	secure    bool
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, verifier *Verifier, fetch ResourceFetcher, recorder audit.Recorder, metrics *observability.Metrics, secure bool) *Handler {
	return &Handler{
		logger:    logger,
		verifier:  verifier,
		fetch:     fetch,
		recorder:  recorder,
		metrics:   metrics,
		validator: validator.New(),
		secure:    secure,
	}
}

// MountRoutes registers the share-link routes. These are public: the only
// gate is the access code and, afterwards, the capability cookie.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{slug}/unlock", h.unlock)
	r.Get("/{slug}", h.show)
}

type unlockForm struct {
	Code string `json:"code" validate:"required,min=4,max=64"`
}

func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	var form unlockForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	outcome, err := h.verifier.Validate(r.Context(), slug, form.Code, clientIP(r))
	if err != nil {
		h.logger.Error("share code validate", slog.String("slug", slug), slog.Any("error", err))
		if !outcome.Allowed && outcome.Reason == "" {
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
	}
	h.record(r, slug, outcome)

	switch {
	case outcome.Allowed:
		http.SetCookie(w, &http.Cookie{
			Name:     cookieName,
			Value:    outcome.Token,
			Path:     "/share/" + slug,
			MaxAge:   int(capabilityTTL / time.Second),
			HttpOnly: true,
			Secure:   h.secure,
			SameSite: http.SameSiteStrictMode,
		})
		httpx.JSON(w, http.StatusOK, map[string]any{"allowed": true})
	case outcome.Reason == ReasonRateLimited:
		h.metrics.CountRateLimited()
		w.Header().Set("Retry-After", retryAfterSeconds(outcome.RetryAfter))
		httpx.Problem(w, http.StatusTooManyRequests, "Too Many Attempts", "retry later")
	case outcome.Reason == ReasonExpired:
		httpx.Problem(w, http.StatusGone, "Link Expired", "this share link is no longer valid")
	case outcome.Reason == ReasonNotFound:
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no such share link")
	default:
		httpx.JSON(w, http.StatusUnauthorized, map[string]any{
			"allowed":            false,
			"reason":             string(ReasonInvalid),
			"remaining_attempts": outcome.RemainingAttempts,
		})
	}
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "unlock the link first")
		return
	}
	if err := h.verifier.VerifyCapability(cookie.Value, slug); err != nil {
		// Expired or tampered tokens send the caller back to the code
		// prompt; this is not a server error.
		if errors.Is(err, token.ErrTokenExpired) {
			httpx.Problem(w, http.StatusUnauthorized, "Token Expired", "unlock the link again")
			return
		}
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid access token")
		return
	}
	resource, err := h.fetch(r.Context(), slug)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "no such share link")
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resource)
}

func (h *Handler) record(r *http.Request, slug string, outcome Outcome) {
	h.metrics.CountShareOutcome(outcomeLabel(outcome))
	decision := audit.Decision{
		Kind:    "share_code_attempt",
		Subject: slug,
		Outcome: outcomeLabel(outcome),
	}
	if assessment, ok := shared.AssessmentFromContext(r.Context()); ok {
		decision.TrustScore = assessment.Score
		decision.Reasons = assessment.Reasons
	}
	h.recorder.Record(r.Context(), decision)
}

func outcomeLabel(outcome Outcome) string {
	if outcome.Allowed {
		return "allowed"
	}
	return string(outcome.Reason)
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
