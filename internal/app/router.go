package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/foliohq/folio/internal/auth"
	"github.com/foliohq/folio/internal/observability"
	"github.com/foliohq/folio/internal/quotations"
	"github.com/foliohq/folio/internal/rbac"
	"github.com/foliohq/folio/internal/shared"
	"github.com/foliohq/folio/internal/sharelink"
	"github.com/foliohq/folio/internal/trust"
	"github.com/foliohq/folio/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	TrustScorer        *trust.Scorer
	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	QuotationsHandler  *quotations.Handler
	ShareHandler       *sharelink.Handler
	PermissionsHandler *rbac.Handler
	RBACMiddleware     rbac.Middleware
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Folio defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:          params.Logger,
		Config:          params.Config,
		SessionManager:  params.SessionManager,
		CSRFManager:     params.CSRFManager,
		TrustScorer:     params.TrustScorer,
		FingerprintSalt: params.Config.FingerprintSalt,
		Metrics:         params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Get("/metrics", params.Metrics.Handler().ServeHTTP)
	}

	// Hands out the CSRF token bound to the caller's session; clients
	// echo it in the X-CSRF-Token header on mutating requests.
	r.Get("/auth/csrf", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		token, err := params.CSRFManager.EnsureToken(r.Context(), sess)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"csrf_token":"` + token + `"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route("/share", params.ShareHandler.MountRoutes)

	r.Route("/admin", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireAny("users.accounts.view"))
			params.UsersHandler.MountRoutes(r)
		})
		r.Route("/permissions", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireAny("users.permissions.view", "users.permissions.edit"))
			params.PermissionsHandler.MountRoutes(r)
		})
		r.Route("/quotations", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireAny("quotations.documents.view", "quotations.documents.edit"))
			params.QuotationsHandler.MountRoutes(r)
		})
	})

	return r
}
