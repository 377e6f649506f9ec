package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foliohq/folio/internal/app"
	"github.com/foliohq/folio/internal/audit"
	"github.com/foliohq/folio/internal/auth"
	"github.com/foliohq/folio/internal/observability"
	"github.com/foliohq/folio/internal/platform/cache"
	"github.com/foliohq/folio/internal/platform/db"
	"github.com/foliohq/folio/internal/platform/store"
	"github.com/foliohq/folio/internal/quotations"
	"github.com/foliohq/folio/internal/ratelimit"
	"github.com/foliohq/folio/internal/rbac"
	"github.com/foliohq/folio/internal/shared"
	"github.com/foliohq/folio/internal/sharelink"
	"github.com/foliohq/folio/internal/token"
	"github.com/foliohq/folio/internal/trust"
	"github.com/foliohq/folio/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		if cfg.IsProduction() {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	kv := store.NewRedisStore(redisClient)
	sessionManager := shared.NewSessionManager(redisClient, "folio_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()
	scorer := trust.NewScorer()
	limiter := ratelimit.NewLimiter(kv, logger, cfg.IsProduction())
	codec := token.NewCodec(cfg.TokenSecret)
	recorder := audit.NewRecorder(pool, logger)

	resolver := rbac.NewResolver(rbac.NewRepository(pool), kv, logger)
	if err := resolver.Bootstrap(ctx); err != nil {
		// Non-fatal: resolution proceeds with previously synced rows.
		logger.Warn("permission catalog sync", slog.Any("error", err))
	}

	userRepo := users.NewRepository(pool)
	userService := users.NewService(userRepo)
	principalLookup := func(r *http.Request, principalID int64) (rbac.Principal, error) {
		user, err := userService.GetUser(r.Context(), principalID)
		if err != nil {
			return rbac.Principal{}, err
		}
		role, err := rbac.ParseRole(user.Role)
		if err != nil {
			return rbac.Principal{}, err
		}
		return rbac.Principal{ID: user.ID, Role: role}, nil
	}

	secretRepo := sharelink.NewRepository(pool)
	verifier := sharelink.NewVerifier(secretRepo, limiter, codec, cfg.FingerprintSalt, logger)

	quotationService := quotations.NewService(quotations.NewRepository(pool), secretRepo)
	fetchShared := func(ctx context.Context, slug string) (any, error) {
		return quotationService.GetBySlug(ctx, slug)
	}

	rbacMiddleware := rbac.Middleware{Resolver: resolver, Logger: logger}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		TrustScorer:        scorer,
		AuthHandler:        auth.NewHandler(logger, auth.NewService(auth.NewRepository(pool)), sessionManager, limiter, recorder, cfg.FingerprintSalt),
		UsersHandler:       users.NewHandler(logger, userService),
		QuotationsHandler:  quotations.NewHandler(logger, quotationService),
		ShareHandler:       sharelink.NewHandler(logger, verifier, fetchShared, recorder, metrics, cfg.IsProduction()),
		PermissionsHandler: rbac.NewHandler(logger, resolver, principalLookup),
		RBACMiddleware:     rbacMiddleware,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	}()

	logger.Info("server started", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
