package auth_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/foliohq/folio/internal/audit"
	"github.com/foliohq/folio/internal/auth"
	"github.com/foliohq/folio/internal/platform/store"
	"github.com/foliohq/folio/internal/ratelimit"
	"github.com/foliohq/folio/internal/shared"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time) error {
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	return nil
}

func newAuthRouter(t *testing.T) (http.Handler, *shared.SessionManager, *miniredis.Miniredis) {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "user@test.local", PasswordHash: string(hashed), Role: "ADMIN", IsActive: true}}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(client, "test_session", time.Hour, false)
	limiter := ratelimit.NewLimiter(store.NewRedisStore(client), slog.Default(), true)
	handler := auth.NewHandler(slog.Default(), auth.NewService(repo), sessionManager, limiter, audit.NopRecorder{}, "fp-salt")

	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return r, sessionManager, mr
}

func postLogin(t *testing.T, router http.Handler, password, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"email":"user@test.local","password":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.RemoteAddr = remoteAddr
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func remainingAttempts(t *testing.T, res *httptest.ResponseRecorder) int {
	t.Helper()
	var body struct {
		RemainingAttempts int `json:"remaining_attempts"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse body: %v", err)
	}
	return body.RemainingAttempts
}

func TestLoginThrottleSharedAcrossConnections(t *testing.T) {
	router, _, mr := newAuthRouter(t)

	// Every attempt arrives on a fresh ephemeral port; the counter must
	// follow the IP, not the connection.
	for i := 0; i < 10; i++ {
		res := postLogin(t, router, "wrong-password", "203.0.113.5:"+strconv.Itoa(40000+i))
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401", i+1, res.Code)
		}
		if got := remainingAttempts(t, res); got != 9-i {
			t.Fatalf("attempt %d remaining = %d, want %d", i+1, got, 9-i)
		}
	}

	res := postLogin(t, router, "correct-pass", "203.0.113.5:51999")
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("11th attempt status = %d, want 429", res.Code)
	}
	if res.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on 429")
	}

	for _, key := range mr.Keys() {
		if strings.Contains(key, "203.0.113.5") {
			t.Fatalf("raw IP leaked into counter key %q", key)
		}
	}
}

func TestSuccessfulLoginResetsThrottle(t *testing.T) {
	router, sessionManager, _ := newAuthRouter(t)

	for i := 0; i < 3; i++ {
		res := postLogin(t, router, "wrong-password", "203.0.113.6:40000")
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401", i+1, res.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"user@test.local","password":"correct-pass"}`))
	req.RemoteAddr = "203.0.113.6:40001"
	req.Header.Set("Content-Type", "application/json")
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200: %s", res.Code, res.Body.String())
	}

	// Counter cleared: the next failure starts a fresh window.
	fail := postLogin(t, router, "wrong-password", "203.0.113.6:40002")
	if fail.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", fail.Code)
	}
	if got := remainingAttempts(t, fail); got != 9 {
		t.Fatalf("remaining after reset = %d, want 9", got)
	}
}
