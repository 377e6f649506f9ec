package sharelink

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliohq/folio/internal/platform/store"
	"github.com/foliohq/folio/internal/ratelimit"
	"github.com/foliohq/folio/internal/token"
)

type fakeSecretRepo struct {
	secrets map[string]AccessSecret
}

func (f *fakeSecretRepo) FindBySlug(ctx context.Context, slug string) (*AccessSecret, error) {
	secret, ok := f.secrets[slug]
	if !ok {
		return nil, ErrNotFound
	}
	return &secret, nil
}

func (f *fakeSecretRepo) Upsert(ctx context.Context, secret AccessSecret) error {
	f.secrets[secret.ResourceSlug] = secret
	return nil
}

func (f *fakeSecretRepo) Delete(ctx context.Context, slug string) error {
	delete(f.secrets, slug)
	return nil
}

func (f *fakeSecretRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	for slug, secret := range f.secrets {
		if secret.Expired(before) {
			delete(f.secrets, slug)
			n++
		}
	}
	return n, nil
}

func newVerifier(t *testing.T) (*Verifier, *fakeSecretRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := ratelimit.NewLimiter(store.NewRedisStore(client), slog.Default(), true)
	codec := token.NewCodec("token-secret")
	repo := &fakeSecretRepo{secrets: make(map[string]AccessSecret)}
	return NewVerifier(repo, limiter, codec, "id-salt", slog.Default()), repo, mr
}

func seedSecret(t *testing.T, repo *fakeSecretRepo, slug, code string, expiresAt time.Time) {
	t.Helper()
	hash, err := HashCode(code)
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(context.Background(), AccessSecret{
		ResourceSlug: slug,
		CodeHash:     hash,
		ExpiresAt:    expiresAt,
		CreatedAt:    time.Now(),
	}))
}

func TestWrongAttemptsThenRateLimited(t *testing.T) {
	verifier, repo, _ := newVerifier(t)
	seedSecret(t, repo, "q-2024-001", "ABC123", time.Time{})
	ctx := context.Background()

	for i, wrong := range []string{"XXXX", "YYYY", "ZZZZ", "QQQQ", "WWWW"} {
		outcome, err := verifier.Validate(ctx, "q-2024-001", wrong, "198.51.100.4")
		require.NoError(t, err)
		assert.False(t, outcome.Allowed)
		assert.Equal(t, ReasonInvalid, outcome.Reason, "attempt %d", i+1)
		assert.Equal(t, 4-i, outcome.RemainingAttempts, "attempt %d", i+1)
	}

	// Even the correct code is refused once the window is exhausted.
	outcome, err := verifier.Validate(ctx, "q-2024-001", "ABC123", "198.51.100.4")
	require.NoError(t, err)
	assert.Equal(t, ReasonRateLimited, outcome.Reason)
	assert.Greater(t, outcome.RetryAfter, time.Duration(0))
}

func TestCorrectCodeIssuesTokenAndResetsCounter(t *testing.T) {
	verifier, repo, _ := newVerifier(t)
	seedSecret(t, repo, "q-2024-002", "ABC123", time.Time{})
	ctx := context.Background()

	for _, wrong := range []string{"XXXX", "YYYY", "ZZZZ"} {
		_, err := verifier.Validate(ctx, "q-2024-002", wrong, "198.51.100.4")
		require.NoError(t, err)
	}

	outcome, err := verifier.Validate(ctx, "q-2024-002", "ABC123", "198.51.100.4")
	require.NoError(t, err)
	require.True(t, outcome.Allowed)
	require.NotEmpty(t, outcome.Token)
	assert.NoError(t, verifier.VerifyCapability(outcome.Token, "q-2024-002"))
	assert.Error(t, verifier.VerifyCapability(outcome.Token, "q-2024-999"))

	// Counter was reset: a full set of fresh attempts is available again.
	wrongOutcome, err := verifier.Validate(ctx, "q-2024-002", "XXXX", "198.51.100.4")
	require.NoError(t, err)
	assert.Equal(t, 4, wrongOutcome.RemainingAttempts)
}

func TestExpiredResourceShortCircuits(t *testing.T) {
	verifier, repo, mr := newVerifier(t)
	seedSecret(t, repo, "q-2024-003", "ABC123", time.Now().Add(-time.Hour))

	outcome, err := verifier.Validate(context.Background(), "q-2024-003", "ABC123", "198.51.100.4")
	require.NoError(t, err)
	assert.Equal(t, ReasonExpired, outcome.Reason)
	// Expiry is checked before the limiter: no counter may exist.
	assert.Empty(t, mr.Keys())
}

func TestUnknownSlug(t *testing.T) {
	verifier, _, _ := newVerifier(t)
	outcome, err := verifier.Validate(context.Background(), "missing", "ABC123", "198.51.100.4")
	require.NoError(t, err)
	assert.Equal(t, ReasonNotFound, outcome.Reason)
}

func TestLimitsArePerCallerAndResource(t *testing.T) {
	verifier, repo, _ := newVerifier(t)
	seedSecret(t, repo, "q-2024-004", "ABC123", time.Time{})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := verifier.Validate(ctx, "q-2024-004", "XXXX", "198.51.100.4")
		require.NoError(t, err)
	}

	// A different caller IP gets its own window.
	outcome, err := verifier.Validate(ctx, "q-2024-004", "ABC123", "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, outcome.Allowed)
}

func TestSecretStoreErrorSurfaces(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := ratelimit.NewLimiter(store.NewRedisStore(client), slog.Default(), true)
	verifier := NewVerifier(downSecretRepo{}, limiter, token.NewCodec("token-secret"), "id-salt", slog.Default())

	outcome, err := verifier.Validate(context.Background(), "q-2024-005", "ABC123", "198.51.100.4")
	require.Error(t, err)
	assert.Equal(t, Outcome{}, outcome, "an outage must not classify as any denial reason")
	assert.Empty(t, mr.Keys(), "no attempt may be counted when the lookup failed")
}

func TestHashCodeRoundTrip(t *testing.T) {
	hash, err := HashCode("ABC123")
	require.NoError(t, err)

	match, err := VerifyCode(hash, "ABC123")
	require.NoError(t, err)
	assert.True(t, match)

	match, err = VerifyCode(hash, "abc123")
	require.NoError(t, err)
	assert.False(t, match)

	_, err = VerifyCode("not-a-hash", "ABC123")
	assert.Error(t, err)
}
