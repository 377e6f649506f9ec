package sharelink

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/foliohq/folio/internal/ratelimit"
	"github.com/foliohq/folio/internal/token"
)

// Attempt and capability policy for share codes.
const (
	attemptLimit  = 5
	attemptWindow = 15 * time.Minute
	capabilityTTL = 24 * time.Hour
)

// TokenScope names the capability scope for a resource slug.
func TokenScope(slug string) string {
	return "share:" + slug
}

// Verifier validates share codes against stored hashes, throttled by the
// rate limiter, and issues capability tokens on success.
type Verifier struct {
	repo    Repository
	limiter *ratelimit.Limiter
	codec   *token.Codec
	salt    string
	logger  *slog.Logger
	now     func() time.Time
}

// NewVerifier constructs a Verifier. salt feeds the composite rate-limit
// identifier so raw IPs never reach the counter store.
func NewVerifier(repo Repository, limiter *ratelimit.Limiter, codec *token.Codec, salt string, logger *slog.Logger) *Verifier {
	return &Verifier{
		repo:    repo,
		limiter: limiter,
		codec:   codec,
		salt:    salt,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the time source, for deterministic tests.
func (v *Verifier) SetClock(now func() time.Time) {
	v.now = now
}

// Validate checks one access attempt for slug from callerIP.
//
// Resource-level expiry short-circuits before anything else. The rate
// limiter then counts the attempt, success or failure; only a successful
// verification resets the counter and earns a capability token.
func (v *Verifier) Validate(ctx context.Context, slug, code, callerIP string) (Outcome, error) {
	secret, err := v.repo.FindBySlug(ctx, slug)
	if err != nil && !errors.Is(err, ErrNotFound) {
		// A store outage is not a missing link; let the caller treat it
		// as a server failure.
		return Outcome{}, err
	}
	if secret != nil && secret.Expired(v.now()) {
		return Outcome{Reason: ReasonExpired}, nil
	}

	identifier := v.identifier(slug, callerIP)
	res, err := v.limiter.Check(ctx, identifier, attemptLimit, attemptWindow)
	if err != nil {
		if v.logger != nil {
			v.logger.Error("share code rate check", slog.String("slug", slug), slog.Any("error", err))
		}
		// The limiter already applied its failure policy; honor it.
		if !res.Allowed {
			return Outcome{Reason: ReasonRateLimited, RetryAfter: res.ResetIn}, nil
		}
	}
	if !res.Allowed {
		return Outcome{Reason: ReasonRateLimited, RetryAfter: res.ResetIn}, nil
	}

	if secret == nil {
		return Outcome{Reason: ReasonNotFound}, nil
	}

	match, err := VerifyCode(secret.CodeHash, code)
	if err != nil {
		return Outcome{Reason: ReasonInvalid, RemainingAttempts: res.Remaining}, err
	}
	if !match {
		return Outcome{Reason: ReasonInvalid, RemainingAttempts: res.Remaining}, nil
	}

	if err := v.limiter.Reset(ctx, identifier); err != nil && v.logger != nil {
		v.logger.Warn("share code counter reset", slog.String("slug", slug), slog.Any("error", err))
	}
	capability, err := v.codec.Issue(TokenScope(slug), capabilityTTL)
	if err != nil {
		return Outcome{Reason: ReasonInvalid}, err
	}
	return Outcome{Allowed: true, Token: capability}, nil
}

// VerifyCapability checks a previously issued token for slug.
func (v *Verifier) VerifyCapability(tok, slug string) error {
	return v.codec.Verify(tok, TokenScope(slug))
}

func (v *Verifier) identifier(slug, callerIP string) string {
	mac := hmac.New(sha256.New, []byte(v.salt))
	_, _ = mac.Write([]byte(slug))
	_, _ = mac.Write([]byte{'|'})
	_, _ = mac.Write([]byte(callerIP))
	return "share:" + hex.EncodeToString(mac.Sum(nil))
}
