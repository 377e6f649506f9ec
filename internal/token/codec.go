// Package token issues and verifies stateless capability tokens. A token
// proves authorization for one resource scope without any server-side
// session record.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrTokenInvalid covers malformed tokens and signature mismatches.
	ErrTokenInvalid = errors.New("token: invalid")
	// ErrTokenExpired indicates the token's expiry has passed.
	ErrTokenExpired = errors.New("token: expired")
	// ErrTokenScope indicates the token was issued for a different scope.
	ErrTokenScope = errors.New("token: scope mismatch")
)

// SecureEqual compares two strings in constant time. When lengths differ it
// still burns a comparison of a against itself so the early return does not
// leak length information through timing.
func SecureEqual(a, b string) bool {
	if len(a) != len(b) {
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type payload struct {
	Scope     string `json:"scope"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Codec signs and verifies capability tokens with a single HMAC-SHA256 secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec constructs a Codec from the signing secret.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret), now: time.Now}
}

// SetClock overrides the time source, for deterministic tests.
func (c *Codec) SetClock(now func() time.Time) {
	c.now = now
}

// Issue builds a token granting scope for ttl. The returned string is
// base64url(payload) + "." + base64url(signature).
func (c *Codec) Issue(scope string, ttl time.Duration) (string, error) {
	if scope == "" {
		return "", errors.New("token: scope required")
	}
	now := c.now().UTC()
	data, err := json.Marshal(payload{
		Scope:     scope,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(data)
	return encoded + "." + c.sign(encoded), nil
}

// Verify checks signature, expiry and scope. Verification is stateless.
func (c *Codec) Verify(tok, expectedScope string) error {
	encoded, sig, ok := strings.Cut(tok, ".")
	if !ok || encoded == "" || sig == "" {
		return ErrTokenInvalid
	}
	if !SecureEqual(c.sign(encoded), sig) {
		return ErrTokenInvalid
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return ErrTokenInvalid
	}
	var claims payload
	if err := json.Unmarshal(data, &claims); err != nil {
		return ErrTokenInvalid
	}
	if c.now().UTC().Unix() > claims.ExpiresAt {
		return ErrTokenExpired
	}
	if claims.Scope != expectedScope {
		return ErrTokenScope
	}
	return nil
}

func (c *Codec) sign(encodedPayload string) string {
	mac := hmac.New(sha256.New, c.secret)
	_, _ = mac.Write([]byte(encodedPayload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
