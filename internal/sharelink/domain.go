// Package sharelink gates access to shareable, code-protected resources
// (client quotation links). It composes the rate limiter, the capability
// token codec and the hashed access-secret store into a single verdict:
// is this caller allowed in, right now, safely.
package sharelink

import (
	"errors"
	"time"
)

// AccessSecret is the stored, one-way-hashed share code for a resource.
type AccessSecret struct {
	ResourceSlug string
	CodeHash     string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Expired reports whether the secret's resource-level expiry has passed.
func (s AccessSecret) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Reason classifies a denied validation.
type Reason string

// Validation outcomes surfaced to the HTTP layer.
const (
	ReasonInvalid     Reason = "invalid"
	ReasonExpired     Reason = "expired"
	ReasonRateLimited Reason = "rate_limited"
	ReasonNotFound    Reason = "not_found"
)

// Outcome is the result of validating one access attempt.
type Outcome struct {
	Allowed           bool
	Reason            Reason
	Token             string
	RemainingAttempts int
	RetryAfter        time.Duration
}

// ErrNotFound indicates no secret exists for the resource slug.
var ErrNotFound = errors.New("sharelink: resource not found")
