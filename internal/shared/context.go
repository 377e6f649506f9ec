package shared

import (
	"context"

	"github.com/foliohq/folio/internal/trust"
)

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

type assessmentContextKey struct{}

// ContextWithAssessment attaches the advisory trust assessment computed for
// this request.
func ContextWithAssessment(ctx context.Context, a trust.Assessment) context.Context {
	return context.WithValue(ctx, assessmentContextKey{}, a)
}

// AssessmentFromContext extracts the trust assessment, if one was attached.
func AssessmentFromContext(ctx context.Context) (trust.Assessment, bool) {
	a, ok := ctx.Value(assessmentContextKey{}).(trust.Assessment)
	return a, ok
}
