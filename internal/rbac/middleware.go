package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/foliohq/folio/internal/shared"
)

// Middleware wires authorization checks for HTTP handlers.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// RequireAny ensures the current principal holds at least one of the
// required permission codes.
func (m Middleware) RequireAny(codes ...string) func(http.Handler) http.Handler {
	return m.require(codes, func(set map[string]struct{}, required []string) bool {
		for _, code := range required {
			if _, ok := set[code]; ok {
				return true
			}
		}
		return len(required) == 0
	})
}

// RequireAll ensures the current principal holds every required code.
func (m Middleware) RequireAll(codes ...string) func(http.Handler) http.Handler {
	return m.require(codes, func(set map[string]struct{}, required []string) bool {
		for _, code := range required {
			if _, ok := set[code]; !ok {
				return false
			}
		}
		return true
	})
}

func (m Middleware) require(codes []string, pass func(map[string]struct{}, []string) bool) func(http.Handler) http.Handler {
	required := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code != "" {
			required = append(required, code)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := m.currentPrincipal(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			set, err := m.Resolver.Resolve(r.Context(), principal)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authorize request", slog.Int64("principal", principal.ID), slog.Any("error", err))
				}
				// Resolution failure denies rather than erroring open.
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if !pass(set, required) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) currentPrincipal(r *http.Request) (Principal, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		return Principal{}, false
	}
	id, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		return Principal{}, false
	}
	role, err := ParseRole(sess.Role())
	if err != nil {
		return Principal{}, false
	}
	return Principal{ID: id, Role: role}, true
}
