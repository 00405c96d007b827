package authz

import (
	"log/slog"
	"net/http"

	"github.com/facilityhub/backoffice/internal/platform/httpx"
)

// Middleware wires capability checks for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current principal has at least one of the required capabilities.
func (m Middleware) RequireAny(caps ...Capability) func(http.Handler) http.Handler {
	return m.require("any", caps, func(p Principal) bool {
		return len(caps) == 0 || HasAnyPermission(p, caps...)
	})
}

// RequireAll ensures the current principal has all required capabilities.
func (m Middleware) RequireAll(caps ...Capability) func(http.Handler) http.Handler {
	return m.require("all", caps, func(p Principal) bool {
		return HasAllPermissions(p, caps...)
	})
}

// Authenticated only requires a principal in context.
func (m Middleware) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) require(mode string, caps []Capability, allowed func(Principal) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if allowed(p) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("authz denied",
					slog.String("principal", p.PrincipalID()),
					slog.String("mode", mode),
					slog.Any("required", caps),
					slog.String("path", r.URL.Path))
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing capability")
		})
	}
}
