package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/facilityhub/backoffice/internal/authz"
	"github.com/facilityhub/backoffice/internal/shared"
)

// Middleware attaches the principal behind a bearer token to the request context. Requests
// without a valid token continue anonymously and are rejected by authz gates.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := shared.BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := service.ResolvePrincipal(r.Context(), token)
			if err != nil {
				if !errors.Is(err, shared.ErrUnauthorized) && logger != nil {
					logger.Error("resolve session", slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := shared.ContextWithToken(r.Context(), token)
			ctx = authz.ContextWithPrincipal(ctx, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
