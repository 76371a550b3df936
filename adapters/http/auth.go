package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/artpar/paycore/adapters/auth"
	"github.com/rs/zerolog"
)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

type claimsKey struct{}

// ClaimsFrom returns the token claims of an authenticated request.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}

// NewAuthMiddleware requires a valid bearer token. Safe methods need the
// read scope, everything else the write scope.
func NewAuthMiddleware(tokens TokenValidator, logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="paycore"`)
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			claims, err := tokens.ValidateToken(raw)
			if err != nil {
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected api token")
				w.Header().Set("WWW-Authenticate", `Bearer realm="paycore", error="invalid_token"`)
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}

			scope := auth.ScopeWrite
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				scope = auth.ScopeRead
			}
			if !claims.Allows(scope) {
				writeError(w, http.StatusForbidden, "forbidden", "token lacks scope "+scope)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[7:])
	return token, token != ""
}
