package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/wolfman30/healthfirst-portals/internal/accounts"
	"github.com/wolfman30/healthfirst-portals/internal/portal"
)

type contextKey string

const providerClaimsKey contextKey = "providerClaims"

// TokenParser verifies session tokens issued at login.
type TokenParser interface {
	Parse(token string) (*accounts.Claims, error)
}

// ProviderAuth admits requests carrying a valid provider session token.
func ProviderAuth(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if parser == nil {
				http.Error(w, "provider auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := parser.Parse(strings.TrimPrefix(auth, "Bearer "))
			if err != nil || claims.Subject == "" {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if claims.Portal != string(portal.Provider) {
				http.Error(w, "provider account required", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), providerClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProviderFromContext returns the authenticated provider's claims.
func ProviderFromContext(ctx context.Context) (*accounts.Claims, bool) {
	claims, ok := ctx.Value(providerClaimsKey).(*accounts.Claims)
	return claims, ok && claims != nil
}

// WithProvider attaches claims to ctx, as ProviderAuth does.
func WithProvider(ctx context.Context, claims *accounts.Claims) context.Context {
	return context.WithValue(ctx, providerClaimsKey, claims)
}
