package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type claimsKey struct{}

// Claims identifies the upstream service that called the engine
type Claims struct {
	Subject  string
	Issuer   string
	Audience []string
}

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetClaimsFromContext returns the caller's claims, or nil for unauthenticated requests
func GetClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey{}).(*Claims)
	return claims
}

// WithClaims adds service claims to the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}
