package auth

import (
	"context"
)

type contextKey string

const contextKeyClaims contextKey = "auth_claims"

// WithClaims adds the validated claims to the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKeyClaims, claims)
}

// ClaimsFromContext retrieves the validated claims from the context
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKeyClaims).(*Claims)
	return claims, ok && claims != nil
}
