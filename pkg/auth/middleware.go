package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	apperrors "github.com/chainsafe/remittance-middleware/pkg/app/errors"
	apphttp "github.com/chainsafe/remittance-middleware/pkg/app/http"
)

var (
	// ErrMissingToken is returned when the request has no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrForbidden is returned when the claims do not satisfy a policy.
	ErrForbidden = errors.New("insufficient permissions")
)

// Policy decides whether claims may perform an operation.
type Policy func(c *Claims) bool

// RequireTokenType allows tokens of one of types.
func RequireTokenType(types ...TokenType) Policy {
	return func(c *Claims) bool {
		return slices.Contains(types, c.TokenType)
	}
}

// RequireRole allows admin tokens holding one of roles.
func RequireRole(roles ...Role) Policy {
	return func(c *Claims) bool {
		return c.TokenType == TokenAdmin && c.HasRole(roles...)
	}
}

// RequireScope allows tokens of tokenType carrying scope.
func RequireScope(tokenType TokenType, scope string) Policy {
	return func(c *Claims) bool {
		return c.TokenType == tokenType && c.HasScope(scope)
	}
}

// AnyOf allows claims satisfying at least one of policies.
func AnyOf(policies ...Policy) Policy {
	return func(c *Claims) bool {
		for _, p := range policies {
			if p(c) {
				return true
			}
		}
		return false
	}
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("invalid Authorization header format")
	}
	return strings.TrimSpace(token), nil
}

// Authenticate validates the request's bearer token and returns its claims.
func Authenticate(ctx context.Context, v TokenValidator, r *http.Request) (*Claims, error) {
	token, err := BearerToken(r)
	if err != nil {
		return nil, apperrors.UnAuthorizedError(err, "Missing or invalid bearer token.")
	}
	claims, err := v.Validate(ctx, token)
	if err != nil {
		return nil, apperrors.UnAuthorizedError(err, "Missing or invalid bearer token.")
	}
	return claims, nil
}

// Authorize checks claims against policy.
func Authorize(claims *Claims, policy Policy) error {
	if claims == nil || !policy(claims) {
		return apperrors.ForbiddenError(ErrForbidden, "Insufficient permissions.")
	}
	return nil
}

// Middleware authenticates every request and stores the claims in its context.
func Middleware(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := Authenticate(r.Context(), v, r)
			if err != nil {
				apphttp.DefaultErrorHandler(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// Require rejects requests whose context claims do not satisfy policy.
// It must run after Middleware.
func Require(policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				apphttp.DefaultErrorHandler(w, r, apperrors.UnAuthorizedError(ErrMissingToken, "Missing or invalid bearer token."))
				return
			}
			if err := Authorize(claims, policy); err != nil {
				apphttp.DefaultErrorHandler(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
