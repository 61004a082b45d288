package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "remittance-auth"
	testAudience = "remittance-services"
)

func testClaims(tt TokenType, role Role, scope ...string) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "svc-1",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TokenType: tt,
		Role:      role,
		Scope:     scope,
	}
}

func mustSign(t *testing.T, secret string, c *Claims) string {
	t.Helper()
	token, err := SignHS256(secret, c)
	require.NoError(t, err)
	return token
}

func TestValidator_SecretRotation(t *testing.T) {
	v := NewValidator(ValidatorConfig{
		Secrets:  []string{"current", "previous"},
		Issuer:   testIssuer,
		Audience: testAudience,
	})
	ctx := context.Background()

	claims, err := v.Validate(ctx, mustSign(t, "current", testClaims(TokenService, "")))
	require.NoError(t, err)
	assert.Equal(t, TokenService, claims.TokenType)

	claims, err = v.Validate(ctx, mustSign(t, "previous", testClaims(TokenAdmin, RoleOpsAdmin)))
	require.NoError(t, err)
	assert.Equal(t, RoleOpsAdmin, claims.Role)

	_, err = v.Validate(ctx, mustSign(t, "unknown", testClaims(TokenService, "")))
	require.Error(t, err)
}

func TestValidator_RejectsBadClaims(t *testing.T) {
	v := NewValidator(ValidatorConfig{Secrets: []string{"s"}, Issuer: testIssuer, Audience: testAudience})
	ctx := context.Background()

	wrongIssuer := testClaims(TokenService, "")
	wrongIssuer.Issuer = "someone-else"

	wrongAudience := testClaims(TokenService, "")
	wrongAudience.Audience = jwt.ClaimStrings{"other"}

	noExpiry := testClaims(TokenService, "")
	noExpiry.ExpiresAt = nil

	expired := testClaims(TokenService, "")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	badType := testClaims("robot", "")

	for name, c := range map[string]*Claims{
		"issuer":   wrongIssuer,
		"audience": wrongAudience,
		"no exp":   noExpiry,
		"expired":  expired,
		"type":     badType,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Validate(ctx, mustSign(t, "s", c)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidator_NoKeys(t *testing.T) {
	v := NewValidator(ValidatorConfig{})
	_, err := v.Validate(context.Background(), "x.y.z")
	require.ErrorIs(t, err, ErrNoVerificationKey)
}

func TestPolicies(t *testing.T) {
	svc := testClaims(TokenService, "", ScopeReconciliationProxy)
	admin := testClaims(TokenAdmin, RoleOpsViewer)
	customer := testClaims(TokenCustomer, "")

	assert.True(t, RequireTokenType(TokenService, TokenCustomer)(customer))
	assert.False(t, RequireTokenType(TokenService)(admin))
	assert.True(t, RequireRole(RoleOpsViewer, RoleOpsAdmin)(admin))
	assert.False(t, RequireRole(RoleOpsAdmin)(admin))
	assert.True(t, RequireScope(TokenService, ScopeReconciliationProxy)(svc))
	assert.False(t, RequireScope(TokenAdmin, ScopeReconciliationProxy)(svc))

	p := AnyOf(RequireRole(RoleOpsAdmin), RequireScope(TokenService, ScopeReconciliationProxy))
	assert.True(t, p(svc))
	assert.False(t, p(admin))
	assert.Error(t, Authorize(nil, p))
}

func TestMiddlewareAndRequire(t *testing.T) {
	v := NewValidator(ValidatorConfig{Secrets: []string{"s"}, Issuer: testIssuer, Audience: testAudience})

	r := chi.NewRouter()
	r.Use(Middleware(v))
	r.With(Require(RequireTokenType(TokenService))).Get("/svc", func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims.Subject != "svc-1" {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "malformed", header: "Token abc", want: http.StatusUnauthorized},
		{name: "bad signature", header: "Bearer " + mustSign(t, "nope", testClaims(TokenService, "")), want: http.StatusUnauthorized},
		{name: "wrong type", header: "Bearer " + mustSign(t, "s", testClaims(TokenCustomer, "")), want: http.StatusForbidden},
		{name: "ok", header: "Bearer " + mustSign(t, "s", testClaims(TokenService, "")), want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/svc", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d (%s)", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestVerifySignedPayload(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	body := []byte(`{"payoutId":"pay_1"}`)
	sig := SignPayload(body, ts, "whsec")

	assert.True(t, VerifySignedPayload(body, ts, sig, "whsec", 5*time.Minute, now))
	assert.True(t, VerifySignedPayload(body, ts, sig, "whsec", 5*time.Minute, now.Add(-4*time.Minute)))
	assert.False(t, VerifySignedPayload(body, ts, sig, "whsec", 5*time.Minute, now.Add(6*time.Minute)))
	assert.False(t, VerifySignedPayload(body, ts, sig, "other", 5*time.Minute, now))
	assert.False(t, VerifySignedPayload([]byte(`{}`), ts, sig, "whsec", 5*time.Minute, now))
	assert.False(t, VerifySignedPayload(body, "not-a-number", sig, "whsec", 5*time.Minute, now))
	assert.False(t, VerifySignedPayload(body, ts, "zz", "whsec", 5*time.Minute, now))
}
