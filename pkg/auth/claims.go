// Package auth validates bearer tokens, carries claims through the request
// context and verifies HMAC signed callback payloads.
package auth

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes machine, operator and end-user tokens.
type TokenType string

// Token types.
const (
	TokenService  TokenType = "service"
	TokenAdmin    TokenType = "admin"
	TokenCustomer TokenType = "customer"
)

// Role is an admin token role.
type Role string

// Admin roles.
const (
	RoleOpsViewer        Role = "ops_viewer"
	RoleOpsAdmin         Role = "ops_admin"
	RoleComplianceViewer Role = "compliance_viewer"
	RoleComplianceAdmin  Role = "compliance_admin"
)

// ScopeReconciliationProxy lets a service token act on the reconciliation ops endpoints.
const ScopeReconciliationProxy = "ops:reconciliation:proxy"

// Claims are the validated contents of a bearer token.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"tokenType"`
	Role      Role      `json:"role,omitempty"`
	Scope     []string  `json:"scope,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
}

// HasRole reports whether the claims carry one of roles.
func (c *Claims) HasRole(roles ...Role) bool {
	return c.Role != "" && slices.Contains(roles, c.Role)
}

// HasScope reports whether the claims carry scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scope, scope)
}
