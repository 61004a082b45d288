package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoVerificationKey is returned when no secret or JWKS is configured.
var ErrNoVerificationKey = errors.New("no JWT verification key configured")

// TokenValidator validates a raw bearer token.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// ValidatorConfig configures a Validator.
type ValidatorConfig struct {
	// Secrets are tried in order; list the current secret first and the previous one after it.
	Secrets  []string
	Issuer   string
	Audience string
	JWKSURL  string
}

// Validator validates HS256 tokens against the configured secrets, and RS256
// tokens against keys fetched from a JWKS endpoint.
type Validator struct {
	secrets  [][]byte
	issuer   string
	audience string
	jwks     *JWKSCache
	now      func() time.Time
}

// NewValidator returns a Validator for cfg.
func NewValidator(cfg ValidatorConfig) *Validator {
	v := &Validator{issuer: cfg.Issuer, audience: cfg.Audience, now: time.Now}
	seen := make(map[string]bool)
	for _, s := range cfg.Secrets {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		v.secrets = append(v.secrets, []byte(s))
	}
	if cfg.JWKSURL != "" {
		v.jwks = NewJWKSCache(cfg.JWKSURL)
	}
	return v
}

// Validate parses token, checks its signature, issuer, audience and expiry, and returns its claims.
// HS256 tokens are tried against every configured secret in order.
func (v *Validator) Validate(ctx context.Context, token string) (*Claims, error) {
	if len(v.secrets) == 0 && v.jwks == nil {
		return nil, ErrNoVerificationKey
	}

	candidates := v.secrets
	if len(candidates) == 0 {
		candidates = [][]byte{nil}
	}

	var lastErr error
	for _, secret := range candidates {
		claims, err := v.parse(ctx, token, secret)
		if err == nil {
			return claims, nil
		}
		lastErr = err
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			break
		}
	}
	return nil, lastErr
}

func (v *Validator) parse(ctx context.Context, token string, secret []byte) (*Claims, error) {
	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if secret == nil {
				return nil, fmt.Errorf("HMAC tokens are not accepted")
			}
			return secret, nil
		case *jwt.SigningMethodRSA:
			if v.jwks == nil {
				return nil, fmt.Errorf("RSA tokens are not accepted")
			}
			kid, ok := t.Header["kid"].(string)
			if !ok {
				return nil, fmt.Errorf("missing kid in token header")
			}
			return v.jwks.Key(ctx, kid)
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
	}, v.parserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	switch claims.TokenType {
	case TokenService, TokenAdmin, TokenCustomer:
	default:
		return nil, fmt.Errorf("invalid token type %q", claims.TokenType)
	}
	return claims, nil
}

func (v *Validator) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	return opts
}

// JWKSCache caches RSA keys of a JSON Web Key Set, refreshing on unknown kids.
type JWKSCache struct {
	url    string
	keys   map[string]*rsa.PublicKey
	keysMu sync.RWMutex
	client *http.Client
}

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// NewJWKSCache creates a cache for the JWKS at url.
func NewJWKSCache(url string) *JWKSCache {
	return &JWKSCache{
		url:    url,
		keys:   make(map[string]*rsa.PublicKey),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Key returns the key for kid, refreshing the set once if it is unknown.
func (c *JWKSCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.keysMu.RLock()
	key, ok := c.keys[kid]
	c.keysMu.RUnlock()
	if ok {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	c.keysMu.RLock()
	defer c.keysMu.RUnlock()
	if key, ok = c.keys[kid]; !ok {
		return nil, fmt.Errorf("key not found: %s", kid)
	}
	return key, nil
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var set JWKS
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	c.keysMu.Lock()
	defer c.keysMu.Unlock()
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		c.keys[k.Kid] = pub
	}
	return nil
}

// parseRSAPublicKey parses RSA public key components from base64url-encoded strings
func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// SignHS256 issues an HS256 token for claims. Used by internal callers and tests.
func SignHS256(secret string, claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
