package auth

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// ErrTokensDisabled is returned when no JWT secret is configured.
var ErrTokensDisabled = errors.New("auth: user tokens are not configured")

// Claims are the JWT claims flowgate issues and accepts. The subject is the
// user id.
type Claims struct {
	gojwt.RegisteredClaims
	Tier string `json:"tier,omitempty"`
}

// UserID returns the authenticated user.
func (c *Claims) UserID() string { return c.Subject }

// Tokens issues and verifies HS256 user tokens.
type Tokens struct {
	cfg Config
	now func() time.Time
}

// NewTokens creates a token service from cfg.
func NewTokens(cfg Config) (*Tokens, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Tokens{cfg: cfg, now: time.Now}, nil
}

// Enabled reports whether user tokens can be verified.
func (t *Tokens) Enabled() bool {
	return t != nil && t.cfg.JWTSecret != ""
}

// Issue signs a token for userID valid for the configured TTL.
func (t *Tokens) Issue(userID, tier string) (string, error) {
	if !t.Enabled() {
		return "", ErrTokensDisabled
	}
	now := t.now()
	claims := &Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    t.cfg.Issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(t.cfg.TokenTTL)),
		},
		Tier: tier,
	}
	if t.cfg.Audience != "" {
		claims.Audience = gojwt.ClaimStrings{t.cfg.Audience}
	}
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(t.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, expiry, issuer and audience and returns the
// claims.
func (t *Tokens) Parse(token string) (*Claims, error) {
	if !t.Enabled() {
		return nil, ErrTokensDisabled
	}
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuer(t.cfg.Issuer),
		gojwt.WithTimeFunc(t.now),
		gojwt.WithExpirationRequired(),
	}
	if t.cfg.Audience != "" {
		opts = append(opts, gojwt.WithAudience(t.cfg.Audience))
	}

	claims := &Claims{}
	parsed, err := gojwt.ParseWithClaims(token, claims, func(*gojwt.Token) (interface{}, error) {
		return []byte(t.cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("auth: invalid token")
	}
	return claims, nil
}
