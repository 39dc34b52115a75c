package auth

import (
	"context"
	"strings"
	"testing"
	"time"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestTokens_IssueAndParse(t *testing.T) {
	tokens, err := NewTokens(Config{JWTSecret: secret, Audience: "api"})
	if err != nil {
		t.Fatal(err)
	}
	tok, err := tokens.Issue("u1", "pro")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := tokens.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID() != "u1" || claims.Tier != "pro" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokens_Rejects(t *testing.T) {
	tokens, _ := NewTokens(Config{JWTSecret: secret})
	other, _ := NewTokens(Config{JWTSecret: strings.Repeat("x", 32)})
	foreign, _ := other.Issue("u1", "")

	expiring, _ := NewTokens(Config{JWTSecret: secret, TokenTTL: time.Minute})
	expiring.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _ := expiring.Issue("u1", "")

	wrongIssuer, _ := NewTokens(Config{JWTSecret: secret, Issuer: "elsewhere"})
	otherIss, _ := wrongIssuer.Issue("u1", "")

	for name, tok := range map[string]string{
		"garbage":      "not-a-token",
		"wrong key":    foreign,
		"expired":      expired,
		"wrong issuer": otherIss,
	} {
		if _, err := tokens.Parse(tok); err == nil {
			t.Errorf("%s: token accepted", name)
		}
	}
}

func TestTokens_Disabled(t *testing.T) {
	tokens, _ := NewTokens(Config{})
	if tokens.Enabled() {
		t.Fatal("tokens enabled without secret")
	}
	if _, err := tokens.Parse("x"); err != ErrTokensDisabled {
		t.Errorf("err = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := (&Config{JWTSecret: "short"}).Validate(); err == nil {
		t.Error("short jwt secret accepted")
	}
	if err := (&Config{TriggerSecret: "short"}).Validate(); err == nil {
		t.Error("short trigger secret accepted")
	}
}

func TestContextAndSecret(t *testing.T) {
	ctx := context.Background()
	if UserID(ctx) != "" {
		t.Error("anonymous context has a user")
	}
	c := &Claims{}
	c.Subject = "u9"
	ctx = WithClaims(ctx, c)
	if UserID(ctx) != "u9" {
		t.Errorf("user = %q", UserID(ctx))
	}

	if !SecretMatches("s3cret-value", "s3cret-value") || SecretMatches("nope", "s3cret-value") {
		t.Error("secret comparison wrong")
	}
	if SecretMatches("", "") {
		t.Error("empty expected secret must never match")
	}
}
