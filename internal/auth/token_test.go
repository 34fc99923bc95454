package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskhub.io/internal/model"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestJWTIssueAndVerify(t *testing.T) {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	tokens, err := NewJWTTokens("secret", "taskhub", fixedClock(now))
	if err != nil {
		t.Fatalf("NewJWTTokens: %v", err)
	}
	tok, exp, err := tokens.Issue(TokenClaims{UserID: "u1", Role: model.RoleTenantAdmin, TenantID: "t1"}, DefaultTokenTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry %s", exp)
	}
	claims, err := tokens.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "u1" || claims.Role != model.RoleTenantAdmin || claims.TenantID != "t1" || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestJWTVerifyRejects(t *testing.T) {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	tokens, _ := NewJWTTokens("secret", "taskhub", fixedClock(now))
	good, _, _ := tokens.Issue(TokenClaims{UserID: "u1", Role: model.RoleUser, TenantID: "t1"}, time.Hour)

	other, _ := NewJWTTokens("other-secret", "taskhub", fixedClock(now))
	forged, _, _ := other.Issue(TokenClaims{UserID: "u1", Role: model.RoleUser, TenantID: "t1"}, time.Hour)

	foreign, _ := NewJWTTokens("secret", "someone-else", fixedClock(now))
	wrongIssuer, _, _ := foreign.Issue(TokenClaims{UserID: "u1", Role: model.RoleUser, TenantID: "t1"}, time.Hour)

	orphan, _, _ := tokens.Issue(TokenClaims{UserID: "u1", Role: model.RoleUser}, time.Hour)

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "u1", "role": "tenant_admin", "tenant_id": "t1", "iss": "taskhub",
		"exp": now.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"empty":          "",
		"garbage":        "not.a.token",
		"tampered":       good[:len(good)-2] + "xx",
		"wrong secret":   forged,
		"wrong issuer":   wrongIssuer,
		"missing tenant": orphan,
		"alg none":       unsigned,
	}
	for name, tok := range cases {
		if _, err := tokens.Verify(tok); !errors.Is(err, model.ErrInvalidToken) {
			t.Fatalf("%s: expected invalid token, got %v", name, err)
		}
	}
}

func TestJWTVerifyExpired(t *testing.T) {
	issuedAt := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	issuer, _ := NewJWTTokens("secret", "taskhub", fixedClock(issuedAt))
	tok, _, _ := issuer.Issue(TokenClaims{UserID: "u1", Role: model.RoleSuperAdmin}, DefaultTokenTTL)

	later, _ := NewJWTTokens("secret", "taskhub", fixedClock(issuedAt.Add(25*time.Hour)))
	_, err := later.Verify(tok)
	if !errors.Is(err, model.ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if model.Code(err) != model.CodeTokenExpired {
		t.Fatalf("unexpected code %s", model.Code(err))
	}
}

func TestNewJWTTokensRequiresSecret(t *testing.T) {
	if _, err := NewJWTTokens("  ", "taskhub", nil); err == nil || !strings.Contains(err.Error(), "secret") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}
