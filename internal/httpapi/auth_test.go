package httpapi

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
)

func TestParseTokenAcceptsValidToken(t *testing.T) {
	auth := NewAuthManager(testSecret, "")
	token := signToken(t, testSecret, "kasir-a", domain.RoleCashier, time.Hour)

	actor, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if actor.Username != "kasir-a" || actor.Role != domain.RoleCashier {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager(testSecret, "")
	token := signToken(t, testSecret, "kasir-a", domain.RoleCashier, -time.Minute)

	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsOtherAlgorithms(t *testing.T) {
	auth := NewAuthManager(testSecret, "")
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "kasir-a",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: domain.RoleAdmin,
	}

	hs512, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(hs512); err == nil {
		t.Fatalf("expected HS512 token to be rejected")
	}

	none, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := auth.ParseToken(none); err == nil {
		t.Fatalf("expected unsigned token to be rejected")
	}
}

func TestParseTokenRejectsUnknownRoleAndMissingExpiry(t *testing.T) {
	auth := NewAuthManager(testSecret, "")

	if _, err := auth.ParseToken(signToken(t, testSecret, "kasir-a", "manager", time.Hour)); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}

	noExpiry, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "kasir-a"},
		Role:             domain.RoleCashier,
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(noExpiry); err == nil {
		t.Fatalf("expected token without expiry to be rejected")
	}
}

func TestParseTokenEnforcesIssuer(t *testing.T) {
	token := signToken(t, testSecret, "kasir-a", domain.RoleCashier, time.Hour)

	if _, err := NewAuthManager(testSecret, "smarttax-idp").ParseToken(token); err != nil {
		t.Fatalf("matching issuer rejected: %v", err)
	}
	if _, err := NewAuthManager(testSecret, "someone-else").ParseToken(token); err == nil {
		t.Fatalf("expected issuer mismatch to be rejected")
	}
}
