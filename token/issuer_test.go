package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssuerRoundTripEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	iss, err := NewIssuer(IssuerConfig{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "cm-backend",
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}

	raw, err := iss.Issue(Claims{UserID: "u-1", Email: "a@b.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := iss.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "u-1" || claims.Issuer != "cm-backend" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !IsValid(raw, time.Now()) {
		t.Fatal("freshly issued token must be valid client side")
	}
}

func TestIssuerRejectsTamperedAndExpired(t *testing.T) {
	iss, err := NewIssuer(IssuerConfig{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("secret-secret-secret-secret-1234")})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	other, err := NewIssuer(IssuerConfig{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("another-secret-another-secret-12")})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}

	forged, _ := other.Issue(Claims{UserID: "u-1"})
	if _, err := iss.Verify(forged); err == nil {
		t.Fatal("expected foreign signature to fail")
	}

	expired, _ := iss.Issue(Claims{UserID: "u-1", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	if _, err := iss.Verify(expired); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestNewIssuerValidation(t *testing.T) {
	cases := []IssuerConfig{
		{TTL: 0, SigningMethod: MethodHS256, PrivateKey: []byte("k")},
		{TTL: time.Minute, SigningMethod: MethodHS256},
		{TTL: time.Minute, SigningMethod: "rs256", PrivateKey: []byte("k")},
		{TTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: []byte("short")},
		{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: 5 * time.Minute},
	}
	for i, cfg := range cases {
		if _, err := NewIssuer(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
