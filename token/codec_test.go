package token

import (
	"encoding/base64"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func rawToken(header, payload string) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(header)) + "." + enc.EncodeToString([]byte(payload)) + ".sig"
}

func signedHS256(t *testing.T, exp time.Time) string {
	t.Helper()
	iss, err := NewIssuer(IssuerConfig{TTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	tok, err := iss.Issue(Claims{
		UserID: "u-1",
		Email:  "a@b.com",
		Role:   "admin",
		Name:   "A B",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return tok
}

func TestDecodeSignedToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	claims, err := Decode(signedHS256(t, exp))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.SubjectID() != "u-1" || claims.Email != "a@b.com" || claims.Role != "admin" || claims.Name != "A B" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.Expiry().Equal(exp) {
		t.Fatalf("expected expiry %v, got %v", exp, claims.Expiry())
	}
}

func TestIsValidRejectsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cases := []struct {
		name string
		exp  time.Time
		want bool
	}{
		{"expired long ago", now.Add(-time.Hour), false},
		{"expires exactly now", now, false},
		{"expires within the same second", now.Add(500 * time.Millisecond), false},
		{"expires next second", now.Add(time.Second), true},
		{"expires in an hour", now.Add(time.Hour), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tok := rawToken(`{"alg":"HS256","typ":"JWT"}`, `{"userId":"u","exp":`+itoa(tc.exp.Unix())+`}`)
			if got := IsValid(tok, now); got != tc.want {
				t.Fatalf("IsValid=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"abc",
		"a.b",
		"a.b.c.d",
		"...",
		"!!!.###.$$$",
		rawToken(`{"alg":"HS256"}`, `not json`),
		rawToken(`{"alg":"HS256"}`, `{"exp":"tomorrow"}`),
	}
	for _, in := range inputs {
		_, err := Decode(in)
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("Decode(%q): expected ErrMalformed, got %v", in, err)
		}
		if IsValid(in, time.Now()) {
			t.Fatalf("IsValid(%q) must be false", in)
		}
	}
}

func TestDecodeMissingExpiry(t *testing.T) {
	_, err := Decode(rawToken(`{"alg":"HS256"}`, `{"userId":"u"}`))
	if !errors.Is(err, ErrMissingExpiry) || !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMissingExpiry wrapped in ErrMalformed, got %v", err)
	}
}

func TestDecodeReadsOnlyThePayload(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"userId":"u-7","exp":` + itoa(exp) + `}`))
	for _, header := range []string{"x", "", "!!!", base64.RawURLEncoding.EncodeToString([]byte("not json"))} {
		claims, err := Decode(header + "." + payload + ".sig")
		if err != nil {
			t.Fatalf("header %q: %v", header, err)
		}
		if claims.SubjectID() != "u-7" {
			t.Fatalf("header %q: subject %q", header, claims.SubjectID())
		}
	}
}

func TestDecodeAcceptsUnknownAlgAndPadding(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	payload := base64.URLEncoding.EncodeToString([]byte(`{"sub":"u-9","exp":` + itoa(exp) + `}`))
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"XS999"}`))
	claims, err := Decode(header + "." + payload + ".")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.SubjectID() != "u-9" {
		t.Fatalf("expected sub fallback, got %q", claims.SubjectID())
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
