package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is returned for tokens that do not decode to a claim set.
	ErrMalformed = errors.New("malformed token")
	// ErrMissingExpiry is returned when the claim set has no exp claim.
	ErrMissingExpiry = errors.New("token has no expiry")
)

// Claims is the claim set the backend embeds in its bearer tokens.
//
// Identity fields (UserID, Email, Role, expiry) are authoritative. Profile
// fields are optional and only used when the backend has not supplied a
// richer user object.
type Claims struct {
	UserID     string `json:"userId,omitempty"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	Name       string `json:"name,omitempty"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Position   string `json:"position,omitempty"`
	Company    string `json:"company,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
	AvatarFile string `json:"avatarFile,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID returns userId, falling back to the registered sub claim.
func (c *Claims) SubjectID() string {
	if c == nil {
		return ""
	}
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

var segments = jwt.NewParser(jwt.WithPaddingAllowed())

// Decode splits raw into its three segments and decodes the claim set in
// the middle one. Header and signature are not inspected.
func Decode(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected three segments", ErrMalformed)
	}

	payload, err := segments.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	claims := &Claims{}
	if err := json.Unmarshal(payload, claims); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", ErrMalformed, err)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrMissingExpiry)
	}
	return claims, nil
}

// IsValid reports whether raw decodes and expires strictly after now.
// Comparison is at second precision, like the exp claim itself.
func IsValid(raw string, now time.Time) bool {
	claims, err := Decode(raw)
	if err != nil {
		return false
	}
	return claims.ExpiresAt.Unix() > now.Unix()
}
