package session

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/MrEthical07/cmsync/token"
)

// Role is the coarse permission level the backend assigns to a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole normalizes s. Unknown values map to [RoleUser].
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleUser
}

// User is the authenticated identity plus its profile fields.
type User struct {
	ID         string    `json:"userId"`
	Email      string    `json:"email,omitempty"`
	Name       string    `json:"name,omitempty"`
	FirstName  string    `json:"firstName,omitempty"`
	LastName   string    `json:"lastName,omitempty"`
	Role       Role      `json:"role,omitempty"`
	AvatarURL  string    `json:"avatarUrl,omitempty"`
	AvatarFile string    `json:"avatarFile,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Company    string    `json:"company,omitempty"`
	Position   string    `json:"position,omitempty"`
	Address    string    `json:"address,omitempty"`
	ExpiresAt  time.Time `json:"-"`
}

// UnmarshalJSON accepts the id spellings the backend uses across endpoints
// (userId, id, _id).
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var aux struct {
		plain
		ID    string `json:"id"`
		OID   string `json:"_id"`
		Role  string `json:"role"`
		Image string `json:"avatar"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	if u.ID == "" {
		u.ID = aux.ID
	}
	if u.ID == "" {
		u.ID = aux.OID
	}
	if aux.Role != "" {
		u.Role = ParseRole(aux.Role)
	}
	if u.AvatarURL == "" {
		u.AvatarURL = aux.Image
	}
	return nil
}

// DisplayName returns Name, or "First Last" when Name is empty.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsAdmin reports whether the user has the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

func userFromClaims(c *token.Claims) User {
	return User{
		ID:         c.SubjectID(),
		Email:      c.Email,
		Name:       c.Name,
		FirstName:  c.FirstName,
		LastName:   c.LastName,
		Role:       ParseRole(c.Role),
		AvatarURL:  c.AvatarURL,
		AvatarFile: c.AvatarFile,
		Phone:      c.Phone,
		Company:    c.Company,
		Position:   c.Position,
		Address:    c.Address,
		ExpiresAt:  c.Expiry(),
	}
}

// mergeProfile keeps identity from base and takes profile fields from p.
// Empty profile fields in p leave base untouched.
func mergeProfile(base, p User) User {
	out := base
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&out.Name, p.Name)
	set(&out.FirstName, p.FirstName)
	set(&out.LastName, p.LastName)
	set(&out.AvatarURL, p.AvatarURL)
	set(&out.AvatarFile, p.AvatarFile)
	set(&out.Phone, p.Phone)
	set(&out.Company, p.Company)
	set(&out.Position, p.Position)
	set(&out.Address, p.Address)
	if out.Email == "" {
		out.Email = p.Email
	}
	if out.ID == "" {
		out.ID = p.ID
	}
	return out
}
