package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/MrEthical07/cmsync/session"
)

// ID is an identifier the backend sends either as a string or as a number.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// mongoID picks the first non-empty of the id spellings.
func mongoID(ids ...ID) ID {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}

// Ticket is a support ticket.
type Ticket struct {
	ID           ID      `json:"id"`
	Subject      string  `json:"subject"`
	Message      string  `json:"message,omitempty"`
	Priority     string  `json:"priority,omitempty"`
	Status       string  `json:"status,omitempty"`
	Client       string  `json:"client,omitempty"`
	ClientAvatar string  `json:"clientAvatar,omitempty"`
	Hidden       bool    `json:"hidden,omitempty"`
	Rating       int     `json:"rating,omitempty"`
	Comment      string  `json:"comment,omitempty"`
	Replies      []Reply `json:"replies,omitempty"`
	CreatedAt    string  `json:"createdAt,omitempty"`
	UpdatedAt    string  `json:"updatedAt,omitempty"`
}

func (t *Ticket) UnmarshalJSON(data []byte) error {
	type plain Ticket
	var aux struct {
		plain
		OID         ID     `json:"_id"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = Ticket(aux.plain)
	t.ID = mongoID(t.ID, aux.OID)
	if t.Message == "" {
		t.Message = aux.Description
	}
	return nil
}

// Reply is one message in a ticket thread.
type Reply struct {
	Message   string `json:"message"`
	Author    string `json:"author,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Reactions counts engagement on a published post.
type Reactions struct {
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
	Shares   int `json:"shares"`
}

// PlatformStatus is the publication state of a post on one network.
type PlatformStatus struct {
	Platform     string `json:"platform"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Post is a social media post, scheduled or published.
type Post struct {
	ID             ID               `json:"id"`
	Title          string           `json:"title"`
	Content        string           `json:"content"`
	Date           string           `json:"date,omitempty"`
	ScheduledAt    string           `json:"scheduledAt,omitempty"`
	Image          string           `json:"image,omitempty"`
	Platforms      []string         `json:"platforms"`
	Reactions      Reactions        `json:"reactions"`
	Status         string           `json:"status"`
	PlatformStatus []PlatformStatus `json:"platformStatus,omitempty"`
	ErrorMessage   string           `json:"errorMessage,omitempty"`
	User           string           `json:"user,omitempty"`
	CreatedAt      string           `json:"createdAt,omitempty"`
	UpdatedAt      string           `json:"updatedAt,omitempty"`
}

func (p *Post) UnmarshalJSON(data []byte) error {
	type plain Post
	var aux struct {
		plain
		OID ID `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Post(aux.plain)
	p.ID = mongoID(p.ID, aux.OID)
	return nil
}

// PostsPage is one page of the post list.
type PostsPage struct {
	Posts []Post `json:"posts"`
	Total int    `json:"total"`
}

// SocialNetwork is a client's account on one network.
type SocialNetwork struct {
	Type   string `json:"type"`
	Handle string `json:"handle"`
	Status string `json:"status"`
}

// Client is an entry of the client directory.
type Client struct {
	ID             ID              `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone,omitempty"`
	Address        string          `json:"address,omitempty"`
	Status         string          `json:"status,omitempty"`
	SocialNetworks []SocialNetwork `json:"socialNetworks"`
}

func (c *Client) UnmarshalJSON(data []byte) error {
	type plain Client
	var aux struct {
		plain
		OID ID `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Client(aux.plain)
	c.ID = mongoID(c.ID, aux.OID)
	return nil
}

// DashboardStats are the headline numbers on the dashboard.
type DashboardStats struct {
	OpenTickets     int    `json:"openTickets"`
	AvgResponseTime string `json:"avgResponseTime"`
	ResolutionRate  string `json:"resolutionRate"`
	NewClients      int    `json:"newClients"`
}

// Activity is one entry of the recent activity feed.
type Activity struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Time        string `json:"time"`
	Icon        string `json:"icon,omitempty"`
	Type        string `json:"type,omitempty"`
}

// Notification is a dashboard notification.
type Notification struct {
	ID      ID     `json:"id,omitempty"`
	Message string `json:"message"`
	Read    bool   `json:"read,omitempty"`
	Time    string `json:"time,omitempty"`
}

// DashboardData is the payload of GET /dashboard.
type DashboardData struct {
	Stats         DashboardStats `json:"stats"`
	Activities    []Activity     `json:"activities"`
	Notifications []Notification `json:"notifications"`
	User          *session.User  `json:"user,omitempty"`
}

func (d *DashboardData) UnmarshalJSON(data []byte) error {
	type plain DashboardData
	var aux struct {
		plain
		Activity []Activity `json:"activity"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = DashboardData(aux.plain)
	if len(d.Activities) == 0 {
		d.Activities = aux.Activity
	}
	return nil
}

// SettingsDocument is the user's settings, opaque to the SDK.
type SettingsDocument map[string]any

// MessageResponse is returned by endpoints that only acknowledge.
type MessageResponse struct {
	Message string `json:"message"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token   string        `json:"token"`
	User    *session.User `json:"user,omitempty"`
	Message string        `json:"message,omitempty"`
}

// ProfileResponse is returned by profile and password updates.
type ProfileResponse struct {
	User                *session.User `json:"user,omitempty"`
	Message             string        `json:"message,omitempty"`
	PendingConfirmation bool          `json:"pendingConfirmation,omitempty"`
}

// AvatarResponse is returned by the avatar upload.
type AvatarResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// LoginInput are the login form fields.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterInput are the sign-up form fields.
type RegisterInput struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	CompanyType string `json:"companyType,omitempty"`
}

// ForgotPasswordInput requests a reset link.
type ForgotPasswordInput struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordInput completes a reset.
type ResetPasswordInput struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

// CreateTicketInput opens a ticket.
type CreateTicketInput struct {
	Subject  string `json:"subject" validate:"required"`
	Message  string `json:"message" validate:"required"`
	Priority string `json:"priority" validate:"required,oneof=low medium high"`
}

// ReplyInput answers a ticket.
type ReplyInput struct {
	TicketID string `json:"-" validate:"required"`
	Message  string `json:"message" validate:"required"`
}

// EvaluateInput rates how a ticket was handled.
type EvaluateInput struct {
	TicketID string `json:"-" validate:"required"`
	Rating   int    `json:"rating" validate:"min=1,max=5"`
	Comment  string `json:"comment,omitempty"`
}

// PostInput is the editable part of a post.
type PostInput struct {
	Title       string   `json:"title" validate:"required"`
	Content     string   `json:"content" validate:"required"`
	Platforms   []string `json:"platforms" validate:"required,min=1"`
	ScheduledAt string   `json:"scheduledAt,omitempty"`
	Image       string   `json:"image,omitempty"`
	Status      string   `json:"status,omitempty" validate:"omitempty,oneof=draft published failed pending scheduled"`
}

// UpdatePostInput replaces a post.
type UpdatePostInput struct {
	ID   string    `json:"-" validate:"required"`
	Post PostInput `json:"post"`
}

// ClientInput creates a client.
type ClientInput struct {
	Name           string          `json:"name" validate:"required"`
	Email          string          `json:"email" validate:"required,email"`
	Phone          string          `json:"phone,omitempty"`
	Address        string          `json:"address,omitempty"`
	Status         string          `json:"status,omitempty" validate:"omitempty,oneof=Active Inactive"`
	SocialNetworks []SocialNetwork `json:"socialNetworks,omitempty"`
}

// ProfileInput updates profile fields. Empty fields are left unchanged.
type ProfileInput struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
	AvatarFile string `json:"avatarFile,omitempty"`
}

// ChangePasswordInput changes the account password.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,nefield=CurrentPassword"`
}

// AvatarUpload is a new profile picture.
type AvatarUpload struct {
	Filename string    `validate:"required"`
	Content  io.Reader `validate:"required"`
}

func itoa(n int) string { return strconv.Itoa(n) }
