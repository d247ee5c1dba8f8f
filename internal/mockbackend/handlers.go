package mockbackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/MrEthical07/cmsync/api"
	"github.com/MrEthical07/cmsync/session"
)

var errBadBody = echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")

func bind(c echo.Context, v any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(v); err != nil {
		return errBadBody
	}
	return nil
}

func notFound(what string) error {
	return echo.NewHTTPError(http.StatusNotFound, what+" not found")
}

// auth

func (s *Server) login(c echo.Context) error {
	var in api.LoginInput
	if err := bind(c, &in); err != nil {
		return err
	}
	s.mu.Lock()
	a, ok := s.accounts[strings.ToLower(strings.TrimSpace(in.Email))]
	var (
		u    session.User
		hash string
	)
	if ok {
		u, hash = a.user, a.hash
	}
	s.mu.Unlock()
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}
	match, err := verifyPassword(in.Password, hash)
	if err != nil || !match {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}
	return s.respondAuth(c, http.StatusOK, u, "")
}

func (s *Server) register(c echo.Context) error {
	var in api.RegisterInput
	if err := bind(c, &in); err != nil {
		return err
	}
	if in.Name == "" || in.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Name and email are required")
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.mu.Lock()
	u, err := s.addLocked(session.User{Name: in.Name, Email: in.Email, Company: in.CompanyType}, hash)
	if err == nil {
		s.recordLocked("New account", u.Name+" joined", "user")
	}
	s.mu.Unlock()
	if errors.Is(err, errDuplicateEmail) {
		return echo.NewHTTPError(http.StatusConflict, "Email already registered")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return s.respondAuth(c, http.StatusCreated, u, "Account created")
}

func (s *Server) respondAuth(c echo.Context, status int, u session.User, message string) error {
	tok, err := s.sign(u)
	if err != nil {
		return err
	}
	return c.JSON(status, api.AuthResponse{Token: tok, User: &u, Message: message})
}

func (s *Server) forgotPassword(c echo.Context) error {
	var in api.ForgotPasswordInput
	if err := bind(c, &in); err != nil {
		return err
	}
	s.mu.Lock()
	if a, ok := s.accounts[strings.ToLower(strings.TrimSpace(in.Email))]; ok {
		s.resets[uuid.NewString()] = a.user.ID
	}
	s.mu.Unlock()
	// The answer does not depend on whether the account exists.
	return c.JSON(http.StatusOK, api.MessageResponse{Message: "If the account exists, a reset link has been sent"})
}

func (s *Server) resetPassword(c echo.Context) error {
	var in api.ResetPasswordInput
	if err := bind(c, &in); err != nil {
		return err
	}
	hash, err := hashPassword(in.NewPassword)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.resets[in.Token]
	a := s.byID[id]
	if !ok || a == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid or expired reset token")
	}
	delete(s.resets, in.Token)
	a.hash = hash
	return c.JSON(http.StatusOK, api.MessageResponse{Message: "Password has been reset"})
}

// dashboard

func (s *Server) dashboard(c echo.Context) error {
	a := current(c)
	s.mu.Lock()
	defer s.mu.Unlock()

	var open, resolved, total int
	for _, t := range s.tickets {
		if t.Hidden {
			continue
		}
		total++
		switch t.Status {
		case "open", "in-progress":
			open++
		case "resolved", "closed":
			resolved++
		}
	}
	rate := "0%"
	if total > 0 {
		rate = strconv.Itoa(resolved*100/total) + "%"
	}
	u := a.user
	return c.JSON(http.StatusOK, api.DashboardData{
		Stats: api.DashboardStats{
			OpenTickets:     open,
			AvgResponseTime: "2h",
			ResolutionRate:  rate,
			NewClients:      len(s.clients),
		},
		Activities:    append([]api.Activity{}, s.activities...),
		Notifications: []api.Notification{},
		User:          &u,
	})
}

// tickets

func (s *Server) listTickets(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		if !t.Hidden {
			out = append(out, t)
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) createTicket(c echo.Context) error {
	var in api.CreateTicketInput
	if err := bind(c, &in); err != nil {
		return err
	}
	if in.Subject == "" || in.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Subject and message are required")
	}
	a := current(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.stamp()
	t := api.Ticket{
		ID:           api.ID(uuid.NewString()),
		Subject:      in.Subject,
		Message:      in.Message,
		Priority:     in.Priority,
		Status:       "open",
		Client:       a.user.DisplayName(),
		ClientAvatar: a.user.AvatarURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.tickets = append(s.tickets, t)
	s.recordLocked("Ticket opened", t.Subject, "ticket")
	return c.JSON(http.StatusCreated, t)
}

// ticketLocked returns the index of the ticket named by the id path param.
func (s *Server) ticketLocked(c echo.Context) (int, error) {
	id := api.ID(c.Param("id"))
	for i := range s.tickets {
		if s.tickets[i].ID == id {
			return i, nil
		}
	}
	return -1, notFound("Ticket")
}

func (s *Server) hideTicket(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.ticketLocked(c)
	if err != nil {
		return err
	}
	s.tickets[i].Hidden = true
	s.tickets[i].UpdatedAt = s.stamp()
	return c.JSON(http.StatusOK, api.MessageResponse{Message: "Ticket hidden"})
}

func (s *Server) deleteTicket(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.ticketLocked(c)
	if err != nil {
		return err
	}
	s.tickets = append(s.tickets[:i], s.tickets[i+1:]...)
	return c.JSON(http.StatusOK, api.MessageResponse{Message: "Ticket deleted"})
}

func (s *Server) replyTicket(c echo.Context) error {
	var in api.ReplyInput
	if err := bind(c, &in); err != nil {
		return err
	}
	if in.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Message is required")
	}
	a := current(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.ticketLocked(c)
	if err != nil {
		return err
	}
	t := &s.tickets[i]
	t.Replies = append(t.Replies, api.Reply{Message: in.Message, Author: a.user.DisplayName(), CreatedAt: s.stamp()})
	if t.Status == "open" {
		t.Status = "in-progress"
	}
	t.UpdatedAt = s.stamp()
	return c.JSON(http.StatusOK, *t)
}

func (s *Server) evaluateTicket(c echo.Context) error {
	var in api.EvaluateInput
	if err := bind(c, &in); err != nil {
		return err
	}
	if in.Rating < 1 || in.Rating > 5 {
		return echo.NewHTTPError(http.StatusBadRequest, "Rating must be between 1 and 5")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.ticketLocked(c)
	if err != nil {
		return err
	}
	t := &s.tickets[i]
	t.Rating = in.Rating
	t.Comment = in.Comment
	t.Status = "resolved"
	t.UpdatedAt = s.stamp()
	return c.JSON(http.StatusOK, *t)
}

// posts

func (s *Server) listPosts(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPostsPerPage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	total := len(s.posts)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)
	return c.JSON(http.StatusOK, api.PostsPage{
		Posts: append([]api.Post{}, s.posts[start:end]...),
		Total: total,
	})
}

func (s *Server) postLocked(c echo.Context) (int, error) {
	id := api.ID(c.Param("id"))
	for i := range s.posts {
		if s.posts[i].ID == id {
			return i, nil
		}
	}
	return -1, notFound("Post")
}

func (s *Server) getPost(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.postLocked(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.posts[i])
}

func validPost(in api.PostInput) error {
	if in.Title == "" || in.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Title and content are required")
	}
	if len(in.Platforms) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Select at least one platform")
	}
	return nil
}

func applyPost(p *api.Post, in api.PostInput) {
	p.Title = in.Title
	p.Content = in.Content
	p.Platforms = in.Platforms
	p.ScheduledAt = in.ScheduledAt
	p.Image = in.Image
	p.Status = in.Status
	if p.Status == "" {
		p.Status = "published"
		if in.ScheduledAt != "" {
			p.Status = "scheduled"
		}
	}
	p.PlatformStatus = p.PlatformStatus[:0]
	for _, name := range in.Platforms {
		p.PlatformStatus = append(p.PlatformStatus, api.PlatformStatus{Platform: name, Status: p.Status})
	}
}

func (s *Server) createPost(c echo.Context) error {
	var in api.PostInput
	if err := bind(c, &in); err != nil {
		return err
	}
	if err := validPost(in); err != nil {
		return err
	}
	a := current(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.stamp()
	p := api.Post{ID: api.ID(uuid.NewString()), Date: now, User: a.user.ID, CreatedAt: now, UpdatedAt: now}
	applyPost(&p, in)
	// Newest first.
	s.posts = append([]api.Post{p}, s.posts...)
	s.recordLocked("Post "+p.Status, p.Title, "post")
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) updatePost(c echo.Context) error {
	var in api.PostInput
	if err := bind(c, &in); err != nil {
		return err
	}
	if err := validPost(in); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.postLocked(c)
	if err != nil {
		return err
	}
	applyPost(&s.posts[i], in)
	s.posts[i].UpdatedAt = s.stamp()
	return c.JSON(http.StatusOK, s.posts[i])
}

func (s *Server) deletePost(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.postLocked(c)
	if err != nil {
		return err
	}
	s.posts = append(s.posts[:i], s.posts[i+1:]...)
	return c.JSON(http.StatusOK, api.MessageResponse{Message: "Post deleted"})
}

// clients

func (s *Server) listClients(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]any{"clients": append([]api.Client{}, s.clients...)})
}

func (s *Server) createClient(c echo.Context) error {
	var in api.ClientInput
	if err := bind(c, &in); err != nil {
		return err
	}
	if in.Name == "" || in.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Name and email are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.clients {
		if strings.EqualFold(existing.Email, in.Email) {
			return echo.NewHTTPError(http.StatusConflict, "A client with this email already exists")
		}
	}
	cl := api.Client{
		ID:             api.ID(uuid.NewString()),
		Name:           in.Name,
		Email:          in.Email,
		Phone:          in.Phone,
		Address:        in.Address,
		Status:         in.Status,
		SocialNetworks: in.SocialNetworks,
	}
	if cl.Status == "" {
		cl.Status = "Active"
	}
	if cl.SocialNetworks == nil {
		cl.SocialNetworks = []api.SocialNetwork{}
	}
	s.clients = append(s.clients, cl)
	s.recordLocked("New client", cl.Name, "client")
	return c.JSON(http.StatusCreated, map[string]any{"client": cl, "message": "Client created"})
}

func (s *Server) deleteClient(c echo.Context) error {
	id := api.ID(c.Param("id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.clients {
		if s.clients[i].ID == id {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			return c.JSON(http.StatusOK, api.MessageResponse{Message: "Client deleted"})
		}
	}
	return notFound("Client")
}

// profile

func (s *Server) updateProfile(c echo.Context) error {
	var in api.ProfileInput
	if err := bind(c, &in); err != nil {
		return err
	}
	a := current(c)
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.Name != "" {
		a.user.Name = in.Name
	}
	if in.AvatarURL != "" {
		a.user.AvatarURL = in.AvatarURL
	}
	if in.AvatarFile != "" {
		a.user.AvatarFile = in.AvatarFile
	}
	resp := api.ProfileResponse{Message: "Profile updated"}
	email := strings.TrimSpace(in.Email)
	if email != "" && !strings.EqualFold(email, a.user.Email) {
		if _, taken := s.accounts[strings.ToLower(email)]; taken {
			return echo.NewHTTPError(http.StatusConflict, "Email already registered")
		}
		for tok, p := range s.pending {
			if p.userID == a.user.ID {
				delete(s.pending, tok)
			}
		}
		s.pending[uuid.NewString()] = pendingChange{
			userID:  a.user.ID,
			email:   email,
			expires: s.now().Add(s.cfg.ConfirmTTL),
		}
		resp.PendingConfirmation = true
		resp.Message = fmt.Sprintf("Check %s to confirm the new address", email)
	}
	u := a.user
	resp.User = &u
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) uploadAvatar(c echo.Context) error {
	fh, err := c.FormFile("avatar")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "No file uploaded")
	}
	if !strings.HasPrefix(fh.Header.Get(echo.HeaderContentType), "image/") && fh.Header.Get(echo.HeaderContentType) != echo.MIMEOctetStream {
		return echo.NewHTTPError(http.StatusBadRequest, "Only images are allowed")
	}
	a := current(c)
	name := uuid.NewString() + "-" + fh.Filename
	s.mu.Lock()
	a.user.AvatarURL = "/uploads/avatars/" + name
	a.user.AvatarFile = name
	u := a.user
	s.mu.Unlock()
	return c.JSON(http.StatusOK, api.AvatarResponse{URL: u.AvatarURL, Filename: u.AvatarFile})
}

func (s *Server) changePassword(c echo.Context) error {
	var in api.ChangePasswordInput
	if err := bind(c, &in); err != nil {
		return err
	}
	a := current(c)
	s.mu.Lock()
	hash := a.hash
	s.mu.Unlock()
	if ok, err := verifyPassword(in.CurrentPassword, hash); err != nil || !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "Current password is incorrect")
	}
	next, err := hashPassword(in.NewPassword)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.mu.Lock()
	a.hash = next
	s.mu.Unlock()
	return c.JSON(http.StatusOK, api.ProfileResponse{Message: "Password updated"})
}

func (s *Server) confirmUpdate(c echo.Context) error {
	tok := c.QueryParam("token")
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[tok]
	if !ok || !s.now().Before(p.expires) {
		delete(s.pending, tok)
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid or expired confirmation link")
	}
	delete(s.pending, tok)
	a := s.byID[p.userID]
	if a == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid or expired confirmation link")
	}
	delete(s.accounts, strings.ToLower(a.user.Email))
	a.user.Email = p.email
	s.accounts[strings.ToLower(p.email)] = a
	return c.JSON(http.StatusOK, api.MessageResponse{Message: "Email address confirmed"})
}

// settings

func (s *Server) getSettings(c echo.Context) error {
	a := current(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.settings[a.user.ID]
	if doc == nil {
		doc = api.SettingsDocument{"notifications": true, "theme": "light"}
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) updateSettings(c echo.Context) error {
	var in api.SettingsDocument
	if err := bind(c, &in); err != nil {
		return err
	}
	a := current(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.settings[a.user.ID]
	if doc == nil {
		doc = api.SettingsDocument{"notifications": true, "theme": "light"}
	}
	for k, v := range in {
		doc[k] = v
	}
	s.settings[a.user.ID] = doc
	return c.JSON(http.StatusOK, doc)
}
