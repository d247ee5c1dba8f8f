package mockbackend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/MrEthical07/cmsync/api"
	"github.com/MrEthical07/cmsync/session"
	"github.com/MrEthical07/cmsync/token"
)

// Defaults applied by [New].
const (
	DefaultTokenTTL     = time.Hour
	DefaultConfirmTTL   = 24 * time.Hour
	defaultPostsPerPage = 10
)

// Config configures a [Server].
type Config struct {
	// Secret signs HS256 tokens. A random secret is generated when empty.
	Secret   []byte
	Issuer   string
	TokenTTL time.Duration
	// ConfirmTTL bounds how long an emailed confirmation link stays valid.
	ConfirmTTL time.Duration
	// Latency is added to every request.
	Latency time.Duration
	Logger  *slog.Logger
}

type account struct {
	user session.User
	hash string
}

type pendingChange struct {
	userID  string
	email   string
	expires time.Time
}

type injectedFailure struct {
	status  int
	message string
}

// Server is an in-memory dashboard backend.
type Server struct {
	cfg    Config
	echo   *echo.Echo
	issuer *token.Issuer
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	accounts   map[string]*account // by lower-case email
	byID       map[string]*account
	tickets    []api.Ticket
	posts      []api.Post
	clients    []api.Client
	activities []api.Activity
	settings   map[string]api.SettingsDocument
	pending    map[string]pendingChange
	resets     map[string]string // reset token -> user id
	hits       map[string]int
	failures   map[string]injectedFailure
}

// New returns a Server with no accounts.
func New(cfg Config) (*Server, error) {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.ConfirmTTL <= 0 {
		cfg.ConfirmTTL = DefaultConfirmTTL
	}
	if len(cfg.Secret) == 0 {
		cfg.Secret = []byte(uuid.NewString() + uuid.NewString())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	issuer, err := token.NewIssuer(token.IssuerConfig{
		TTL:           cfg.TokenTTL,
		SigningMethod: token.MethodHS256,
		PrivateKey:    cfg.Secret,
		Issuer:        cfg.Issuer,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		issuer:   issuer,
		logger:   cfg.Logger,
		now:      time.Now,
		accounts: make(map[string]*account),
		byID:     make(map[string]*account),
		settings: make(map[string]api.SettingsDocument),
		pending:  make(map[string]pendingChange),
		resets:   make(map[string]string),
		hits:     make(map[string]int),
		failures: make(map[string]injectedFailure),
	}
	s.echo = s.routes()
	return s, nil
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(s.track)
	if s.cfg.Latency > 0 {
		e.Use(s.delay)
	}

	e.POST("/auth/login", s.login)
	e.POST("/auth/register", s.register)
	e.POST("/auth/forgot-password", s.forgotPassword)
	e.POST("/auth/reset-password", s.resetPassword)

	auth := s.authenticate
	e.GET("/dashboard", s.dashboard, auth)

	e.GET("/tickets", s.listTickets, auth)
	e.POST("/tickets", s.createTicket, auth)
	e.PATCH("/tickets/:id/hide", s.hideTicket, auth)
	e.DELETE("/tickets/:id", s.deleteTicket, auth)
	e.POST("/tickets/:id/reply", s.replyTicket, auth)
	e.POST("/tickets/:id/evaluate", s.evaluateTicket, auth)

	e.GET("/posts", s.listPosts, auth)
	e.GET("/posts/:id", s.getPost, auth)
	e.POST("/posts", s.createPost, auth)
	e.PUT("/posts/:id", s.updatePost, auth)
	e.DELETE("/posts/:id", s.deletePost, auth)

	e.GET("/clients", s.listClients, auth)
	e.POST("/clients", s.createClient, auth)
	e.DELETE("/clients/:id", s.deleteClient, auth)

	e.PUT("/profile", s.updateProfile, auth)
	e.POST("/profile/avatar", s.uploadAvatar, auth)
	e.POST("/profile/password", s.changePassword, auth)
	// The confirmation link is opened from an email, possibly signed out.
	e.GET("/profile/confirm-update", s.confirmUpdate)

	e.GET("/settings", s.getSettings, auth)
	e.PUT("/settings", s.updateSettings, auth)
	return e
}

// Handler returns the HTTP handler, for httptest.NewServer.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

// AddUser creates an account. The returned user carries the assigned ID.
func (s *Server) AddUser(u session.User, password string) (session.User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return session.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(u, hash)
}

var errDuplicateEmail = errors.New("email already registered")

func (s *Server) addLocked(u session.User, hash string) (session.User, error) {
	key := strings.ToLower(strings.TrimSpace(u.Email))
	if key == "" {
		return session.User{}, errors.New("email is required")
	}
	if _, ok := s.accounts[key]; ok {
		return session.User{}, errDuplicateEmail
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = session.RoleUser
	}
	a := &account{user: u, hash: hash}
	s.accounts[key] = a
	s.byID[u.ID] = a
	return u, nil
}

// IssueToken signs a token for an existing account.
func (s *Server) IssueToken(userID string) (string, error) {
	s.mu.Lock()
	a, ok := s.byID[userID]
	var u session.User
	if ok {
		u = a.user
	}
	s.mu.Unlock()
	if !ok {
		return "", errors.New("unknown user")
	}
	return s.sign(u)
}

func (s *Server) sign(u session.User) (string, error) {
	return s.issuer.Issue(token.Claims{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      string(u.Role),
		Name:      u.Name,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	})
}

// ConfirmationToken returns the pending email-change link token for a user.
func (s *Server) ConfirmationToken(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, p := range s.pending {
		if p.userID == userID {
			return tok, true
		}
	}
	return "", false
}

// ResetToken returns the outstanding password reset token for email.
func (s *Server) ResetToken(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return "", false
	}
	for tok, id := range s.resets {
		if id == a.user.ID {
			return tok, true
		}
	}
	return "", false
}

// Hits returns how many requests reached the route, e.g. Hits("GET", "/tickets").
func (s *Server) Hits(method, route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+route]
}

// FailNext makes the next request to the route answer status with message.
func (s *Server) FailNext(method, route string, status int, message string) {
	s.mu.Lock()
	s.failures[method+" "+route] = injectedFailure{status: status, message: message}
	s.mu.Unlock()
}

// SetClock replaces the time source, for expiring confirmation links.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Server) track(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		route := c.Request().Method + " " + c.Path()
		s.mu.Lock()
		s.hits[route]++
		fail, injected := s.failures[route]
		delete(s.failures, route)
		s.mu.Unlock()

		s.logger.Debug("mockbackend: request", slog.String("route", route), slog.String("request_id", c.Request().Header.Get("X-Request-ID")))
		if injected {
			return echo.NewHTTPError(fail.status, fail.message)
		}
		return next(c)
	}
}

func (s *Server) delay(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		t := time.NewTimer(s.cfg.Latency)
		defer t.Stop()
		select {
		case <-t.C:
			return next(c)
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}
}

const accountKey = "account"

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
		if !ok || raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}
		claims, err := s.issuer.Verify(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Token is not valid")
		}
		s.mu.Lock()
		a, found := s.byID[claims.SubjectID()]
		s.mu.Unlock()
		if !found {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}
		c.Set(accountKey, a)
		return next(c)
	}
}

func current(c echo.Context) *account {
	a, _ := c.Get(accountKey).(*account)
	return a
}

func (s *Server) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func (s *Server) recordLocked(title, description, kind string) {
	s.activities = append([]api.Activity{{
		Title:       title,
		Description: description,
		Time:        s.stamp(),
		Type:        kind,
	}}, s.activities...)
	if len(s.activities) > 20 {
		s.activities = s.activities[:20]
	}
}
