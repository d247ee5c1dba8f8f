package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/cmsync/token"
)

var (
	// ErrInvalidToken is returned by [Store.Login] for tokens that do not
	// decode or have already expired.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrNotAuthenticated is returned by operations that need a session.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Keys names the storage slots used by a [Store].
type Keys struct {
	Token        string
	User         string
	Confirmation string
}

// DefaultKeys returns the storage keys shared with the web dashboard.
func DefaultKeys() Keys {
	return Keys{
		Token:        "cm_token",
		User:         "cm_user",
		Confirmation: "cm_profile_update_pending",
	}
}

// ChangeKind classifies a session transition.
type ChangeKind int

const (
	// ChangeRestored is emitted when Bootstrap finds a valid stored token.
	ChangeRestored ChangeKind = iota + 1
	// ChangeRejected is emitted when Bootstrap discards a stored token.
	ChangeRejected
	ChangeLogin
	ChangeLogout
	ChangeProfile
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeRestored:
		return "restored"
	case ChangeRejected:
		return "rejected"
	case ChangeLogin:
		return "login"
	case ChangeLogout:
		return "logout"
	case ChangeProfile:
		return "profile"
	default:
		return "unknown"
	}
}

// Change describes one session transition.
type Change struct {
	Kind  ChangeKind
	User  User
	Epoch uint64
}

// Listener receives session transitions after they are applied, in
// transition order. Listeners must not call back into Login, Logout or
// ApplyProfile.
type Listener interface {
	SessionChanged(ctx context.Context, change Change)
}

// ListenerFunc adapts a function to [Listener].
type ListenerFunc func(ctx context.Context, change Change)

func (f ListenerFunc) SessionChanged(ctx context.Context, change Change) { f(ctx, change) }

// Option configures a [Store].
type Option func(*Store)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithListener registers the transition listener.
func WithListener(l Listener) Option {
	return func(s *Store) { s.listener = l }
}

// WithKeys overrides the storage keys.
func WithKeys(k Keys) Option {
	return func(s *Store) { s.keys = k }
}

// Store holds the current session. It is safe for concurrent use.
type Store struct {
	storage  Storage
	keys     Keys
	now      func() time.Time
	logger   *slog.Logger
	listener Listener

	// writeMu serializes transitions, including their storage writes and
	// listener notifications.
	writeMu sync.Mutex

	mu           sync.RWMutex
	user         *User
	raw          string
	loading      bool
	confirmation Confirmation

	epoch    atomic.Uint64
	bootOnce sync.Once
	ready    chan struct{}
}

// NewStore returns a Store in the loading state. Call [Store.Bootstrap]
// once at startup.
func NewStore(storage Storage, opts ...Option) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	s := &Store{
		storage: storage,
		keys:    DefaultKeys(),
		now:     time.Now,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		loading: true,
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap restores the persisted session. It runs at most once; later
// calls return immediately. It always leaves the store out of the loading
// state and closes [Store.Ready]. Only storage failures are returned.
func (s *Store) Bootstrap(ctx context.Context) error {
	var err error
	s.bootOnce.Do(func() {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		if !s.IsLoading() {
			// Login already established the session.
			return
		}
		defer s.finishLoading()
		err = s.restore(ctx)
	})
	return err
}

func (s *Store) restore(ctx context.Context) error {
	if state, err := s.storage.Load(ctx, s.keys.Confirmation); err == nil {
		s.mu.Lock()
		s.confirmation = parseConfirmation(state)
		s.mu.Unlock()
	} else if !errors.Is(err, ErrNotFound) {
		s.logger.Warn("session: load confirmation state failed", "error", err)
	}

	raw, err := s.storage.Load(ctx, s.keys.Token)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Warn("session: load token failed", "error", err)
		return err
	}

	claims, derr := token.Decode(raw)
	if derr == nil && claims.ExpiresAt.Unix() <= s.now().Unix() {
		derr = errors.New("token expired")
	}
	if derr != nil {
		s.logger.Debug("session: discarding stored token", "reason", derr)
		clearErr := errors.Join(
			s.storage.Delete(ctx, s.keys.Token),
			s.storage.Delete(ctx, s.keys.User),
		)
		s.notify(ctx, Change{Kind: ChangeRejected, Epoch: s.epoch.Load()})
		return clearErr
	}

	user := userFromClaims(claims)
	if stored, ok := s.loadUser(ctx); ok && stored.ID == user.ID {
		user = mergeProfile(user, stored)
	}

	s.mu.Lock()
	s.user = &user
	s.raw = raw
	s.mu.Unlock()

	s.notify(ctx, Change{Kind: ChangeRestored, User: user, Epoch: s.epoch.Load()})
	return nil
}

func (s *Store) loadUser(ctx context.Context) (User, bool) {
	data, err := s.storage.Load(ctx, s.keys.User)
	if err != nil {
		return User{}, false
	}
	var u User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		s.logger.Debug("session: ignoring unreadable stored user", "error", err)
		return User{}, false
	}
	return u, true
}

func (s *Store) finishLoading() {
	s.mu.Lock()
	wasLoading := s.loading
	s.loading = false
	s.mu.Unlock()
	if wasLoading {
		close(s.ready)
	}
}

// Login installs raw as the current token and returns the resulting user.
// When override is non-nil its profile fields win over the token claims;
// identity always comes from the token.
func (s *Store) Login(ctx context.Context, raw string, override *User) (User, error) {
	claims, err := token.Decode(raw)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt.Unix() <= s.now().Unix() {
		return User{}, fmt.Errorf("%w: expired", ErrInvalidToken)
	}

	user := userFromClaims(claims)
	if override != nil {
		user = mergeProfile(user, *override)
		if claims.Role == "" && override.Role != "" {
			user.Role = override.Role
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.storage.Save(ctx, s.keys.Token, raw); err != nil {
		return User{}, err
	}
	if override != nil {
		if err := s.saveUser(ctx, user); err != nil {
			s.logger.Warn("session: persist user failed", "error", err)
		}
	} else if err := s.storage.Delete(ctx, s.keys.User); err != nil {
		s.logger.Warn("session: clear stored user failed", "error", err)
	}

	s.mu.Lock()
	s.user = &user
	s.raw = raw
	s.mu.Unlock()
	epoch := s.epoch.Add(1)

	s.finishLoading()

	s.notify(ctx, Change{Kind: ChangeLogin, User: user, Epoch: epoch})
	return user, nil
}

// Logout clears the session and its storage. The confirmation state is
// kept. Calling it without a session is a no-op that emits no change.
func (s *Store) Logout(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	active := s.user != nil
	s.mu.RUnlock()

	err := errors.Join(
		s.storage.Delete(ctx, s.keys.Token),
		s.storage.Delete(ctx, s.keys.User),
	)

	s.mu.Lock()
	s.user = nil
	s.raw = ""
	s.mu.Unlock()

	if !active {
		return err
	}
	epoch := s.epoch.Add(1)
	s.notify(ctx, Change{Kind: ChangeLogout, Epoch: epoch})
	return err
}

// ApplyProfile merges profile fields from p into the current user and
// persists the result. Identity fields are kept.
func (s *Store) ApplyProfile(ctx context.Context, p User) (User, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, ok := s.CurrentUser()
	if !ok {
		return User{}, ErrNotAuthenticated
	}
	if p.ID != "" && p.ID != current.ID {
		return User{}, fmt.Errorf("profile belongs to %q, session is %q", p.ID, current.ID)
	}
	updated := mergeProfile(current, p)
	if err := s.saveUser(ctx, updated); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	s.user = &updated
	s.mu.Unlock()

	s.notify(ctx, Change{Kind: ChangeProfile, User: updated, Epoch: s.epoch.Load()})
	return updated, nil
}

func (s *Store) saveUser(ctx context.Context, u User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.storage.Save(ctx, s.keys.User, string(data))
}

func (s *Store) notify(ctx context.Context, c Change) {
	if s.listener != nil {
		s.listener.SessionChanged(ctx, c)
	}
}

// CurrentUser returns the session user. ok is false when logged out or when
// the token has expired.
func (s *Store) CurrentUser() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil || !s.user.ExpiresAt.After(s.now().Truncate(time.Second)) {
		return User{}, false
	}
	return *s.user, true
}

// IsAuthenticated reports whether a valid, unexpired session is held.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.CurrentUser()
	return ok
}

// IsLoading reports whether Bootstrap has not finished yet.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Ready is closed once the store leaves the loading state.
func (s *Store) Ready() <-chan struct{} { return s.ready }

// Token returns the bearer token, or "" when logged out or expired.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil || !s.user.ExpiresAt.After(s.now().Truncate(time.Second)) {
		return ""
	}
	return s.raw
}

// Epoch increases on every login and logout. Work started under one epoch
// must not be applied under another.
func (s *Store) Epoch() uint64 { return s.epoch.Load() }
