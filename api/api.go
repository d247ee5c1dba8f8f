package api

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/MrEthical07/cmsync/gateway"
	"github.com/MrEthical07/cmsync/mutation"
	"github.com/MrEthical07/cmsync/query"
	"github.com/MrEthical07/cmsync/session"
)

// ErrNoToken is returned when a login response carries no token.
var ErrNoToken = errors.New("authentication response has no token")

// Cache keys. Invalidation is by prefix, so KeyPosts covers every page.
var (
	KeyDashboard = query.NewKey("dashboard")
	KeyTickets   = query.NewKey("tickets")
	KeyPosts     = query.NewKey("posts")
	KeyClients   = query.NewKey("clients")
	KeySettings  = query.NewKey("settings")
	KeySession   = query.NewKey("session")
)

// PostsKey is the key of one page of posts.
func PostsKey(page, limit int) query.Key { return query.NewKey("posts", page, limit) }

// PostKey is the key of a single post.
func PostKey(id string) query.Key { return query.NewKey("posts", "id", id) }

// Option configures [New].
type Option func(*deps)

// WithValidator overrides the input validator.
func WithValidator(v *mutation.Validator) Option {
	return func(d *deps) { d.validator = v }
}

// WithLogger sets the logger used by every mutation.
func WithLogger(l *slog.Logger) Option {
	return func(d *deps) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMutationObserver receives one outcome per mutation invocation.
func WithMutationObserver(fn func(mutation.Outcome)) Option {
	return func(d *deps) { d.observer = fn }
}

type deps struct {
	gw        *gateway.Gateway
	cache     *query.Cache
	session   *session.Store
	validator *mutation.Validator
	logger    *slog.Logger
	observer  func(mutation.Outcome)
}

// mutationOpts returns the options shared by every mutation plus the
// invalidation of keys.
func (d *deps) mutationOpts(keys ...query.Key) []mutation.Option {
	opts := []mutation.Option{
		mutation.WithValidator(d.validator),
		mutation.WithLogger(d.logger),
		mutation.WithObserver(d.observer),
	}
	if len(keys) > 0 {
		opts = append(opts, mutation.WithInvalidation(d.cache, keys...))
	}
	return opts
}

// API groups every backend resource.
type API struct {
	Auth      *Auth
	Dashboard *Dashboard
	Tickets   *Tickets
	Posts     *Posts
	Clients   *Clients
	Profile   *Profile
	Settings  *Settings
}

// New wires the resources to gw, cache and sess.
func New(gw *gateway.Gateway, cache *query.Cache, sess *session.Store, opts ...Option) *API {
	d := &deps{
		gw:        gw,
		cache:     cache,
		session:   sess,
		validator: mutation.NewValidator(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return &API{
		Auth:      newAuth(d),
		Dashboard: &Dashboard{d: d},
		Tickets:   newTickets(d),
		Posts:     newPosts(d),
		Clients:   newClients(d),
		Profile:   newProfile(d),
		Settings:  newSettings(d),
	}
}

// call is the shared JSON request helper.
func call[T any](ctx context.Context, d *deps, method, endpoint string, body any) (T, error) {
	return gateway.Do[T](ctx, d.gw, endpoint, gateway.Options{Method: method, Body: body})
}
