package cmsync

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/cmsync/api"
	"github.com/MrEthical07/cmsync/gateway"
	"github.com/MrEthical07/cmsync/internal/events"
	"github.com/MrEthical07/cmsync/mutation"
	"github.com/MrEthical07/cmsync/query"
	"github.com/MrEthical07/cmsync/session"
)

// LoginMessage is the notification raised after a successful login.
const LoginMessage = "Login successful"

// ErrNotBootstrapped is returned by operations that need the persisted
// session to have been restored first.
var ErrNotBootstrapped = errors.New("session not bootstrapped")

// Client is a wired SDK instance. Its methods are safe for concurrent use.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	events  *events.Dispatcher

	session *session.Store
	gateway *gateway.Gateway
	cache   *query.Cache
	api     *api.API

	closed atomic.Bool
}

func (c *Client) Session() *session.Store   { return c.session }
func (c *Client) API() *api.API             { return c.api }
func (c *Client) Cache() *query.Cache       { return c.cache }
func (c *Client) Gateway() *gateway.Gateway { return c.gateway }

// Config returns a copy of the configuration the client was built with.
func (c *Client) Config() Config { return cloneConfig(c.cfg) }

// Bootstrap restores the persisted session. It is safe to call more than
// once; only the first call reads storage.
func (c *Client) Bootstrap(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.session.Bootstrap(ctx)
}

// Logout ends the session. The cache is emptied by the resulting session
// change; calling Logout again is a no-op.
func (c *Client) Logout(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.session.Logout(ctx)
}

// Prefetch loads the dashboard, tickets, first page of posts and clients
// in parallel. It returns the first failure; the other reads still land
// in the cache.
func (c *Client) Prefetch(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.session.IsLoading() {
		return ErrNotBootstrapped
	}
	if !c.session.IsAuthenticated() {
		return session.ErrNotAuthenticated
	}

	var g errgroup.Group
	g.Go(func() error { return c.api.Dashboard.Get(ctx).Err })
	g.Go(func() error { return c.api.Tickets.List(ctx).Err })
	g.Go(func() error { return c.api.Posts.List(ctx, 1, api.DefaultPostsLimit).Err })
	g.Go(func() error { return c.api.Clients.List(ctx).Err })
	return g.Wait()
}

// MetricsSnapshot returns the current counters. It is empty when metrics
// are disabled.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// EventsDropped reports notifications discarded because the buffer was
// full. Navigations are never dropped.
func (c *Client) EventsDropped() uint64 {
	return c.events.Dropped()
}

// NavigationsSuperseded reports navigations replaced by a newer session
// transition before the sink saw them.
func (c *Client) NavigationsSuperseded() uint64 {
	return c.events.Superseded()
}

// Close flushes pending events and stops the dispatcher. The session and
// its storage are left as they are.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.events.Close()
}

func (c *Client) emit(ctx context.Context, e events.Event) {
	if c.closed.Load() {
		return
	}
	c.events.Emit(ctx, e)
}

func (c *Client) sessionChanged(ctx context.Context, change session.Change) {
	switch change.Kind {
	case session.ChangeLogin:
		c.metrics.Inc(MetricSessionLogin)
		c.cache.Reset()
		c.emit(ctx, events.Event{Kind: events.KindNotify, Level: events.LevelSuccess, Message: LoginMessage, UserID: change.User.ID, Epoch: change.Epoch})
		c.emit(ctx, events.Event{Kind: events.KindNavigate, Path: PathDashboard, UserID: change.User.ID, Epoch: change.Epoch})
	case session.ChangeLogout:
		c.metrics.Inc(MetricSessionLogout)
		c.cache.Reset()
		c.emit(ctx, events.Event{Kind: events.KindNavigate, Path: PathAuth, Epoch: change.Epoch})
	case session.ChangeRestored:
		c.metrics.Inc(MetricSessionRestored)
	case session.ChangeRejected:
		c.metrics.Inc(MetricSessionRejected)
	}
	c.logger.Debug("cmsync: session changed",
		slog.String("kind", change.Kind.String()),
		slog.Uint64("epoch", change.Epoch))
}

func (c *Client) observeRequest(o gateway.Outcome) {
	c.metrics.Observe(MetricRequestLatency, o.Duration)
	switch {
	case o.Err == nil:
		c.metrics.Inc(MetricRequestSuccess)
	case errors.Is(o.Err, gateway.ErrTimeout):
		c.metrics.Inc(MetricRequestTimeout)
	case errors.Is(o.Err, gateway.ErrNetwork):
		c.metrics.Inc(MetricRequestNetwork)
	case gateway.IsUnauthorized(o.Err):
		c.metrics.Inc(MetricRequestUnauthorized)
	default:
		c.metrics.Inc(MetricRequestFailure)
	}
}

func (c *Client) observeCache(e query.Event) {
	switch e.Kind {
	case query.EventHit:
		c.metrics.Inc(MetricCacheHit)
	case query.EventMiss:
		c.metrics.Inc(MetricCacheMiss)
	case query.EventShared:
		c.metrics.Inc(MetricCacheShared)
	case query.EventDiscarded:
		c.metrics.Inc(MetricCacheDiscarded)
	case query.EventInvalidated:
		c.metrics.Inc(MetricCacheInvalidated)
	case query.EventEvicted:
		c.metrics.Inc(MetricCacheEvicted)
	}
}

// observeMutation raises exactly one error notification per failed
// invocation.
func (c *Client) observeMutation(o mutation.Outcome) {
	c.metrics.Observe(MetricMutationLatency, o.Duration)
	switch {
	case o.Rejected:
		c.metrics.Inc(MetricMutationRejected)
	case o.Err != nil:
		c.metrics.Inc(MetricMutationFailure)
	default:
		c.metrics.Inc(MetricMutationSuccess)
		return
	}
	if errors.Is(o.Err, context.Canceled) {
		return
	}
	c.emit(context.Background(), events.Event{
		Kind:     events.KindNotify,
		Level:    events.LevelError,
		Message:  mutation.Message(o.Err),
		Metadata: map[string]string{"mutation": o.Name},
	})
}
