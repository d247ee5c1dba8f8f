package cmsync

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/cmsync/api"
	"github.com/MrEthical07/cmsync/gateway"
	"github.com/MrEthical07/cmsync/internal/events"
	"github.com/MrEthical07/cmsync/query"
	"github.com/MrEthical07/cmsync/session"
)

// Builder assembles a [Client]. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config     Config
	storage    session.Storage
	redis      redis.UniversalClient
	logger     *slog.Logger
	sink       EventSink
	httpClient *http.Client

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL sets Config.Gateway.BaseURL.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.Gateway.BaseURL = baseURL
	return b
}

// WithStorage persists the session to s. The default is in-memory.
func (b *Builder) WithStorage(s session.Storage) *Builder {
	b.storage = s
	return b
}

// WithRedis persists the session to Redis under Config.Session.RedisPrefix,
// so several processes share one login.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithEventSink receives notifications and navigation requests. Events
// are only dispatched when Config.Events.Enabled is set.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.sink = sink
	return b
}

func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithMetricsEnabled toggles Config.Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles Config.Metrics.EnableLatencyHistograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component. It does no
// I/O; call [Client.Bootstrap] to restore a persisted session.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.storage != nil && b.redis != nil {
		return nil, ErrStorageConflict
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	storage := b.storage
	switch {
	case storage != nil:
	case b.redis != nil:
		storage = session.NewRedisStorage(b.redis, cfg.Session.RedisPrefix)
	default:
		storage = session.NewMemoryStorage()
	}

	c := &Client{
		cfg:     cfg,
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
		events: events.NewDispatcher(events.Config{
			Enabled:    cfg.Events.Enabled,
			BufferSize: cfg.Events.BufferSize,
			DropIfFull: cfg.Events.DropIfFull,
		}, b.sink),
	}

	// -------- SESSION --------
	c.session = session.NewStore(storage,
		session.WithKeys(cfg.Session.Keys),
		session.WithLogger(logger),
		session.WithListener(session.ListenerFunc(c.sessionChanged)),
	)

	// -------- GATEWAY --------
	gwOpts := []gateway.Option{
		gateway.WithTimeout(cfg.Gateway.Timeout),
		gateway.WithUserAgent(cfg.Gateway.UserAgent),
		gateway.WithLogger(logger),
		gateway.WithObserver(c.observeRequest),
		gateway.WithHTTPClient(b.httpClient),
	}
	if cfg.Gateway.RateLimit > 0 {
		gwOpts = append(gwOpts, gateway.WithRateLimit(cfg.Gateway.RateLimit, cfg.Gateway.RateBurst))
	}
	gw, err := gateway.New(cfg.Gateway.BaseURL, gateway.TokenFunc(c.session.Token), gwOpts...)
	if err != nil {
		c.events.Close()
		return nil, err
	}
	c.gateway = gw

	// -------- CACHE --------
	c.cache = query.New(
		query.WithStaleTime(cfg.Cache.StaleTime),
		query.WithIdleEntries(cfg.Cache.IdleEntries),
		query.WithEpoch(c.session.Epoch),
		query.WithEventHandler(c.observeCache),
		query.WithLogger(logger),
	)

	// -------- API --------
	c.api = api.New(gw, c.cache, c.session,
		api.WithLogger(logger),
		api.WithMutationObserver(c.observeMutation),
	)

	b.built = true
	return c, nil
}
