package cmsync

import (
	"errors"
	"net/url"
	"time"

	"github.com/MrEthical07/cmsync/gateway"
	"github.com/MrEthical07/cmsync/query"
	"github.com/MrEthical07/cmsync/session"
)

// Config is the complete client configuration. Obtain a starting point
// from [DefaultConfig], adjust it, and pass it to [Builder.WithConfig].
type Config struct {
	Gateway GatewayConfig
	Session SessionConfig
	Cache   CacheConfig
	Events  EventsConfig
	Metrics MetricsConfig
}

/*
====================================
GATEWAY CONFIG
====================================
*/

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	// BaseURL is the backend root every endpoint is resolved against.
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// RateLimit is requests per second. Zero disables client-side limiting.
	RateLimit float64
	RateBurst int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the session store.
type SessionConfig struct {
	Keys session.Keys
	// RedisPrefix namespaces keys when the session is persisted to Redis.
	RedisPrefix string
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig configures the resource query cache.
type CacheConfig struct {
	// StaleTime is how long a successful fetch stays fresh. Zero keeps
	// data fresh until a mutation or an explicit call invalidates it; a
	// negative value refetches on every read.
	StaleTime time.Duration
	// IdleEntries bounds how many unobserved entries are retained.
	IdleEntries int
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig configures asynchronous notification and navigation events.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking when the buffer is full.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig configures in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the defaults used by [New]. BaseURL is left empty.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Gateway: GatewayConfig{
			Timeout:   gateway.DefaultTimeout,
			UserAgent: "cmsync",
		},
		Session: SessionConfig{
			Keys:        session.DefaultKeys(),
			RedisPrefix: "cm",
		},
		Cache: CacheConfig{
			StaleTime:   0,
			IdleEntries: query.DefaultIdleEntries,
		},
		Events: EventsConfig{
			Enabled:    true,
			BufferSize: 64,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// cloneConfig copies cfg. Config holds no reference types today, so a
// value copy is enough.
func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Gateway
	if c.Gateway.BaseURL == "" {
		return ErrBaseURLRequired
	}
	u, err := url.Parse(c.Gateway.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("Gateway BaseURL must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("Gateway BaseURL scheme must be http or https")
	}
	if c.Gateway.Timeout <= 0 {
		return errors.New("Gateway Timeout must be > 0")
	}
	if c.Gateway.RateLimit < 0 {
		return errors.New("Gateway RateLimit must be >= 0")
	}
	if c.Gateway.RateLimit > 0 && c.Gateway.RateBurst <= 0 {
		return errors.New("Gateway RateBurst must be > 0 when RateLimit is set")
	}

	// Session
	k := c.Session.Keys
	if k.Token == "" || k.User == "" || k.Confirmation == "" {
		return errors.New("Session Keys must all be set")
	}
	if k.Token == k.User || k.Token == k.Confirmation || k.User == k.Confirmation {
		return errors.New("Session Keys must be distinct")
	}

	// Cache
	if c.Cache.IdleEntries <= 0 {
		return errors.New("Cache IdleEntries must be > 0")
	}

	// Events
	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when events are enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	return nil
}
