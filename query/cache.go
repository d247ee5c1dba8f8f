package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrDiscarded is reported to callers whose response arrived after the
	// session changed.
	ErrDiscarded = errors.New("response discarded after session change")
	// ErrNoFetcher is returned when a key is read before any fetcher was
	// supplied for it.
	ErrNoFetcher = errors.New("no fetcher for key")
	// ErrTypeMismatch is returned by Get when the cached payload does not
	// have the requested type.
	ErrTypeMismatch = errors.New("cached payload has unexpected type")
)

// DefaultIdleEntries bounds the number of unobserved entries kept.
const DefaultIdleEntries = 256

// Fetcher loads the payload for one key.
type Fetcher func(ctx context.Context) (any, error)

// Status is the lifecycle state of an entry.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusResolved
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusResolved:
		return "resolved"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Snapshot is a point-in-time view of one entry.
type Snapshot struct {
	Key    Key
	Status Status
	// Data is the last successfully fetched payload, kept across failures.
	Data      any
	HasData   bool
	Err       error
	Stale     bool
	UpdatedAt time.Time
	// IsLoading is true while a fetch for the entry is in flight.
	IsLoading bool
}

// IsError reports whether the latest applied fetch failed.
func (s Snapshot) IsError() bool { return s.Err != nil }

// EventKind classifies cache activity reported to observers.
type EventKind int

const (
	EventHit EventKind = iota + 1
	EventMiss
	EventShared
	EventDiscarded
	EventInvalidated
	EventEvicted
)

func (k EventKind) String() string {
	switch k {
	case EventHit:
		return "hit"
	case EventMiss:
		return "miss"
	case EventShared:
		return "shared"
	case EventDiscarded:
		return "discarded"
	case EventInvalidated:
		return "invalidated"
	case EventEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Event is emitted for cache activity. It is meant for counters; handlers
// run synchronously, sometimes under the cache lock, and must not call back
// into the cache.
type Event struct {
	Kind EventKind
	Key  Key
}

// Option configures a [Cache].
type Option func(*Cache)

// WithStaleTime sets how long resolved data is served without refetching.
// Zero, the default, keeps data fresh until it is invalidated; a negative
// value refetches on every read.
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) { c.staleTime = d }
}

// WithIdleEntries bounds the number of unobserved entries kept.
func WithIdleEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.idleSize = n
		}
	}
}

// WithEpoch sets the session epoch source. Responses fetched under an
// older epoch are discarded.
func WithEpoch(fn func() uint64) Option {
	return func(c *Cache) {
		if fn != nil {
			c.epoch = fn
		}
	}
}

// WithEventHandler registers fn for cache activity events.
func WithEventHandler(fn func(Event)) Option {
	return func(c *Cache) { c.onEvent = fn }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

type entry struct {
	key       Key
	status    Status
	data      any
	hasData   bool
	err       error
	updatedAt time.Time
	stale     bool
	// issued is the newest generation handed out; applied the newest one
	// whose response was written to the entry.
	issued   uint64
	applied  uint64
	inflight bool
	// flight keys the running fetch in the singleflight group. Drawn from
	// Cache.flights, it is unique across recreated entries.
	flight uint64
	// needsNew is set when the entry is invalidated while a fetch runs.
	needsNew bool
	fetch    Fetcher
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Key:       e.key,
		Status:    e.status,
		Data:      e.data,
		HasData:   e.hasData,
		Err:       e.err,
		Stale:     e.stale,
		UpdatedAt: e.updatedAt,
		IsLoading: e.inflight,
	}
}

// Cache is safe for concurrent use.
type Cache struct {
	staleTime time.Duration
	idleSize  int
	epoch     func() uint64
	onEvent   func(Event)
	logger    *slog.Logger
	now       func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	entries   map[string]*entry
	observers map[string]*observerSet
	nextObs   uint64
	flights   uint64
	idle      *lru.Cache[string, struct{}]
}

type observerSet struct {
	key Key
	fns map[uint64]func(Snapshot)
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		idleSize:  DefaultIdleEntries,
		epoch:     func() uint64 { return 0 },
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		entries:   make(map[string]*entry),
		observers: make(map[string]*observerSet),
	}
	for _, opt := range opts {
		opt(c)
	}
	idle, err := lru.NewWithEvict[string, struct{}](c.idleSize, c.evicted)
	if err != nil {
		panic(fmt.Sprintf("query: idle lru: %v", err))
	}
	c.idle = idle
	return c
}

// evicted runs inside idle LRU calls, which are always made under c.mu.
func (c *Cache) evicted(id string, _ struct{}) {
	if c.observers[id] != nil {
		return
	}
	e, ok := c.entries[id]
	if !ok {
		return
	}
	delete(c.entries, id)
	c.emit(EventEvicted, e.key)
}

func (c *Cache) emit(kind EventKind, key Key) {
	if c.onEvent != nil {
		c.onEvent(Event{Kind: kind, Key: key})
	}
}

// lookup returns the entry for key, creating it. Caller holds c.mu.
func (c *Cache) lookup(key Key) (*entry, string) {
	id := key.id()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: key}
		c.entries[id] = e
	}
	if c.observers[id] == nil {
		c.idle.Add(id, struct{}{})
	}
	return e, id
}

func (c *Cache) fresh(e *entry) bool {
	if e.status != StatusResolved || e.stale || e.inflight {
		return false
	}
	switch {
	case c.staleTime == 0:
		return true
	case c.staleTime < 0:
		return false
	}
	return c.now().Sub(e.updatedAt) < c.staleTime
}

// Get returns the payload for key, fetching it with fetch when the cached
// data is missing or stale. fetch may be nil when the key has been read
// with a fetcher before.
func Get[T any](ctx context.Context, c *Cache, key Key, fetch func(ctx context.Context) (T, error)) Result[T] {
	var f Fetcher
	if fetch != nil {
		f = func(ctx context.Context) (any, error) { return fetch(ctx) }
	}
	return resultOf[T](c.Fetch(ctx, key, f))
}

// Fetch is the untyped form of [Get].
func (c *Cache) Fetch(ctx context.Context, key Key, fetch Fetcher) Snapshot {
	return c.get(ctx, key, fetch, false)
}

// Refetch issues a new generation for key regardless of freshness.
func (c *Cache) Refetch(ctx context.Context, key Key) Snapshot {
	return c.get(ctx, key, nil, true)
}

func (c *Cache) get(ctx context.Context, key Key, fetch Fetcher, force bool) Snapshot {
	c.mu.Lock()
	e, id := c.lookup(key)
	if fetch != nil {
		e.fetch = fetch
	} else {
		fetch = e.fetch
	}
	if fetch == nil {
		c.mu.Unlock()
		return Snapshot{Key: key, Status: StatusFailed, Err: fmt.Errorf("%w: %s", ErrNoFetcher, key)}
	}
	if !force && c.fresh(e) {
		snap := e.snapshot()
		c.emit(EventHit, key)
		c.mu.Unlock()
		return snap
	}

	var gen uint64
	if e.inflight && !e.needsNew && !force {
		gen = e.issued
		c.emit(EventShared, key)
	} else {
		e.issued++
		gen = e.issued
		c.flights++
		e.flight = c.flights
		e.inflight = true
		e.needsNew = false
		e.status = StatusPending
		c.emit(EventMiss, key)
	}
	epoch := c.epoch()
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(id+"#"+strconv.FormatUint(e.flight, 10), func() (any, error) {
		v, err := safeFetch(fetchCtx, fetch)
		return c.apply(e, id, gen, epoch, v, err), nil
	})
	c.mu.Unlock()

	select {
	case r := <-ch:
		return r.Val.(Snapshot)
	case <-ctx.Done():
		snap := c.Peek(key)
		snap.Err = ctx.Err()
		return snap
	}
}

func safeFetch(ctx context.Context, fetch Fetcher) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("query: fetcher panicked: %v", r)
		}
	}()
	return fetch(ctx)
}

func (c *Cache) apply(e *entry, id string, gen, epoch uint64, v any, err error) Snapshot {
	c.mu.Lock()
	current := c.entries[id] == e

	if epoch != c.epoch() {
		if current && gen == e.issued {
			e.inflight = false
			if e.status == StatusPending {
				e.status = StatusIdle
			}
		}
		c.emit(EventDiscarded, e.key)
		c.mu.Unlock()
		c.logger.Debug("query: discarding response from previous session",
			slog.String("key", e.key.String()), slog.Uint64("generation", gen))
		return Snapshot{Key: e.key, Status: StatusFailed, Err: ErrDiscarded}
	}

	if !current {
		// Evicted or reset while in flight: hand the result to the waiting
		// callers without caching it.
		c.emit(EventDiscarded, e.key)
		c.mu.Unlock()
		snap := Snapshot{Key: e.key, Status: StatusResolved, Data: v, HasData: err == nil, Err: err, UpdatedAt: c.now()}
		if err != nil {
			snap.Status = StatusFailed
			snap.Data = nil
		}
		return snap
	}

	if gen == e.issued {
		e.inflight = false
	}
	if gen < e.applied {
		snap := e.snapshot()
		c.emit(EventDiscarded, e.key)
		c.mu.Unlock()
		c.logger.Debug("query: discarding out-of-order response",
			slog.String("key", e.key.String()), slog.Uint64("generation", gen), slog.Uint64("applied", e.applied))
		return snap
	}

	e.applied = gen
	if err == nil {
		e.data = v
		e.hasData = true
		e.err = nil
		e.updatedAt = c.now()
		e.stale = e.needsNew
	} else {
		e.err = err
		e.stale = e.hasData
	}
	switch {
	case e.inflight:
		e.status = StatusPending
	case err != nil:
		e.status = StatusFailed
	default:
		e.status = StatusResolved
	}
	snap := e.snapshot()
	obs := c.observersOf(id)
	c.mu.Unlock()

	for _, fn := range obs {
		fn(snap)
	}
	return snap
}

func (c *Cache) observersOf(id string) []func(Snapshot) {
	set := c.observers[id]
	if set == nil {
		return nil
	}
	out := make([]func(Snapshot), 0, len(set.fns))
	for _, fn := range set.fns {
		out = append(out, fn)
	}
	return out
}

// Peek returns the current snapshot for key without fetching.
func (c *Cache) Peek(key Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.id()]
	if !ok {
		return Snapshot{Key: key, Status: StatusIdle}
	}
	return e.snapshot()
}

// Set writes data for key as a fresh resolved payload, as if it had just
// been fetched. Fetches already in flight for key will not overwrite it.
func (c *Cache) Set(key Key, data any) {
	c.mu.Lock()
	e, id := c.lookup(key)
	e.data = data
	e.hasData = true
	e.err = nil
	e.stale = false
	e.updatedAt = c.now()
	e.applied = e.issued + 1
	e.issued = e.applied
	e.inflight = false
	e.needsNew = false
	e.status = StatusResolved
	snap := e.snapshot()
	obs := c.observersOf(id)
	c.mu.Unlock()

	for _, fn := range obs {
		fn(snap)
	}
}

// Observe registers fn to receive a snapshot every time the entry for key
// resolves, fails or is invalidated. Observed entries are never evicted.
// The returned function removes the observer.
func (c *Cache) Observe(key Key, fn func(Snapshot)) (cancel func()) {
	id := key.id()
	c.mu.Lock()
	c.nextObs++
	token := c.nextObs
	set := c.observers[id]
	if set == nil {
		set = &observerSet{key: key, fns: make(map[uint64]func(Snapshot))}
		c.observers[id] = set
	}
	set.fns[token] = fn
	c.idle.Remove(id)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			set := c.observers[id]
			if set == nil {
				return
			}
			delete(set.fns, token)
			if len(set.fns) > 0 {
				return
			}
			delete(c.observers, id)
			if _, ok := c.entries[id]; ok {
				c.idle.Add(id, struct{}{})
			}
		})
	}
}

// Invalidate marks every entry whose key has one of the given prefixes as
// stale.
func (c *Cache) Invalidate(prefixes ...Key) {
	c.InvalidateFunc(func(k Key) bool {
		for _, p := range prefixes {
			if k.HasPrefix(p) {
				return true
			}
		}
		return false
	})
}

// InvalidateFunc marks every entry whose key satisfies match as stale.
func (c *Cache) InvalidateFunc(match func(Key) bool) {
	type notify struct {
		key  Key
		snap Snapshot
		obs  []func(Snapshot)
	}
	var pending []notify

	c.mu.Lock()
	for id, e := range c.entries {
		if !match(e.key) {
			continue
		}
		e.stale = true
		if e.inflight {
			e.needsNew = true
		}
		c.emit(EventInvalidated, e.key)
		if obs := c.observersOf(id); len(obs) > 0 && e.fetch != nil {
			pending = append(pending, notify{key: e.key, snap: e.snapshot(), obs: obs})
		}
	}
	c.mu.Unlock()

	for _, n := range pending {
		for _, fn := range n.obs {
			fn(n.snap)
		}
		go c.Refetch(context.Background(), n.key)
	}
}

// Reset drops every entry. Observers stay registered and are sent an
// idle snapshot.
func (c *Cache) Reset() {
	type notify struct {
		snap Snapshot
		obs  []func(Snapshot)
	}

	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.idle.Purge()
	pending := make([]notify, 0, len(c.observers))
	for id, set := range c.observers {
		pending = append(pending, notify{
			snap: Snapshot{Key: set.key, Status: StatusIdle},
			obs:  c.observersOf(id),
		})
	}
	c.mu.Unlock()

	for _, n := range pending {
		for _, fn := range n.obs {
			fn(n.snap)
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
