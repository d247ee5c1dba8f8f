package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled bool
	// BufferSize bounds queued notifications. Navigations do not use it.
	BufferSize int
	// DropIfFull drops notifications instead of blocking the emitter.
	DropIfFull bool
}

// Dispatcher relays events to a sink from a single goroutine.
//
// Notifications are queued in emission order and are subject to the
// buffer policy. Navigations travel separately: they never block and are
// never dropped, only the newest undelivered one is kept, and each session
// epoch navigates at most once. Notifications emitted before a navigation
// reach the sink before it.
type Dispatcher struct {
	cfg  Config
	sink Sink
	now  func() time.Time

	notes    chan Event
	navReady chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	navMu      sync.Mutex
	pendingNav *Event
	navEpoch   uint64
	navigated  bool

	dropped    atomic.Uint64
	superseded atomic.Uint64
	closed     atomic.Bool
	closeOnce  sync.Once
}

// NewDispatcher starts a dispatcher. It returns nil when cfg is disabled;
// every method is safe on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		now:      time.Now,
		notes:    make(chan Event, cfg.BufferSize),
		navReady: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.notes:
			d.sink.Emit(context.Background(), event)
		case <-d.navReady:
			d.flushNotes(len(d.notes))
			d.deliverNavigation()
		case <-d.done:
			d.flushNotes(len(d.notes))
			d.deliverNavigation()
			return
		}
	}
}

// flushNotes delivers n queued notifications.
func (d *Dispatcher) flushNotes(n int) {
	for ; n > 0; n-- {
		d.sink.Emit(context.Background(), <-d.notes)
	}
}

func (d *Dispatcher) deliverNavigation() {
	d.navMu.Lock()
	event := d.pendingNav
	d.pendingNav = nil
	d.navMu.Unlock()
	if event != nil {
		d.sink.Emit(context.Background(), *event)
	}
}

// Emit stamps event when Timestamp is zero and routes it by kind.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now()
	}
	if event.Kind == KindNavigate {
		d.navigate(event)
		return
	}
	d.notify(ctx, event)
}

func (d *Dispatcher) notify(ctx context.Context, event Event) {
	if ctx == nil {
		ctx = context.Background()
	}
	if d.cfg.DropIfFull {
		select {
		case d.notes <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.notes <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

// navigate keeps event as the pending navigation unless a navigation for
// the same or a later epoch was already accepted.
func (d *Dispatcher) navigate(event Event) {
	d.navMu.Lock()
	if d.navigated && event.Epoch <= d.navEpoch {
		d.navMu.Unlock()
		return
	}
	d.navigated = true
	d.navEpoch = event.Epoch
	if d.pendingNav != nil {
		d.superseded.Add(1)
	}
	d.pendingNav = &event
	d.navMu.Unlock()

	select {
	case d.navReady <- struct{}{}:
	default:
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns how many notifications were discarded because the
// buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Superseded returns how many navigations were replaced by a newer one
// before reaching the sink.
func (d *Dispatcher) Superseded() uint64 {
	if d == nil {
		return 0
	}
	return d.superseded.Load()
}
