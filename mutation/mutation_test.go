package mutation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/cmsync/gateway"
	"github.com/MrEthical07/cmsync/query"
)

type recordingCache struct {
	mu   sync.Mutex
	keys []query.Key
}

func (r *recordingCache) Invalidate(keys ...query.Key) {
	r.mu.Lock()
	r.keys = append(r.keys, keys...)
	r.mu.Unlock()
}

func (r *recordingCache) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

type createTicket struct {
	Subject string `json:"subject" validate:"required"`
	Message string `json:"message" validate:"required,min=3"`
}

func TestSuccessInvalidatesBeforeCallback(t *testing.T) {
	cache := &recordingCache{}
	var m *Mutation[createTicket, string]
	m = New("tickets.create", func(ctx context.Context, in createTicket) (string, error) {
		if m.State() != StatePending || !m.IsPending() {
			t.Errorf("expected pending while running")
		}
		return "t1", nil
	}, WithInvalidation(cache, query.NewKey("tickets")))

	var order []string
	out, err := m.Mutate(context.Background(), createTicket{Subject: "s", Message: "hello"}, Callbacks[string]{
		OnSuccess: func(out string) {
			if cache.count() != 1 {
				t.Errorf("keys must be invalidated before the success callback")
			}
			if m.State() != StateSuccess {
				t.Errorf("success state must be visible in the callback, got %v", m.State())
			}
			order = append(order, "success:"+out)
		},
		OnError:   func(string, error) { order = append(order, "error") },
		OnSettled: func(string, error) { order = append(order, "settled") },
	})
	if err != nil || out != "t1" {
		t.Fatalf("mutate: %q %v", out, err)
	}
	if len(order) != 2 || order[0] != "success:t1" || order[1] != "settled" {
		t.Fatalf("unexpected callback order %v", order)
	}
	if m.IsPending() || m.LastError() != nil {
		t.Fatal("expected settled without error")
	}
}

func TestValidationRejectsBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	m := New("tickets.create", func(context.Context, createTicket) (string, error) {
		calls.Add(1)
		return "", nil
	}, WithValidator(NewValidator()))

	var callbacks int
	_, err := m.Mutate(context.Background(), createTicket{Message: "hi"}, Callbacks[string]{
		OnSuccess: func(string) { callbacks++ },
		OnError:   func(string, error) { callbacks++ },
		OnSettled: func(string, error) { callbacks++ },
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatal("operation must not run on invalid input")
	}
	if msg := Message(err); msg != "message must be at least 3, subject is required" {
		t.Fatalf("unexpected message %q", msg)
	}
	if callbacks != 0 {
		t.Fatalf("rejected input ran %d callbacks", callbacks)
	}
	if m.State() != StateIdle || m.LastError() != nil || m.IsPending() {
		t.Fatalf("rejected input changed state: %v err=%v pending=%v", m.State(), m.LastError(), m.IsPending())
	}

	// A rejection after a failed invocation keeps that invocation's state.
	failing := New("tickets.create", func(context.Context, createTicket) (string, error) {
		return "", errors.New("boom")
	}, WithValidator(NewValidator()))
	failing.Mutate(context.Background(), createTicket{Subject: "s", Message: "long enough"}, Callbacks[string]{})
	failing.Mutate(context.Background(), createTicket{}, Callbacks[string]{})
	if failing.State() != StateError || failing.LastError() == nil || failing.LastError().Error() != "boom" {
		t.Fatalf("state after rejection = %v %v", failing.State(), failing.LastError())
	}
}

func TestGatewayErrorMessageReachesCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Invalid credentials"}`))
	}))
	defer srv.Close()
	gw, err := gateway.New(srv.URL, nil)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}

	cache := &recordingCache{}
	m := New("auth.login", func(ctx context.Context, in map[string]string) (any, error) {
		return gw.Call(ctx, "/auth/login", gateway.Options{Method: http.MethodPost, Body: in})
	}, WithInvalidation(cache, query.NewKey("dashboard")))

	var got string
	var successCalled bool
	_, err = m.Mutate(context.Background(), map[string]string{"email": "a@b.com"}, Callbacks[any]{
		OnSuccess: func(any) { successCalled = true },
		OnError:   func(msg string, _ error) { got = msg },
	})
	if err == nil || successCalled {
		t.Fatal("expected failure")
	}
	if got != "Invalid credentials" {
		t.Fatalf("expected exact backend message, got %q", got)
	}
	if cache.count() != 0 {
		t.Fatal("failed mutations must not invalidate")
	}
	if m.State() != StateError || !errors.Is(m.LastError(), gateway.ErrStatus) {
		t.Fatalf("unexpected state %v err %v", m.State(), m.LastError())
	}
}

func TestPanicIsRecovered(t *testing.T) {
	m := New("posts.delete", func(context.Context, string) (struct{}, error) {
		panic("nil map")
	})
	_, err := m.Mutate(context.Background(), "p1", Callbacks[struct{}]{})
	if !errors.Is(err, ErrPanicked) {
		t.Fatalf("expected ErrPanicked, got %v", err)
	}
	if m.IsPending() {
		t.Fatal("pending must reset after a panic")
	}
}

func TestConcurrentInvocationsTrackPending(t *testing.T) {
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(3)
	m := New("tickets.hide", func(ctx context.Context, id string) (string, error) {
		started.Done()
		<-release
		return id, nil
	})

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = m.Mutate(context.Background(), id, Callbacks[string]{})
		}(id)
	}
	started.Wait()
	if !m.IsPending() || m.State() != StatePending {
		t.Fatal("expected pending")
	}
	close(release)
	wg.Wait()
	if m.IsPending() || m.State() != StateSuccess {
		t.Fatalf("expected success after all settled, got %v", m.State())
	}
}

func TestDerivedKeys(t *testing.T) {
	cache := &recordingCache{}
	m := New("posts.update", func(ctx context.Context, id string) (int, error) { return 7, nil },
		WithInvalidation(cache, query.NewKey("posts")),
		WithKeysFunc(func(id string, out int) []query.Key { return []query.Key{query.NewKey("post", id)} }),
	)
	if _, err := m.Mutate(context.Background(), "p9", Callbacks[int]{}); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if len(cache.keys) != 2 || cache.keys[1].String() != "post/p9" {
		t.Fatalf("unexpected keys %v", cache.keys)
	}
}

func TestSuccessfulMutationForcesRefetch(t *testing.T) {
	c := query.New(query.WithStaleTime(time.Hour))
	key := query.NewKey("tickets")
	var server []string
	list := func(context.Context) ([]string, error) { return append([]string(nil), server...), nil }

	if r := query.Get(context.Background(), c, key, list); len(r.Data) != 0 {
		t.Fatalf("expected empty list, got %v", r.Data)
	}
	create := New("tickets.create", func(ctx context.Context, subject string) (string, error) {
		server = append(server, subject)
		return subject, nil
	}, WithInvalidation(c, key))

	if _, err := create.Mutate(context.Background(), "t1", Callbacks[string]{}); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if !c.Peek(key).Stale {
		t.Fatal("tickets must be stale after creation")
	}
	r := query.Get(context.Background(), c, key, list)
	if len(r.Data) != 1 || r.Data[0] != "t1" {
		t.Fatalf("refetched list must include t1, got %v", r.Data)
	}
}

func TestReset(t *testing.T) {
	m := New("x", func(context.Context, int) (int, error) { return 0, errors.New("boom") })
	_, _ = m.Mutate(context.Background(), 1, Callbacks[int]{})
	m.Reset()
	if m.State() != StateIdle || m.LastError() != nil {
		t.Fatal("reset must clear state")
	}
}
