package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/cmsync/api"
	"github.com/MrEthical07/cmsync/gateway"
	"github.com/MrEthical07/cmsync/internal/mockbackend"
	"github.com/MrEthical07/cmsync/mutation"
	"github.com/MrEthical07/cmsync/query"
	"github.com/MrEthical07/cmsync/session"
	"github.com/MrEthical07/cmsync/token"
)

type harness struct {
	backend *mockbackend.Server
	store   *session.Store
	cache   *query.Cache
	api     *api.API
}

func newHarness(t *testing.T, cfg mockbackend.Config) *harness {
	t.Helper()
	backend, err := mockbackend.New(cfg)
	if err != nil {
		t.Fatalf("mockbackend.New: %v", err)
	}
	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(ts.Close)
	h := &harness{backend: backend}
	h.store, h.cache, h.api = wire(t, ts.URL)
	return h
}

func wire(t *testing.T, baseURL string) (*session.Store, *query.Cache, *api.API) {
	t.Helper()
	store := session.NewStore(session.NewMemoryStorage())
	if err := store.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	gw, err := gateway.New(baseURL, gateway.TokenFunc(store.Token))
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	cache := query.New(query.WithStaleTime(time.Minute), query.WithEpoch(store.Epoch))
	return store, cache, api.New(gw, cache, store)
}

// signIn creates an account on the backend and logs in through the API.
func (h *harness) signIn(t *testing.T, u session.User, password string) session.User {
	t.Helper()
	if _, err := h.backend.AddUser(u, password); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	got, err := h.api.Auth.Login.Mutate(context.Background(), api.LoginInput{Email: u.Email, Password: password}, mutation.Callbacks[session.User]{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return got
}

func TestLoginInstallsSession(t *testing.T) {
	h := newHarness(t, mockbackend.Config{})
	if _, err := h.backend.AddUser(session.User{Email: "a@b.com", Name: "A B", Role: session.RoleUser}, "Secret1!"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	var success bool
	_, err := h.api.Auth.Login.Mutate(context.Background(), api.LoginInput{Email: "a@b.com", Password: "Secret1!"}, mutation.Callbacks[session.User]{
		OnSuccess: func(session.User) { success = true },
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !success {
		t.Fatal("OnSuccess not called")
	}
	if !h.store.IsAuthenticated() {
		t.Fatal("expected authenticated session")
	}
	u, _ := h.store.CurrentUser()
	if u.Name != "A B" || u.Role != session.RoleUser {
		t.Fatalf("user = %+v", u)
	}
	if !token.IsValid(h.store.Token(), time.Now()) {
		t.Fatal("stored token is not valid")
	}
}

func TestLoginErrorCarriesBackendMessage(t *testing.T) {
	h := newHarness(t, mockbackend.Config{})

	var got string
	_, err := h.api.Auth.Login.Mutate(context.Background(), api.LoginInput{Email: "nobody@example.com", Password: "whatever1"}, mutation.Callbacks[session.User]{
		OnError: func(msg string, _ error) { got = msg },
	})
	if !gateway.IsUnauthorized(err) {
		t.Fatalf("err = %v, want 401", err)
	}
	if got != "Invalid credentials" {
		t.Fatalf("message = %q", got)
	}
	if h.store.IsAuthenticated() {
		t.Fatal("failed login must not install a session")
	}
}

func TestRegisterLogsIn(t *testing.T) {
	h := newHarness(t, mockbackend.Config{})
	resp, err := h.api.Auth.Register.Mutate(context.Background(), api.RegisterInput{Name: "New Person", Email: "new@example.com", Password: "longenough"}, mutation.Callbacks[api.AuthResponse]{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.User == nil || resp.User.Name != "New Person" {
		t.Fatalf("resp = %+v", resp)
	}
	if !h.store.IsAuthenticated() {
		t.Fatal("expected session after register")
	}

	_, err = h.api.Auth.Register.Mutate(context.Background(), api.RegisterInput{Name: "Again", Email: "new@example.com", Password: "longenough"}, mutation.Callbacks[api.AuthResponse]{})
	if gateway.StatusOf(err) != http.StatusConflict || mutation.Message(err) != "Email already registered" {
		t.Fatalf("duplicate register err = %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t, mockbackend.Config{})
	if _, err := h.backend.AddUser(session.User{Email: "r@example.com"}, "first-pass"); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := h.api.Auth.ForgotPassword.Mutate(ctx, api.ForgotPasswordInput{Email: "r@example.com"}, mutation.Callbacks[api.MessageResponse]{}); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	tok, ok := h.backend.ResetToken("r@example.com")
	if !ok {
		t.Fatal("no reset token issued")
	}
	if _, err := h.api.Auth.ResetPassword.Mutate(ctx, api.ResetPasswordInput{Token: tok, NewPassword: "second-pass"}, mutation.Callbacks[api.MessageResponse]{}); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := h.api.Auth.Login.Mutate(ctx, api.LoginInput{Email: "r@example.com", Password: "second-pass"}, mutation.Callbacks[session.User]{}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestCreateTicketInvalidatesList(t *testing.T) {
	var (
		listCalls atomic.Int32
		mu        sync.Mutex
		tickets   = []map[string]any{}
	)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tickets", func(w http.ResponseWriter, r *http.Request) {
		listCalls.Add(1)
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewEncoder(w).Encode(tickets)
	})
	mux.HandleFunc("POST /tickets", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		t1 := map[string]any{"_id": "t1", "subject": in["subject"], "message": in["message"], "priority": in["priority"], "status": "open"}
		mu.Lock()
		tickets = append(tickets, t1)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(t1)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	store, cache, a := wire(t, ts.URL)
	issuer, err := token.NewIssuer(token.IssuerConfig{TTL: time.Hour, SigningMethod: token.MethodHS256, PrivateKey: []byte("k")})
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := issuer.Issue(token.Claims{UserID: "u1", Role: "user"})
	if _, err := store.Login(context.Background(), raw, nil); err != nil {
		t.Fatalf("Login: %v", err)
	}

	ctx := context.Background()
	if res := a.Tickets.List(ctx); res.IsError || len(res.Data) != 0 {
		t.Fatalf("initial list = %+v", res)
	}
	if res := a.Tickets.List(ctx); listCalls.Load() != 1 || res.Stale {
		t.Fatalf("fresh read should hit cache: calls=%d stale=%v", listCalls.Load(), res.Stale)
	}

	created, err := a.Tickets.Create.Mutate(ctx, api.CreateTicketInput{Subject: "X", Message: "Y", Priority: "low"}, mutation.Callbacks[api.Ticket]{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "t1" {
		t.Fatalf("created = %+v", created)
	}
	if snap := cache.Peek(api.KeyTickets); !snap.Stale {
		t.Fatal("tickets key should be stale after create")
	}

	res := a.Tickets.List(ctx)
	if listCalls.Load() != 2 {
		t.Fatalf("list calls = %d, want 2", listCalls.Load())
	}
	if len(res.Data) != 1 || res.Data[0].ID != "t1" {
		t.Fatalf("list after refetch = %+v", res.Data)
	}
}

func TestConcurrentListsShareOneRequest(t *testing.T) {
	h := newHarness(t, mockbackend.Config{Latency: 50 * time.Millisecond})
	h.signIn(t, session.User{Email: "c@example.com"}, "password-1")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := h.api.Clients.List(context.Background()); res.IsError {
				t.Errorf("List: %v", res.Err)
			}
		}()
	}
	wg.Wait()
	if got := h.backend.Hits(http.MethodGet, "/clients"); got != 1 {
		t.Fatalf("GET /clients hits = %d, want 1", got)
	}
}

func TestValidationFailureSendsNothing(t *testing.T) {
	h := newHarness(t, mockbackend.Config{})
	h.signIn(t, session.User{Email: "v@example.com"}, "password-1")

	_, err := h.api.Tickets.Create.Mutate(context.Background(), api.CreateTicketInput{Message: "body", Priority: "urgent"}, mutation.Callbacks[api.Ticket]{})
	if !errors.Is(err, mutation.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	msg := mutation.Message(err)
	if !strings.Contains(msg, "subject is required") || !strings.Contains(msg, "priority") {
		t.Fatalf("message = %q", msg)
	}
	if got := h.backend.Hits(http.MethodPost, "/tickets"); got != 0 {
		t.Fatalf("POST /tickets hits = %d, want 0", got)
	}
}

func TestTicketActions(t *testing.T) {
	h := newHarness(t, mockbackend.Config{})
	h.signIn(t, session.User{Email: "s@example.com", Name: "Sam"}, "password-1")
	ctx := context.Background()

	tk, err := h.api.Tickets.Create.Mutate(ctx, api.CreateTicketInput{Subject: "Login", Message: "Cannot log in", Priority: "high"}, mutation.Callbacks[api.Ticket]{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := tk.ID.String()
	if _, err := h.api.Tickets.Reply.Mutate(ctx, api.ReplyInput{TicketID: id, Message: "Looking"}, mutation.Callbacks[json.RawMessage]{}); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if _, err := h.api.Tickets.Evaluate.Mutate(ctx, api.EvaluateInput{TicketID: id, Rating: 5}, mutation.Callbacks[json.RawMessage]{}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	res := h.api.Tickets.List(ctx)
	if len(res.Data) != 1 || res.Data[0].Status != "resolved" || len(res.Data[0].Replies) != 1 {
		t.Fatalf("tickets = %+v", res.Data)
	}

	if _, err := h.api.Tickets.Hide.Mutate(ctx, id, mutation.Callbacks[json.RawMessage]{}); err != nil {
		t.Fatalf("Hide: %v", err)
	}
	if res := h.api.Tickets.List(ctx); len(res.Data) != 0 {
		t.Fatalf("hidden ticket listed: %+v", res.Data)
	}

	_, err = h.api.Tickets.Delete.Mutate(ctx, "missing", mutation.Callbacks[json.RawMessage]{})
	if gateway.StatusOf(err) != http.StatusNotFound || mutation.Message(err) != "Ticket not found" {
		t.Fatalf("delete missing err = %v", err)
	}
}

func TestPostsPagingAndUpdate(t *testing.T) {
	h := newHarness(t, mockbackend.Config{})
	h.signIn(t, session.User{Email: "p@example.com"}, "password-1")
	ctx := context.Background()

	var last api.Post
	for _, title := range []string{"one", "two", "three"} {
		p, err := h.api.Posts.Create.Mutate(ctx, api.PostInput{Title: title, Content: "c", Platforms: []string{"facebook"}}, mutation.Callbacks[api.Post]{})
		if err != nil {
			t.Fatalf("Create %s: %v", title, err)
		}
		last = p
	}

	page := h.api.Posts.List(ctx, 1, 2)
	if page.Data.Total != 3 || len(page.Data.Posts) != 2 || page.Data.Posts[0].Title != "three" {
		t.Fatalf("page 1 = %+v", page.Data)
	}
	page = h.api.Posts.List(ctx, 2, 2)
	if len(page.Data.Posts) != 1 || page.Data.Posts[0].Title != "one" {
		t.Fatalf("page 2 = %+v", page.Data)
	}

	if got := h.api.Posts.Get(ctx, last.ID.String()); got.Data.Title != "three" {
		t.Fatalf("Get = %+v", got)
	}
	_, err := h.api.Posts.Update.Mutate(ctx, api.UpdatePostInput{ID: last.ID.String(), Post: api.PostInput{Title: "edited", Content: "c", Platforms: []string{"x"}, ScheduledAt: "2030-01-01T00:00:00Z"}}, mutation.Callbacks[api.Post]{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	got := h.api.Posts.Get(ctx, last.ID.String())
	if got.Data.Title != "edited" || got.Data.Status != "scheduled" {
		t.Fatalf("after update = %+v", got.Data)
	}
}

func TestClientsCreateAndDelete(t *testing.T) {
	h := newHarness(t, mockbackend.Config{})
	h.signIn(t, session.User{Email: "d@example.com"}, "password-1")
	ctx := context.Background()

	cl, err := h.api.Clients.Create.Mutate(ctx, api.ClientInput{Name: "Acme", Email: "ops@acme.test"}, mutation.Callbacks[api.Client]{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cl.ID == "" || cl.Status != "Active" {
		t.Fatalf("client = %+v", cl)
	}
	if res := h.api.Clients.List(ctx); len(res.Data) != 1 {
		t.Fatalf("clients = %+v", res.Data)
	}
	if _, err := h.api.Clients.Delete.Mutate(ctx, cl.ID.String(), mutation.Callbacks[json.RawMessage]{}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if res := h.api.Clients.List(ctx); len(res.Data) != 0 {
		t.Fatalf("clients after delete = %+v", res.Data)
	}
}

func TestDashboardRefreshesSessionProfile(t *testing.T) {
	h := newHarness(t, mockbackend.Config{})
	u := h.signIn(t, session.User{Email: "dash@example.com", Name: "Before"}, "password-1")

	if _, err := h.api.Profile.Update.Mutate(context.Background(), api.ProfileInput{Name: "After"}, mutation.Callbacks[api.ProfileResponse]{}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	res := h.api.Dashboard.Get(context.Background())
	if res.IsError {
		t.Fatalf("Dashboard: %v", res.Err)
	}
	if res.Data.User == nil || res.Data.User.Name != "After" {
		t.Fatalf("dashboard user = %+v", res.Data.User)
	}
	cur, _ := h.store.CurrentUser()
	if cur.Name != "After" || cur.ID != u.ID {
		t.Fatalf("session user = %+v", cur)
	}
}

func TestProfileEmailChangeConfirmation(t *testing.T) {
	h := newHarness(t, mockbackend.Config{})
	u := h.signIn(t, session.User{Email: "old@example.com"}, "password-1")
	ctx := context.Background()

	resp, err := h.api.Profile.Update.Mutate(ctx, api.ProfileInput{Email: "new@example.com"}, mutation.Callbacks[api.ProfileResponse]{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !resp.PendingConfirmation {
		t.Fatalf("resp = %+v", resp)
	}
	if got := h.store.Confirmation(); got != session.ConfirmationAwaiting {
		t.Fatalf("confirmation = %v", got)
	}

	link, ok := h.backend.ConfirmationToken(u.ID)
	if !ok {
		t.Fatal("no confirmation link")
	}
	state, err := h.api.Profile.ConfirmUpdate.Mutate(ctx, link, mutation.Callbacks[session.Confirmation]{})
	if err != nil || state != session.ConfirmationConfirmed {
		t.Fatalf("confirm: state=%v err=%v", state, err)
	}
	if got := h.store.Confirmation(); got != session.ConfirmationConfirmed {
		t.Fatalf("confirmation = %v", got)
	}

	// The link is single use.
	state, err = h.api.Profile.ConfirmUpdate.Mutate(ctx, link, mutation.Callbacks[session.Confirmation]{})
	if err != nil || state != session.ConfirmationExpired {
		t.Fatalf("reuse: state=%v err=%v", state, err)
	}
	if got := h.store.Confirmation(); got != session.ConfirmationExpired {
		t.Fatalf("confirmation = %v", got)
	}

	if err := h.store.ClearConfirmation(ctx); err != nil {
		t.Fatal(err)
	}
	if got := h.store.Confirmation(); got != session.ConfirmationIdle {
		t.Fatalf("confirmation after clear = %v", got)
	}
}

func TestConfirmUpdateErrors(t *testing.T) {
	h := newHarness(t, mockbackend.Config{})
	ctx := context.Background()

	_, err := h.api.Profile.ConfirmUpdate.Mutate(ctx, "", mutation.Callbacks[session.Confirmation]{})
	if !errors.Is(err, api.ErrEmptyConfirmationToken) {
		t.Fatalf("empty token err = %v", err)
	}
	if got := h.backend.Hits(http.MethodGet, "/profile/confirm-update"); got != 0 {
		t.Fatalf("hits = %d", got)
	}

	h.backend.FailNext(http.MethodGet, "/profile/confirm-update", http.StatusInternalServerError, "down")
	state, err := h.api.Profile.ConfirmUpdate.Mutate(ctx, "any", mutation.Callbacks[session.Confirmation]{})
	if gateway.StatusOf(err) != http.StatusInternalServerError || state != session.ConfirmationIdle {
		t.Fatalf("server error: state=%v err=%v", state, err)
	}
	if got := h.store.Confirmation(); got != session.ConfirmationIdle {
		t.Fatalf("confirmation = %v", got)
	}
}

func TestUploadAvatarUpdatesSession(t *testing.T) {
	h := newHarness(t, mockbackend.Config{})
	h.signIn(t, session.User{Email: "av@example.com"}, "password-1")

	resp, err := h.api.Profile.UploadAvatar.Mutate(context.Background(), api.AvatarUpload{Filename: "me.png", Content: strings.NewReader("\x89PNG")}, mutation.Callbacks[api.AvatarResponse]{})
	if err != nil {
		t.Fatalf("UploadAvatar: %v", err)
	}
	if !strings.HasSuffix(resp.Filename, "me.png") || resp.URL == "" {
		t.Fatalf("resp = %+v", resp)
	}
	cur, _ := h.store.CurrentUser()
	if cur.AvatarURL != resp.URL {
		t.Fatalf("session avatar = %q, want %q", cur.AvatarURL, resp.URL)
	}
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t, mockbackend.Config{})
	h.signIn(t, session.User{Email: "pw@example.com"}, "password-1")
	ctx := context.Background()

	_, err := h.api.Profile.ChangePassword.Mutate(ctx, api.ChangePasswordInput{CurrentPassword: "password-1", NewPassword: "password-1"}, mutation.Callbacks[api.ProfileResponse]{})
	if !errors.Is(err, mutation.ErrValidation) {
		t.Fatalf("same password err = %v", err)
	}
	_, err = h.api.Profile.ChangePassword.Mutate(ctx, api.ChangePasswordInput{CurrentPassword: "wrong-one", NewPassword: "password-2"}, mutation.Callbacks[api.ProfileResponse]{})
	if mutation.Message(err) != "Current password is incorrect" {
		t.Fatalf("wrong current err = %v", err)
	}
	if _, err := h.api.Profile.ChangePassword.Mutate(ctx, api.ChangePasswordInput{CurrentPassword: "password-1", NewPassword: "password-2"}, mutation.Callbacks[api.ProfileResponse]{}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	h := newHarness(t, mockbackend.Config{})
	h.signIn(t, session.User{Email: "set@example.com"}, "password-1")
	ctx := context.Background()

	if res := h.api.Settings.Get(ctx); res.Data["theme"] != "light" {
		t.Fatalf("settings = %+v", res.Data)
	}
	if _, err := h.api.Settings.Update.Mutate(ctx, api.SettingsDocument{"theme": "dark"}, mutation.Callbacks[api.SettingsDocument]{}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res := h.api.Settings.Get(ctx); res.Data["theme"] != "dark" {
		t.Fatalf("settings after update = %+v", res.Data)
	}
}
