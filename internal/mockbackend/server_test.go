package mockbackend

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/cmsync/api"
	"github.com/MrEthical07/cmsync/session"
	"github.com/MrEthical07/cmsync/token"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(Config{Secret: []byte("mock-secret-for-tests-0123456789")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func do(t *testing.T, ts *httptest.Server, method, path, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := hashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Fatalf("unexpected encoding %q", hash)
	}
	ok, err := verifyPassword("correct horse", hash)
	if err != nil || !ok {
		t.Fatalf("verify correct: ok=%v err=%v", ok, err)
	}
	ok, err = verifyPassword("wrong horse", hash)
	if err != nil || ok {
		t.Fatalf("verify wrong: ok=%v err=%v", ok, err)
	}
	if _, err := hashPassword("short"); err == nil {
		t.Fatal("expected short password rejection")
	}
	if _, err := verifyPassword("x", "$bcrypt$nope"); err == nil {
		t.Fatal("expected malformed hash rejection")
	}
}

func TestLoginIssuesDecodableToken(t *testing.T) {
	srv, ts := newTestServer(t)
	u, err := srv.AddUser(session.User{Email: "ada@example.com", Name: "Ada", Role: session.RoleAdmin}, "password-1")
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	resp, body := do(t, ts, http.MethodPost, "/auth/login", "", api.LoginInput{Email: "ADA@example.com", Password: "password-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	raw, _ := body["token"].(string)
	claims, err := token.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.SubjectID() != u.ID || claims.Role != "admin" {
		t.Fatalf("claims = %+v", claims)
	}

	resp, body = do(t, ts, http.MethodPost, "/auth/login", "", api.LoginInput{Email: "ada@example.com", Password: "nope-nope"})
	if resp.StatusCode != http.StatusUnauthorized || body["message"] != "Invalid credentials" {
		t.Fatalf("bad login: %d %v", resp.StatusCode, body)
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	srv, ts := newTestServer(t)
	resp, body := do(t, ts, http.MethodGet, "/tickets", "", nil)
	if resp.StatusCode != http.StatusUnauthorized || body["message"] != "Unauthorized" {
		t.Fatalf("no token: %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, ts, http.MethodGet, "/tickets", "not.a.jwt", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", resp.StatusCode)
	}
	if got := srv.Hits(http.MethodGet, "/tickets"); got != 2 {
		t.Fatalf("hits = %d, want 2", got)
	}
}

func TestTicketLifecycle(t *testing.T) {
	srv, ts := newTestServer(t)
	u, _ := srv.AddUser(session.User{Email: "t@example.com", Name: "Tess"}, "password-1")
	tok, err := srv.IssueToken(u.ID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	resp, body := do(t, ts, http.MethodPost, "/tickets", tok, api.CreateTicketInput{Subject: "Broken", Message: "It broke", Priority: "high"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %v", resp.StatusCode, body)
	}
	id, _ := body["id"].(string)
	if body["client"] != "Tess" || body["status"] != "open" {
		t.Fatalf("ticket = %v", body)
	}

	resp, body = do(t, ts, http.MethodPost, "/tickets/"+id+"/reply", tok, map[string]string{"message": "on it"})
	if resp.StatusCode != http.StatusOK || body["status"] != "in-progress" {
		t.Fatalf("reply: %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, ts, http.MethodPatch, "/tickets/"+id+"/hide", tok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("hide: %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/tickets", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	listResp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer listResp.Body.Close()
	var list []api.Ticket
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("hidden ticket still listed: %+v", list)
	}

	resp, body = do(t, ts, http.MethodDelete, "/tickets/missing", tok, nil)
	if resp.StatusCode != http.StatusNotFound || body["message"] != "Ticket not found" {
		t.Fatalf("delete missing: %d %v", resp.StatusCode, body)
	}
}

func TestConfirmationLinkExpires(t *testing.T) {
	srv, ts := newTestServer(t)
	u, _ := srv.AddUser(session.User{Email: "old@example.com"}, "password-1")
	tok, _ := srv.IssueToken(u.ID)

	resp, body := do(t, ts, http.MethodPut, "/profile", tok, api.ProfileInput{Email: "new@example.com"})
	if resp.StatusCode != http.StatusOK || body["pendingConfirmation"] != true {
		t.Fatalf("update: %d %v", resp.StatusCode, body)
	}
	link, ok := srv.ConfirmationToken(u.ID)
	if !ok {
		t.Fatal("no pending confirmation")
	}

	srv.SetClock(func() time.Time { return time.Now().Add(DefaultConfirmTTL + time.Minute) })
	resp, _ = do(t, ts, http.MethodGet, "/profile/confirm-update?token="+link, "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expired link: %d", resp.StatusCode)
	}
}

func TestFailNextIsOneShot(t *testing.T) {
	srv, ts := newTestServer(t)
	u, _ := srv.AddUser(session.User{Email: "f@example.com"}, "password-1")
	tok, _ := srv.IssueToken(u.ID)

	srv.FailNext(http.MethodGet, "/settings", http.StatusInternalServerError, "boom")
	resp, body := do(t, ts, http.MethodGet, "/settings", tok, nil)
	if resp.StatusCode != http.StatusInternalServerError || body["message"] != "boom" {
		t.Fatalf("injected: %d %v", resp.StatusCode, body)
	}
	resp, body = do(t, ts, http.MethodGet, "/settings", tok, nil)
	if resp.StatusCode != http.StatusOK || body["theme"] != "light" {
		t.Fatalf("after: %d %v", resp.StatusCode, body)
	}
}
