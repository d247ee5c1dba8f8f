package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds every call unless overridden.
	DefaultTimeout = 15 * time.Second

	maxResponseBytes = 8 << 20
)

// TokenSource yields the current bearer token, or "" when logged out.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to [TokenSource].
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Outcome summarizes one call for observers.
type Outcome struct {
	Method    string
	Endpoint  string
	RequestID string
	Status    int
	Duration  time.Duration
	Err       error
}

// Options describes a single request.
type Options struct {
	// Method defaults to GET.
	Method string
	// Header values override the defaults set by the gateway.
	Header http.Header
	Query  url.Values
	// Body is JSON-encoded unless it is a *Multipart, an io.Reader or a
	// []byte; the latter two are sent as is without a content type.
	Body any
}

// Option configures a [Gateway].
type Option func(*Gateway)

// WithHTTPClient replaces the underlying client. Its Timeout is left alone;
// the gateway applies its own per-call timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		if c != nil {
			g.client = c
		}
	}
}

// WithTimeout overrides [DefaultTimeout]. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRateLimit throttles outgoing calls to r per second with the given
// burst. Callers block until a slot is free or their context ends.
func WithRateLimit(r float64, burst int) Option {
	return func(g *Gateway) {
		if r > 0 {
			if burst < 1 {
				burst = 1
			}
			g.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithObserver registers fn to receive one [Outcome] per call.
func WithObserver(fn func(Outcome)) Option {
	return func(g *Gateway) { g.observer = fn }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(g *Gateway) { g.userAgent = ua }
}

// Gateway performs authenticated JSON calls against one backend.
// It is safe for concurrent use.
type Gateway struct {
	base      string
	tokens    TokenSource
	client    *http.Client
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger
	observer  func(Outcome)
	userAgent string
}

// New returns a Gateway for baseURL. tokens may be nil for anonymous use.
func New(baseURL string, tokens TokenSource, opts ...Option) (*Gateway, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	g := &Gateway{
		base:    strings.TrimRight(u.String(), "/"),
		tokens:  tokens,
		client:  &http.Client{},
		timeout: DefaultTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// BaseURL returns the normalized base URL.
func (g *Gateway) BaseURL() string { return g.base }

// Timeout returns the per-call timeout.
func (g *Gateway) Timeout() time.Duration { return g.timeout }

// Call sends one request and returns the raw JSON body of a 2xx response.
// An empty 2xx body is returned as null. Every error is an [*Error].
func (g *Gateway) Call(ctx context.Context, endpoint string, opts Options) (json.RawMessage, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	requestID := requestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	start := time.Now()

	raw, status, err := g.call(ctx, method, endpoint, requestID, opts)

	outcome := Outcome{
		Method:    method,
		Endpoint:  endpoint,
		RequestID: requestID,
		Status:    status,
		Duration:  time.Since(start),
		Err:       err,
	}
	if err != nil {
		g.logger.Warn("gateway: request failed",
			slog.String("method", method),
			slog.String("endpoint", endpoint),
			slog.String("request_id", requestID),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	} else {
		g.logger.Debug("gateway: request completed",
			slog.String("method", method),
			slog.String("endpoint", endpoint),
			slog.String("request_id", requestID),
			slog.Int("status", status),
			slog.Duration("duration", outcome.Duration))
	}
	if g.observer != nil {
		g.observer(outcome)
	}
	return raw, err
}

func (g *Gateway) call(ctx context.Context, method, endpoint, requestID string, opts Options) (json.RawMessage, int, error) {
	fail := func(status int, cause error) *Error {
		return &Error{Method: method, Endpoint: endpoint, Status: status, Message: DefaultErrorMessage, Err: cause}
	}

	target, err := g.resolve(endpoint, opts.Query)
	if err != nil {
		return nil, 0, fail(0, err)
	}
	body, contentType, err := encodeBody(opts.Body)
	if err != nil {
		return nil, 0, fail(0, fmt.Errorf("encode body: %w", err))
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, 0, fail(0, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, target, body)
	if err != nil {
		return nil, 0, fail(0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	if g.tokens != nil {
		if tok := g.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	for k, vs := range opts.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			e := fail(0, err)
			e.Timeout = true
			e.Message = "Request timed out"
			return nil, 0, e
		}
		if ctx.Err() != nil {
			return nil, 0, fail(0, ctx.Err())
		}
		return nil, 0, fail(0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		e := fail(resp.StatusCode, err)
		e.Timeout = ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded)
		return nil, resp.StatusCode, e
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := fail(resp.StatusCode, ErrStatus)
		e.Message = ExtractMessage(data)
		e.Body = data
		return nil, resp.StatusCode, e
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return json.RawMessage("null"), resp.StatusCode, nil
	}
	if !json.Valid(data) {
		e := fail(resp.StatusCode, ErrDecode)
		e.Body = data
		return nil, resp.StatusCode, e
	}
	return json.RawMessage(data), resp.StatusCode, nil
}

func (g *Gateway) resolve(endpoint string, query url.Values) (string, error) {
	if endpoint == "" {
		return "", errors.New("empty endpoint")
	}
	u, err := url.Parse(g.base + "/" + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case *Multipart:
		return b.encode()
	case json.RawMessage:
		return bytes.NewReader(b), "application/json", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case io.Reader:
		return b, "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}
