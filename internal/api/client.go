// Package api is the single choke point for calls to the HackPlate backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackplate/hackplate-cli/internal/auth"
	"github.com/hackplate/hackplate-cli/internal/cache"
	"github.com/hackplate/hackplate-cli/internal/metrics"
)

const maxResponseBytes = 2 << 20

type Client struct {
	baseURL  string
	http     *http.Client
	tokens   auth.TokenSource
	logger   *zap.Logger
	cache    cache.Store
	cacheTTL time.Duration
	metrics  *metrics.Recorder
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenSource installs the interceptor-style credential lookup used when a
// call carries no explicit token.
func WithTokenSource(ts auth.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCache enables caching of public analytics responses for ttl.
func WithCache(s cache.Store, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = s
		c.cacheTTL = ttl
	}
}

// WithMetrics instruments the HTTP transport. Apply after WithHTTPClient.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Client) {
		if r == nil {
			return
		}
		c.metrics = r
		hc := *c.http
		hc.Transport = r.Transport(hc.Transport)
		c.http = &hc
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

type tokenCtxKey struct{}

// WithToken attaches an explicit bearer token to ctx. It takes precedence over
// the client's TokenSource. Callers holding a freshly fetched, short-lived
// token from an identity provider pass it this way.
func WithToken(ctx context.Context, token string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tokenCtxKey{}, strings.TrimSpace(token))
}

// credential resolves the bearer token for this call. "" means signed out.
func (c *Client) credential(ctx context.Context) (string, error) {
	if tok, ok := ctx.Value(tokenCtxKey{}).(string); ok && tok != "" {
		return tok, nil
	}
	if c.tokens == nil {
		return "", nil
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve credential: %w", err)
	}
	return strings.TrimSpace(tok), nil
}

// Authenticated reports whether a credential is available for ctx.
// Token source failures count as signed out.
func (c *Client) Authenticated(ctx context.Context) bool {
	tok, err := c.credential(ctx)
	if err != nil {
		c.logger.Debug("credential lookup failed", zap.Error(err))
		return false
	}
	return tok != ""
}

type authMode int

const (
	authOptional authMode = iota
	authRequired
)

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	auth   authMode
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
	Error  string          `json:"error"`
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	if c.baseURL == "" {
		return errors.New("api base url is empty")
	}
	tok, err := c.credential(ctx)
	if err != nil {
		return err
	}
	if tok == "" && r.auth == authRequired {
		return &AuthRequiredError{Op: r.op}
	}

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", r.op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", r.op, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("api request failed",
			zap.String("op", r.op),
			zap.String("request_id", reqID),
			zap.Error(err),
		)
		return &NetworkError{Op: r.op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Op: r.op, Err: err}
	}
	c.logger.Debug("api request",
		zap.String("op", r.op),
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.String("request_id", reqID),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthRequiredError{Op: r.op, Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{
			Op:     r.op,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(b)),
			Detail: detailOf(b),
		}
	}

	if out == nil || len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", r.op, err)
	}
	return nil
}

// detailOf extracts the human message from FastAPI ({"detail": "..."}) or
// gateway ({"error": "..."}) error bodies.
func detailOf(b []byte) string {
	var eb errorBody
	if err := json.Unmarshal(b, &eb); err != nil {
		return ""
	}
	if len(eb.Detail) > 0 {
		var s string
		if err := json.Unmarshal(eb.Detail, &s); err == nil {
			return s
		}
		return string(eb.Detail)
	}
	return eb.Error
}
