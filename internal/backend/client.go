// Package backend is a typed client for the document-retrieval backend:
// stats, collections, documents, query history and user accounts.
// Every call forwards the bearer token carried by the request context.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/openrag/opsconsole/internal/resilience"
	"github.com/openrag/opsconsole/internal/session"
)

const (
	// DefaultBaseURL is the backend API gateway of a local deployment.
	DefaultBaseURL = "http://localhost:8000"

	// UpstreamName identifies the backend in the resilience registry.
	UpstreamName = "backend"

	maxResponseBytes = 4 << 20
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the backend client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use.
	// If nil, a circuit-protected client is created.
	HTTPClient HTTPDoer

	// Timeout for individual API requests (default: 10s).
	Timeout time.Duration

	// Registry receives the default client's circuit state. Ignored when
	// HTTPClient is set.
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Client is a backend API client.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new backend client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		cbConfig := resilience.DefaultCircuitBreakerConfig(UpstreamName)
		cbConfig.OnStateChange = breakerLogger(cfg.Logger)
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:           UpstreamName,
			Timeout:        timeout,
			CircuitBreaker: &cbConfig,
			Registry:       cfg.Registry,
		})
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Me returns the principal that owns the session's token.
func (c *Client) Me(ctx context.Context) (session.Principal, error) {
	var principal session.Principal
	if err := c.do(ctx, call{op: "get current user", method: http.MethodGet, path: "/auth/me", auth: true}, &principal); err != nil {
		return session.Principal{}, err
	}
	return principal, nil
}

// Stats fetches the aggregate counters.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, call{op: "get stats", method: http.MethodGet, path: "/stats", auth: true}, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Collections fetches the vector collection summaries.
func (c *Client) Collections(ctx context.Context) ([]CollectionSummary, error) {
	var raw json.RawMessage
	if err := c.do(ctx, call{op: "list collections", method: http.MethodGet, path: "/collections"}, &raw); err != nil {
		return nil, err
	}
	collections, err := decodeCollections(raw)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w: %v", ErrMalformedResponse, err)
	}
	return collections, nil
}

// ListDocuments fetches one page of documents and the backend's total.
func (c *Client) ListDocuments(ctx context.Context, q ListQuery) ([]DocumentRecord, int, error) {
	var raw json.RawMessage
	err := c.do(ctx, call{
		op:     "list documents",
		method: http.MethodGet,
		path:   "/documents",
		query:  q.values(),
		auth:   true,
	}, &raw)
	if err != nil {
		return nil, 0, err
	}
	page, err := decodePage[DocumentRecord](raw, "documents")
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w: %v", ErrMalformedResponse, err)
	}
	return page.Items, page.Total, nil
}

// DeleteDocument deletes a document.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.do(ctx, call{
		op:     "delete document",
		method: http.MethodDelete,
		path:   "/documents/" + url.PathEscape(id),
		auth:   true,
	}, nil)
}

// ListHistory fetches one page of query history and the backend's total.
func (c *Client) ListHistory(ctx context.Context, q ListQuery) ([]QueryHistoryEntry, int, error) {
	q.Status = ""
	var raw json.RawMessage
	err := c.do(ctx, call{
		op:     "list history",
		method: http.MethodGet,
		path:   "/history",
		query:  q.values(),
		auth:   true,
	}, &raw)
	if err != nil {
		return nil, 0, err
	}
	page, err := decodePage[QueryHistoryEntry](raw, "queries")
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w: %v", ErrMalformedResponse, err)
	}
	return page.Items, page.Total, nil
}

// ListUsers fetches every account.
func (c *Client) ListUsers(ctx context.Context) ([]UserAccount, error) {
	var body struct {
		Users []UserAccount `json:"users"`
	}
	if err := c.do(ctx, call{op: "list users", method: http.MethodGet, path: "/auth/users", auth: true}, &body); err != nil {
		return nil, err
	}
	if body.Users == nil {
		body.Users = []UserAccount{}
	}
	return body.Users, nil
}

// CreateUser creates an account and returns it as stored by the backend.
func (c *Client) CreateUser(ctx context.Context, in NewUser) (UserAccount, error) {
	var created UserAccount
	err := c.do(ctx, call{
		op:     "create user",
		method: http.MethodPost,
		path:   "/auth/users",
		body:   in,
		auth:   true,
	}, &created)
	if err != nil {
		return UserAccount{}, err
	}
	return created, nil
}

// DeleteUser deletes an account.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, call{
		op:     "delete user",
		method: http.MethodDelete,
		path:   "/auth/users/" + url.PathEscape(id),
		auth:   true,
	}, nil)
}

// ChangePassword replaces an account's password.
func (c *Client) ChangePassword(ctx context.Context, id, password string) error {
	return c.do(ctx, call{
		op:     "change password",
		method: http.MethodPatch,
		path:   "/auth/users/" + url.PathEscape(id) + "/password",
		body:   map[string]string{"password": password},
		auth:   true,
	}, nil)
}

type call struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	auth   bool
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("offset", strconv.Itoa(q.Offset))
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	return v
}

// do performs one request. It is never retried.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	sess := session.FromContext(ctx)
	if cl.auth && !sess.Active() {
		return fmt.Errorf("%s: %w", cl.op, session.ErrNoSession)
	}

	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	var body io.Reader = http.NoBody
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", cl.op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", cl.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess.Active() {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("op", cl.op).
			Bool("circuit_open", isCircuitOpen(err)).
			Dur("duration", time.Since(start)).
			Msg("backend unreachable")
		return &TransportError{Op: cl.op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: cl.op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rejected := newRejectedError(cl.op, resp, data)
		c.logger.Warn().
			Str("op", cl.op).
			Int("status", resp.StatusCode).
			Str("detail", rejected.Detail).
			Dur("duration", time.Since(start)).
			Msg("backend rejected request")
		return rejected
	}

	c.logger.Debug().
		Str("op", cl.op).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("backend request completed")

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %w: %v", cl.op, ErrMalformedResponse, err)
	}
	return nil
}

func breakerLogger(logger zerolog.Logger) func(name string, from, to gobreaker.State) {
	return func(name string, from, to gobreaker.State) {
		logger.Warn().
			Str("upstream", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state changed")
	}
}
