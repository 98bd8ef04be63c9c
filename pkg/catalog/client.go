// Package catalog is the only code path that talks to the upstream card
// catalog. Every request first takes a token from the catalog's rate limiter.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtgmarket/cardgate/pkg/models"
)

const maxLoggedBody = 2048

var (
	// ErrInvalidArgument is returned before any request is made for missing ids,
	// queries or names.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidJSON is returned when a successful response is not valid JSON.
	ErrInvalidJSON = errors.New("upstream returned invalid json")
)

// UpstreamError reports a non-2xx response from the catalog.
type UpstreamError struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("catalog request failed: %d", e.StatusCode)
}

// Acquirer admits one outbound request, blocking until allowed.
type Acquirer interface {
	Acquire(ctx context.Context) error
}

// Recorder receives a record of every attempted upstream request.
type Recorder interface {
	Record(ctx context.Context, call models.UpstreamCall) error
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client issues read-only catalog requests.
type Client struct {
	baseURL   string
	userAgent string
	limiter   Acquirer
	http      *http.Client
	logger    *slog.Logger
	recorder  Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its timeout takes precedence over
// Config.Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRecorder records every upstream request.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// New creates a Client gated by limiter.
func New(cfg Config, limiter Acquirer, opts ...Option) (*Client, error) {
	if limiter == nil {
		return nil, errors.New("catalog client requires a limiter")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid catalog base url %q", cfg.BaseURL)
	}

	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		limiter:   limiter,
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Search runs a free-text catalog query. Pages start at 1; smaller values are
// treated as 1.
func (c *Client) Search(ctx context.Context, query string, page int) (json.RawMessage, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", ErrInvalidArgument)
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("page", strconv.Itoa(max(page, 1)))
	return c.get(ctx, models.EndpointSearch, "/cards/search", params)
}

// CardByID fetches a single card.
func (c *Client) CardByID(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty card id", ErrInvalidArgument)
	}
	return c.get(ctx, models.EndpointCard, "/cards/"+url.PathEscape(id), nil)
}

// Prints fetches every printing of a card.
func (c *Client) Prints(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty card id", ErrInvalidArgument)
	}
	return c.get(ctx, models.EndpointPrints, "/cards/"+url.PathEscape(id)+"/prints", nil)
}

// Named looks a card up by exact or fuzzy name.
func (c *Client) Named(ctx context.Context, q models.NameQuery) (json.RawMessage, error) {
	params := url.Values{}
	switch {
	case q.Exact != "" && q.Fuzzy != "":
		return nil, fmt.Errorf("%w: exact and fuzzy are mutually exclusive", ErrInvalidArgument)
	case q.Exact != "":
		params.Set("exact", q.Exact)
	case q.Fuzzy != "":
		params.Set("fuzzy", q.Fuzzy)
	default:
		return nil, fmt.Errorf("%w: a name is required", ErrInvalidArgument)
	}
	return c.get(ctx, models.EndpointNamed, "/cards/named", params)
}

func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values) (json.RawMessage, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	start := time.Now()
	status, body, err := c.do(ctx, target)
	c.record(ctx, endpoint, path, status, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, target string) (int, json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logged := string(body)
		if len(logged) > maxLoggedBody {
			logged = logged[:maxLoggedBody]
		}
		c.logger.WarnContext(ctx, "catalog error", "url", target, "status", resp.StatusCode, "body", logged)
		return resp.StatusCode, nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body), URL: target}
	}

	if !json.Valid(body) {
		return resp.StatusCode, nil, fmt.Errorf("%s: %w", target, ErrInvalidJSON)
	}
	return resp.StatusCode, json.RawMessage(body), nil
}

func (c *Client) record(ctx context.Context, endpoint, path string, status int, latency time.Duration, callErr error) {
	if c.recorder == nil {
		return
	}
	call := models.UpstreamCall{
		ID:         uuid.NewString(),
		Endpoint:   endpoint,
		Path:       path,
		StatusCode: status,
		LatencyMs:  latency.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if callErr != nil {
		call.Error = callErr.Error()
	}
	if err := c.recorder.Record(context.WithoutCancel(ctx), call); err != nil {
		c.logger.ErrorContext(ctx, "record upstream call", "endpoint", endpoint, "error", err)
	}
}
