// Package nba fetches schedules, stat dashboards, box scores and daily
// lineups from the NBA's public web endpoints.
package nba

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/fortuna/tipoff/internal/cache"
	"github.com/fortuna/tipoff/internal/logger"
	"github.com/fortuna/tipoff/internal/metrics"
)

const (
	StatsBaseURL    = "https://stats.nba.com"
	ScheduleBaseURL = "https://core-api.nba.com"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer   = "https://www.nba.com/"
)

var (
	// ErrNotFound reports a resource the upstream does not have, such as a
	// box score for a postponed game.
	ErrNotFound = errors.New("not found upstream")
	// ErrBlocked reports an HTML page served in place of JSON.
	ErrBlocked = errors.New("upstream returned an html page")
	// ErrMissingParam reports a required parameter left empty.
	ErrMissingParam = errors.New("missing required parameter")
)

// StatusError is returned for non-200 responses.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Endpoint describes one upstream resource: which parameters it needs, how
// to build its request and how to decode its body.
type Endpoint[T any] interface {
	Name() string
	Required() []string
	Request(ctx context.Context, params url.Values) (*http.Request, error)
	Parse(body []byte) (T, error)
	Cacheable() bool
}

// Client handles NBA API requests.
type Client struct {
	statsBaseURL    string
	scheduleBaseURL string
	scheduleKey     string

	teamFeatures   []string
	playerFeatures []string

	http     *http.Client
	limiter  *rate.Limiter
	cache    cache.Cache
	cacheTTL time.Duration

	log     logger.Logger
	metrics *metrics.Manager
}

// Option configures a Client.
type Option func(*Client)

// WithStatsBaseURL overrides the stats.nba.com base URL (useful for tests).
func WithStatsBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.statsBaseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithScheduleBaseURL overrides the schedule feed base URL.
func WithScheduleBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.scheduleBaseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithScheduleKey sets the subscription key the schedule feed expects.
func WithScheduleKey(key string) Option {
	return func(c *Client) { c.scheduleKey = key }
}

// WithFeatures selects the dashboard columns kept for teams and players.
// Empty lists keep every column.
func WithFeatures(team, player []string) Option {
	return func(c *Client) {
		c.teamFeatures = team
		c.playerFeatures = player
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithMinInterval enforces a delay between upstream calls. Zero disables it.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithCache caches immutable responses for ttl.
func WithCache(cc cache.Cache, ttl time.Duration) Option {
	return func(c *Client) {
		if cc != nil {
			c.cache = cc
			c.cacheTTL = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *metrics.Manager) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client with browser-like defaults and a 600ms courtesy interval.
func New(opts ...Option) *Client {
	c := &Client{
		statsBaseURL:    StatsBaseURL,
		scheduleBaseURL: ScheduleBaseURL,
		http:            &http.Client{Timeout: 30 * time.Second},
		limiter:         rate.NewLimiter(rate.Every(600*time.Millisecond), 1),
		cache:           cache.Nop{},
		log:             logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("nba-client")
	return c
}

func (c *Client) newRequest(ctx context.Context, base, path string, params url.Values) (*http.Request, error) {
	u := base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Referer", referer)
	req.Header.Set("Origin", strings.TrimRight(referer, "/"))
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// do runs one endpoint call: parameter validation, cache, rate wait, fetch, parse.
func do[T any](ctx context.Context, c *Client, ep Endpoint[T], params url.Values) (T, error) {
	var zero T

	for _, key := range ep.Required() {
		if strings.TrimSpace(params.Get(key)) == "" {
			return zero, fmt.Errorf("%s: %w: %s", ep.Name(), ErrMissingParam, key)
		}
	}

	key := ep.Name() + "?" + params.Encode()
	if ep.Cacheable() {
		body, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			if v, perr := ep.Parse(body); perr == nil {
				c.metrics.RecordCacheLookup(true)
				return v, nil
			}
		case !errors.Is(err, cache.ErrMiss):
			c.log.Warn(ctx, "cache read failed", logger.String("endpoint", ep.Name()), logger.Err(err))
		}
		c.metrics.RecordCacheLookup(false)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return zero, err
	}

	req, err := ep.Request(ctx, params)
	if err != nil {
		return zero, fmt.Errorf("%s: build request: %w", ep.Name(), err)
	}

	start := time.Now()
	body, err := c.fetch(req, ep.Name())
	if err != nil {
		c.metrics.RecordUpstreamRequest(ep.Name(), "error", time.Since(start))
		return zero, err
	}

	v, err := ep.Parse(body)
	if err != nil {
		c.metrics.RecordUpstreamRequest(ep.Name(), "parse_error", time.Since(start))
		return zero, fmt.Errorf("%s: %w", ep.Name(), err)
	}
	c.metrics.RecordUpstreamRequest(ep.Name(), "ok", time.Since(start))

	if ep.Cacheable() {
		if err := c.cache.Set(ctx, key, body, c.cacheTTL); err != nil {
			c.log.Warn(ctx, "cache write failed", logger.String("endpoint", ep.Name()), logger.Err(err))
		}
	}
	return v, nil
}

// fetch makes the HTTP call and rejects non-JSON answers.
func (c *Client) fetch(req *http.Request, name string) ([]byte, error) {
	c.log.Debug(req.Context(), "request", logger.String("endpoint", name), logger.String("url", req.URL.String()))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", name, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, &StatusError{Endpoint: name, Code: resp.StatusCode, Body: snippet(body)}
	}

	// Check if we got an HTML page (access denied, maintenance, etc.)
	if isHTML(resp, body) {
		return nil, fmt.Errorf("%s: %w (status %d): %s", name, ErrBlocked, resp.StatusCode, pageTitle(body))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Endpoint: name, Code: resp.StatusCode, Body: snippet(body)}
	}
	return body, nil
}

func isHTML(resp *http.Response, body []byte) bool {
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '<'
}

func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return snippet(body)
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return snippet(body)
}

func snippet(body []byte) string {
	return string(body[:min(len(body), 200)])
}
