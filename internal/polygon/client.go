package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/speculor/internal/models"
)

const (
	// DefaultBaseURL is the base URL for the market-data provider.
	DefaultBaseURL = "https://api.polygon.io"

	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultRateLimit is the default request rate (per second) and
	// burst capacity of the shared token bucket.
	DefaultRateLimit = 99

	// rateLimitRetries is how many times a throttled request is retried
	// before the rate-limit error surfaces to the caller.
	rateLimitRetries = 3

	// rateLimitBackoffBase and rateLimitBackoffCap bound the exponential
	// backoff between throttled attempts.
	rateLimitBackoffBase = 1500 * time.Millisecond
	rateLimitBackoffCap  = 30 * time.Second
)

// CallOutcome labels one completed API call for metrics.
type CallOutcome string

const (
	OutcomeOK          CallOutcome = "ok"
	OutcomeRateLimited CallOutcome = "rate_limited"
	OutcomeAborted     CallOutcome = "aborted"
	OutcomeTimedOut    CallOutcome = "timed_out"
	OutcomeRestricted  CallOutcome = "subscription_restricted"
	OutcomeFailed      CallOutcome = "failed"
)

// CallRecorder receives per-call metrics. Implemented by the scan run's
// metrics tracker; bound to a request via WithRecorder.
type CallRecorder interface {
	RecordAPICall(latency time.Duration, outcome CallOutcome)
}

type recorderKey struct{}

// WithRecorder binds a call recorder to the context for the duration of
// a run.
func WithRecorder(ctx context.Context, rec CallRecorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, rec)
}

func recorderFrom(ctx context.Context) CallRecorder {
	rec, _ := ctx.Value(recorderKey{}).(CallRecorder)
	return rec
}

// Client is the provider API client. A single instance is shared by all
// concurrent callers; the token bucket and breaker serialise their own
// state.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
	breaker    *Breaker
	paused     func() bool
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the token bucket rate and burst capacity.
func WithRateLimit(requestsPerSecond, capacity int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), capacity)
	}
}

// WithBreaker sets a custom circuit breaker.
func WithBreaker(breaker *Breaker) ClientOption {
	return func(c *Client) {
		c.breaker = breaker
	}
}

// WithKillSwitch sets the global pause check; while it returns true every
// call fails with a paused error.
func WithKillSwitch(paused func() bool) ClientOption {
	return func(c *Client) {
		c.paused = paused
	}
}

// NewClient creates a new provider API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		paused:  func() bool { return false },
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = arbor.NewLogger()
	}
	if c.breaker == nil {
		c.breaker = NewBreaker(5, 30*time.Second, IsInfrastructure, c.logger)
	}

	return c
}

// Breaker exposes the circuit breaker for status reporting.
func (c *Client) Breaker() *Breaker {
	return c.breaker
}

// SanitizeURL replaces the API key in a URL with *** so it never reaches
// a log line.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Get("apiKey") != "" {
		q.Set("apiKey", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// buildPath assembles an endpoint path, percent-encoding each segment.
func buildPath(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(escaped, "/")
}

// fetchJSON acquires a rate slot, asserts the circuit closed, performs a
// GET and returns the raw body. Throttled attempts are retried with
// bounded exponential backoff; all other outcomes surface immediately.
// The API key is appended at transmit time only.
func (c *Client) fetchJSON(ctx context.Context, path string, params url.Values, label string) ([]byte, error) {
	if c.apiKey == "" || c.paused() {
		return nil, newError(KindPaused, label, "provider requests paused or no API key configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, newError(KindAborted, label, "cancelled while waiting for rate slot")
	}

	if err := c.breaker.Allow(label); err != nil {
		return nil, err
	}

	var body []byte
	var err error
	for attempt := 0; attempt <= rateLimitRetries; attempt++ {
		if attempt > 0 {
			backoff := rateLimitBackoffBase << (attempt - 1)
			if backoff > rateLimitBackoffCap {
				backoff = rateLimitBackoffCap
			}
			if sleepErr := sleepContext(ctx, backoff); sleepErr != nil {
				err = newError(KindAborted, label, "cancelled during rate-limit backoff")
				break
			}
		}

		body, err = c.doRequest(ctx, path, params, label)
		if !IsRateLimited(err) {
			break
		}
		c.logger.Warn().
			Str("endpoint", label).
			Int("attempt", attempt+1).
			Msg("Provider rate limited, backing off")
	}

	c.breaker.Record(err)
	return body, err
}

// doRequest performs a single GET attempt and classifies the outcome.
func (c *Client) doRequest(ctx context.Context, path string, params url.Values, label string) ([]byte, error) {
	for key, values := range params {
		for _, v := range values {
			if v == "" {
				return nil, newError(KindBadPayload, label, "empty query value for %q", key)
			}
		}
	}

	query := url.Values{}
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	query.Set("apiKey", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, newError(KindBadPayload, label, "failed to create request: %v", err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("url", SanitizeURL(reqURL)).
			Str("endpoint", label).
			Msg("Provider API request")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)

	if err != nil {
		outcome := OutcomeFailed
		kind := KindOf(err)
		switch kind {
		case KindAborted:
			outcome = OutcomeAborted
		case KindTimeout:
			outcome = OutcomeTimedOut
		}
		c.record(ctx, latency, outcome)
		return nil, &Error{Kind: kind, Endpoint: label, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		c.record(ctx, latency, OutcomeFailed)
		return nil, newError(KindNetwork, label, "failed to read body: %v", readErr)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.record(ctx, latency, OutcomeRateLimited)
		return nil, newError(KindRateLimited, label, "HTTP 429")
	case resp.StatusCode == http.StatusForbidden:
		c.record(ctx, latency, OutcomeRestricted)
		return nil, &Error{Kind: KindSubscriptionRestricted, StatusCode: resp.StatusCode, Endpoint: label, Message: restrictionMessage(body)}
	case resp.StatusCode != http.StatusOK:
		c.record(ctx, latency, OutcomeFailed)
		return nil, &Error{Kind: KindBadStatus, StatusCode: resp.StatusCode, Endpoint: label, Message: truncate(string(body), 200)}
	}

	// A 200 body can still carry a throttle note. Bare-array bodies do
	// not decode into the envelope; that is fine.
	var env envelope
	if jsonErr := json.Unmarshal(body, &env); jsonErr == nil {
		if payloadErr := payloadError(&env, label); payloadErr != nil {
			if IsRateLimited(payloadErr) {
				c.record(ctx, latency, OutcomeRateLimited)
			} else {
				c.record(ctx, latency, OutcomeFailed)
			}
			return nil, payloadErr
		}
	}

	c.record(ctx, latency, OutcomeOK)
	return body, nil
}

func (c *Client) record(ctx context.Context, latency time.Duration, outcome CallOutcome) {
	if rec := recorderFrom(ctx); rec != nil {
		rec.RecordAPICall(latency, outcome)
	}
}

// FetchAggs returns ordered bars for a symbol over [from, to] at the given
// source interval.
func (c *Client) FetchAggs(ctx context.Context, ticker string, interval models.SourceInterval, from, to string) ([]models.Bar, error) {
	multiplier, timespan := interval.ProviderRange()
	path := buildPath("v2", "aggs", "ticker", ticker, "range",
		fmt.Sprintf("%d", multiplier), timespan, from, to)

	params := url.Values{}
	params.Set("adjusted", "true")
	params.Set("sort", "asc")
	params.Set("limit", "50000")

	label := "aggs/" + ticker
	body, err := c.fetchJSON(ctx, path, params, label)
	if err != nil {
		return nil, err
	}

	bars, err := parseBars(body, label)
	if err != nil {
		// Shape drift degrades to an empty result rather than an error.
		c.logger.Warn().
			Str("endpoint", label).
			Err(err).
			Msg("Unrecognised aggregate payload shape")
		return nil, nil
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// FetchAggsWithFallback tries each interval in order and returns the first
// non-empty bar array. Rate-limit and paused errors short-circuit; an
// empty result means every candidate parsed but held no rows.
func (c *Client) FetchAggsWithFallback(ctx context.Context, ticker string, intervals []models.SourceInterval, from, to string) ([]models.Bar, error) {
	var lastErr error
	for _, interval := range intervals {
		bars, err := c.FetchAggs(ctx, ticker, interval, from, to)
		if err != nil {
			if IsRateLimited(err) || IsPaused(err) || IsAborted(err) {
				return nil, err
			}
			lastErr = err
			continue
		}
		if len(bars) > 0 {
			return bars, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

// FetchMovingAverage returns the latest value of the named moving average
// ("sma" or "ema") with the given window.
func (c *Client) FetchMovingAverage(ctx context.Context, ticker, kind string, window int) (float64, error) {
	path := buildPath("v1", "indicators", kind, ticker)

	params := url.Values{}
	params.Set("timespan", "day")
	params.Set("window", fmt.Sprintf("%d", window))
	params.Set("series_type", "close")
	params.Set("order", "desc")
	params.Set("limit", "1")

	label := fmt.Sprintf("%s%d/%s", kind, window, ticker)
	body, err := c.fetchJSON(ctx, path, params, label)
	if err != nil {
		return 0, err
	}

	var resp indicatorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, newError(KindBadPayload, label, "undecodable indicator body: %v", err)
	}
	if len(resp.Results.Values) == 0 {
		return 0, newError(KindBadPayload, label, "indicator response holds no values")
	}
	return resp.Results.Values[0].Value, nil
}

// FetchReferenceTickers lists active stock symbols from the provider's
// directory, used to bootstrap the universe.
func (c *Client) FetchReferenceTickers(ctx context.Context) ([]models.Symbol, error) {
	path := buildPath("v3", "reference", "tickers")

	params := url.Values{}
	params.Set("market", "stocks")
	params.Set("active", "true")
	params.Set("limit", "1000")

	body, err := c.fetchJSON(ctx, path, params, "reference/tickers")
	if err != nil {
		return nil, err
	}

	var resp referenceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newError(KindBadPayload, "reference/tickers", "undecodable directory body: %v", err)
	}

	now := time.Now()
	symbols := make([]models.Symbol, 0, len(resp.Results))
	for _, r := range resp.Results {
		symbols = append(symbols, models.Symbol{
			Ticker:    r.Ticker,
			IsActive:  r.Active,
			Exchange:  r.PrimaryExchange,
			AssetType: r.Type,
			UpdatedAt: now,
		})
	}
	return symbols, nil
}

// sleepContext sleeps for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func restrictionMessage(body []byte) string {
	msg := truncate(strings.TrimSpace(string(body)), 200)
	if msg == "" {
		return "subscription does not cover this endpoint"
	}
	return msg
}
