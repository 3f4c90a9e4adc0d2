package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Errors surfaced by resilient calls.
var (
	// ErrCircuitOpen is returned without touching the network when the
	// source's breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrUnauthorized marks a 401/403 from the upstream. Never retried:
	// a bad token does not get better on the next attempt.
	ErrUnauthorized = errors.New("upstream rejected credentials")
)

// defaultUserAgent identifies this service to upstream APIs. NASA
// services ask clients to send a meaningful agent string.
const defaultUserAgent = "safeout/1.0 (+https://github.com/safeout/safeout)"

// ClientConfig tunes one upstream HTTP client.
type ClientConfig struct {
	// Name identifies the source for the breaker and health registry.
	Name string

	// Timeout per individual HTTP attempt. Default: 10 seconds.
	Timeout time.Duration

	// MaxRetries after the first attempt. Default: 3.
	MaxRetries uint64

	// InitialInterval of the exponential backoff. Default: 100ms.
	InitialInterval time.Duration

	// MaxInterval caps the backoff. Default: 5 seconds.
	MaxInterval time.Duration

	// UserAgent overrides the default agent string.
	UserAgent string

	// Breaker overrides DefaultBreakerConfig when non-nil.
	Breaker *BreakerConfig

	// Transport overrides the default transport, mainly for tests and
	// for clients that need redirect-following with auth headers.
	Transport http.RoundTripper

	// Registry receives per-call health stamps when non-nil.
	Registry *Registry
}

// Client executes HTTP requests against one upstream source with
// retries, a circuit breaker, and status-code classification.
// Retryable: network errors, 5xx, 429. Permanent: 4xx (except 429),
// open breaker.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	config     ClientConfig
}

// NewClient builds a resilient client for one source.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	breakerCfg := DefaultBreakerConfig(cfg.Name)
	if cfg.Breaker != nil {
		breakerCfg = *cfg.Breaker
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		breaker: NewBreaker[*http.Response](breakerCfg),
		config:  cfg,
	}
}

// Do executes the request with retries and breaker protection. The
// caller owns the response body on success. A 5xx that survives all
// retries is returned as (response, nil) so callers can inspect it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext executes the request under the given context.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0 // bounded by MaxRetries, not wall time

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var lastResp *http.Response

	// stash keeps the newest response for the caller and releases the
	// one it supersedes so retries do not leak connections.
	stash := func(resp *http.Response) {
		if lastResp != nil && lastResp != resp {
			drainAndClose(lastResp)
		}
		lastResp = resp
	}

	operation := func() error {
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
			attempt := req.Clone(ctx)
			if attempt.Header.Get("User-Agent") == "" {
				attempt.Header.Set("User-Agent", c.config.UserAgent)
			}
			r, err := c.httpClient.Do(attempt)
			if err != nil {
				return nil, err
			}
			// 5xx and 429 count as failures so the breaker sees them.
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, &UpstreamError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			if resp != nil {
				stash(resp)
			}
			return err
		}

		stash(resp)

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			drainAndClose(resp)
			lastResp = nil
			return backoff.Permanent(fmt.Errorf("%w: %s %s", ErrUnauthorized, c.config.Name, resp.Status))
		}

		// Success or a non-retryable client error.
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		c.recordFailure(err)
		if lastResp != nil {
			return lastResp, nil
		}
		return nil, err
	}
	c.recordSuccess()
	return lastResp, nil
}

func (c *Client) recordSuccess() {
	if c.config.Registry != nil {
		c.config.Registry.RecordSuccess(c.config.Name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.config.Registry != nil {
		c.config.Registry.RecordFailure(c.config.Name, err)
	}
}

// drainAndClose discards the body so the connection can be reused.
func drainAndClose(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}
}

// UpstreamError represents a retryable upstream status (5xx or 429).
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// BreakerState exposes the breaker state for health reporting.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// BreakerCounts exposes the breaker counters for health reporting.
func (c *Client) BreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}
