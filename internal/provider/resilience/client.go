package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned without calling the provider while its circuit
// is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies the provider for the breaker and registry.
	Name string

	// Timeout bounds each attempt.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the number of attempts after the first.
	// Default: 3
	MaxRetries uint64

	// InitialInterval is the first retry delay.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval caps retry delays. A 429 asking for a longer Retry-After
	// is not retried.
	// Default: 5 seconds
	MaxInterval time.Duration

	// Breaker overrides DefaultBreakerConfig.
	Breaker *BreakerConfig

	// Registry, when set, receives the client on creation and records the
	// outcome of every call.
	Registry *Registry

	// Logger receives retries and breaker transitions.
	Logger zerolog.Logger
}

// DefaultClientConfig returns the defaults for a provider client.
func DefaultClientConfig(name string) ClientConfig {
	breaker := DefaultBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Breaker:         &breaker,
	}
}

// AttemptTimeout splits a call budget across the first attempt and
// MaxRetries retries, after reserving the longest backoff the retry policy
// can sleep between them. The reserve never takes more than half the budget.
func (c ClientConfig) AttemptTimeout(budget time.Duration) time.Duration {
	initial := c.InitialInterval
	if initial == 0 {
		initial = 100 * time.Millisecond
	}
	maxInterval := c.MaxInterval
	if maxInterval == 0 {
		maxInterval = 5 * time.Second
	}

	var reserve time.Duration
	interval := float64(initial)
	for i := uint64(0); i < c.MaxRetries; i++ {
		wait := time.Duration(interval * (1 + backoff.DefaultRandomizationFactor))
		if wait > maxInterval {
			wait = maxInterval
		}
		reserve += wait
		interval *= backoff.DefaultMultiplier
	}
	if reserve > budget/2 {
		reserve = budget / 2
	}

	return (budget - reserve) / time.Duration(c.MaxRetries+1)
}

// Client is an HTTP client that retries transient provider failures behind
// a circuit breaker.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	config     ClientConfig
}

// NewClient creates a new resilient HTTP client.
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

	breakerCfg := DefaultBreakerConfig(cfg.Name)
	if cfg.Breaker != nil {
		breakerCfg = *cfg.Breaker
		breakerCfg.Name = cfg.Name
	}
	breakerCfg.Logger = cfg.Logger

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    newBreaker(breakerCfg), //nolint:bodyclose // type param, not response
		config:     cfg,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c.breaker)
	}

	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.config.Name
}

// Do sends req, retrying network errors, 5xx responses and 429 responses
// with exponential backoff. Request bodies are replayed on every attempt.
//
// When retries are exhausted on an HTTP error status, the last response is
// returned with a nil error so the caller can map the status. Other 4xx
// responses are returned immediately.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if err := bufferBody(req); err != nil {
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var last *http.Response
	keep := func(resp *http.Response) {
		if last != nil && last != resp {
			drain(last)
		}
		last = resp
	}

	attempt := 0
	operation := func() error {
		attempt++

		attemptReq, err := rewind(ctx, req)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, err := c.httpClient.Do(attemptReq)
			if err != nil {
				return nil, err
			}
			switch {
			case r.StatusCode == http.StatusTooManyRequests:
				return r, &RateLimitError{RetryAfter: parseRetryAfter(r.Header.Get("Retry-After"), time.Now())}
			case r.StatusCode >= 500:
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		if resp != nil {
			keep(resp)
		}
		if err == nil {
			return nil
		}

		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > c.config.MaxInterval {
			return backoff.Permanent(err)
		}

		c.config.Logger.Debug().
			Err(err).
			Str("provider", c.config.Name).
			Int("attempt", attempt).
			Msg("provider request failed")
		return err
	}

	if err := backoff.Retry(operation, policy); err != nil {
		c.recordFailure(err)
		if last != nil && !errors.Is(err, ErrCircuitOpen) {
			return last, nil
		}
		if last != nil {
			drain(last)
		}
		return nil, err
	}

	c.recordSuccess()
	return last, nil
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

// ServerError represents an HTTP 5xx response.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// RateLimitError represents an HTTP 429 response.
type RateLimitError struct {
	// RetryAfter is the provider's requested delay, or zero if none was sent.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// bufferBody makes a body without GetBody replayable.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}

	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

// rewind returns a copy of req with a fresh body.
func rewind(ctx context.Context, req *http.Request) (*http.Request, error) {
	out := req.Clone(ctx)
	if req.GetBody == nil {
		return out, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	out.Body = body
	return out, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// parseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
