package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without contacting the provider while its
	// circuit is open or its half-open request budget is spent.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrMaxRetriesExceeded is returned when every attempt failed without a
	// response to hand back.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// ClientConfig holds configuration for the guarded HTTP client.
type ClientConfig struct {
	// Name identifies the provider. It doubles as the breaker and registry key.
	Name string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// MaxRetries is the number of attempts after the first one.
	MaxRetries uint64

	// InitialInterval and MaxInterval shape the exponential backoff between
	// attempts.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Breaker configures the circuit. A zero value uses DefaultBreakerConfig.
	Breaker BreakerConfig

	// Registry receives success and failure outcomes when set.
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns the client settings used for directions calls.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Breaker:         DefaultBreakerConfig(name),
		Logger:          zerolog.Nop(),
	}
}

// Client executes provider requests through a circuit breaker and retries
// transport errors and 5xx responses with exponential backoff.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	config     ClientConfig
	logger     zerolog.Logger
}

// NewClient creates a guarded client and registers it with cfg.Registry.
func NewClient(cfg ClientConfig) *Client {
	defaults := DefaultClientConfig(cfg.Name)
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = defaults.InitialInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = defaults.MaxInterval
	}
	if cfg.Breaker.MinRequests == 0 && cfg.Breaker.ConsecutiveFailures == 0 {
		cfg.Breaker = defaults.Breaker
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = cfg.Name
	}
	cfg.Breaker.Logger = cfg.Logger

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    newBreaker(cfg.Breaker),
		config:     cfg,
		logger:     cfg.Logger,
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.config.Name
}

// Do executes req within the request's own context.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext executes req, retrying transient failures. When every
// attempt ended in a 5xx the last response is returned so the caller can map
// the provider's error body. 4xx responses are returned immediately.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
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

	operation := func() error {
		attempt := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(err)
			}
			attempt.Body = body
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // closed by the caller or drain
			r, err := c.httpClient.Do(attempt)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= http.StatusInternalServerError {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		// A failed attempt without a response supersedes any earlier 5xx.
		keep(resp)
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug().
			Err(err).
			Str("provider", c.config.Name).
			Dur("backoff", wait).
			Msg("retrying provider request")
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		c.recordFailure(err)
		switch {
		case errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil:
			if last != nil {
				drain(last)
			}
			return nil, err
		case last != nil:
			return last, nil
		default:
			return nil, errors.Join(ErrMaxRetriesExceeded, err)
		}
	}

	c.recordSuccess()
	return last, nil
}

func (c *Client) recordSuccess() {
	if c.config.Registry != nil {
		c.config.Registry.recordSuccess(c.config.Name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.config.Registry != nil {
		c.config.Registry.recordFailure(c.config.Name, err)
	}
}

// State returns the current circuit state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the circuit's request counters.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

// ServerError is a 5xx response treated as a provider failure.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
