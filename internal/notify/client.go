package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned when the breaker rejects a send without a
// network call.
var ErrCircuitOpen = errors.New("provider circuit open")

// ClientConfig tunes the guards around a provider. Zero values take
// the defaults below.
type ClientConfig struct {
	Name                string
	RatePerSecond       float64
	Burst               int
	ConsecutiveFailures uint32
	ResetTimeout        time.Duration
	MaxRetries          uint64
	RetryInitialWait    time.Duration
	RetryMaxWait        time.Duration
}

const (
	defaultRatePerSecond       = 10
	defaultBurst               = 5
	defaultConsecutiveFailures = 5
	defaultResetTimeout        = 30 * time.Second
	defaultMaxRetries          = 2
	defaultRetryInitialWait    = 500 * time.Millisecond
	defaultRetryMaxWait        = 5 * time.Second
)

// Client wraps a Provider with a token-bucket rate limiter, a circuit
// breaker and a transient-only retry helper. All guard state is
// in-process and resets on restart.
type Client struct {
	provider Provider
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[*SendResult]
	cfg      ClientConfig
	logger   *slog.Logger
}

func NewClient(provider Provider, cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.Name == "" {
		cfg.Name = "provider"
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaultRatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = defaultConsecutiveFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryInitialWait <= 0 {
		cfg.RetryInitialWait = defaultRetryInitialWait
	}
	if cfg.RetryMaxWait <= 0 {
		cfg.RetryMaxWait = defaultRetryMaxWait
	}

	c := &Client{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		cfg:      cfg,
		logger:   logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[*SendResult](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1, // single trial in half-open
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		// Provider-side rejections (4xx) fail the job, not the
		// provider; they must not trip the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("provider circuit state changed", "provider", name, "from", from.String(), "to", to.String())
			}
		},
	})

	return c
}

// Send waits for a rate token, then dispatches through the breaker
// and the retry helper.
func (c *Client) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	result, err := c.breaker.Execute(func() (*SendResult, error) {
		return c.sendWithRetry(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, c.cfg.Name)
	}
	return result, err
}

func (c *Client) sendWithRetry(ctx context.Context, msg *Message) (*SendResult, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryInitialWait
	bo.MaxInterval = c.cfg.RetryMaxWait
	bo.MaxElapsedTime = 0 // bounded by retry count, not wall clock

	var result *SendResult
	operation := func() error {
		res, err := c.provider.Send(ctx, msg)
		if err != nil {
			if IsPermanent(err) {
				return backoff.Permanent(err)
			}
			if c.logger != nil {
				c.logger.Debug("transient send failure, will retry", "provider", c.cfg.Name, "error", err)
			}
			return err
		}
		result = res
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

// Healthy exposes the wrapped provider's reachability probe.
func (c *Client) Healthy(ctx context.Context) error {
	return c.provider.Healthy(ctx)
}
