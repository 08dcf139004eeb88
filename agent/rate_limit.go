package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/aschepis/backscratcher/travel/llm"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// DefaultRetryAfter is used when a rate limit error carries no hint.
	DefaultRetryAfter = 10 * time.Second
	// DefaultMaxRetries bounds retries of one chat call.
	DefaultMaxRetries = 3
	// DefaultMaxElapsedTime bounds the total time spent backing off.
	DefaultMaxElapsedTime = 2 * time.Minute
	// DefaultMaxInterval caps a single backoff delay.
	DefaultMaxInterval = time.Minute
	// DefaultInitialDelay is the first delay of plain exponential backoff.
	DefaultInitialDelay = time.Second

	retryAfterMultiplier          = 1.5
	retryAfterRandomizationFactor = 0.1
	standardMultiplier            = 2.0
	standardRandomizationFactor   = 0.2
)

// RateLimitCallback is called before waiting out a rate limit.
type RateLimitCallback func(sessionID string, retryAfter time.Duration, attempt int)

// RateLimitHandler decides how long to wait after a rate limit error.
type RateLimitHandler struct {
	maxRetries     uint64
	maxElapsedTime time.Duration
	onRateLimit    RateLimitCallback
	logger         zerolog.Logger
}

// NewRateLimitHandler creates a handler with default limits.
func NewRateLimitHandler(logger zerolog.Logger, onRateLimit RateLimitCallback) *RateLimitHandler {
	return &RateLimitHandler{
		maxRetries:     DefaultMaxRetries,
		maxElapsedTime: DefaultMaxElapsedTime,
		onRateLimit:    onRateLimit,
		logger:         logger.With().Str("component", "rateLimitHandler").Logger(),
	}
}

// CreateBackoff returns the backoff for one call. A provider retry-after
// hint becomes the initial interval.
func (h *RateLimitHandler) CreateBackoff(retryAfter time.Duration) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if retryAfter > 0 {
		eb.InitialInterval = retryAfter
		eb.Multiplier = retryAfterMultiplier
		eb.RandomizationFactor = retryAfterRandomizationFactor
	} else {
		eb.InitialInterval = DefaultInitialDelay
		eb.Multiplier = standardMultiplier
		eb.RandomizationFactor = standardRandomizationFactor
	}
	eb.MaxInterval = DefaultMaxInterval
	eb.MaxElapsedTime = h.maxElapsedTime
	eb.Reset()
	return backoff.WithMaxRetries(eb, h.maxRetries)
}

// retryAfterOf returns the provider's retry-after hint or the default.
func retryAfterOf(err error) time.Duration {
	if d := llm.ExtractRetryAfter(err); d != nil && *d > 0 {
		return *d
	}
	return DefaultRetryAfter
}

// WaitForRetry waits for delay or until ctx is done.
func (h *RateLimitHandler) WaitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type sessionKey struct{}

// WithSessionID tags ctx with the session a chat call belongs to, for logs.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func sessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// retryingClient retries rate-limited calls with backoff. Other errors are
// returned as is.
type retryingClient struct {
	next    llm.Client
	handler *RateLimitHandler
}

// WithRateLimitRetry wraps client so rate-limited calls are retried.
func WithRateLimitRetry(client llm.Client, handler *RateLimitHandler) llm.Client {
	if handler == nil {
		return client
	}
	return &retryingClient{next: client, handler: handler}
}

func (c *retryingClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	var b backoff.BackOff
	for attempt := 0; ; attempt++ {
		resp, err := c.next.Synchronous(ctx, req)
		if err == nil || !llm.IsRateLimitError(err) {
			return resp, err
		}
		if b == nil {
			b = c.handler.CreateBackoff(retryAfterOf(err))
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			c.handler.logger.Error().Uint64("max_retries", c.handler.maxRetries).Str("session_id", sessionIDFrom(ctx)).Msg("Rate limit retries exhausted")
			return nil, fmt.Errorf("rate limit: max retries or elapsed time exceeded: %w", err)
		}

		c.handler.logger.Warn().
			Str("session_id", sessionIDFrom(ctx)).
			Int("attempt", attempt+1).
			Err(err).
			Dur("next_delay", delay).
			Msg("Rate limit encountered. Retrying after delay")
		if c.handler.onRateLimit != nil {
			c.handler.onRateLimit(sessionIDFrom(ctx), delay, attempt)
		}
		if waitErr := c.handler.WaitForRetry(ctx, delay); waitErr != nil {
			return nil, fmt.Errorf("context cancelled while waiting for rate limit retry: %w", waitErr)
		}
	}
}
