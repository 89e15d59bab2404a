package sender

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultMaxAttempts bounds every outbound call.
	DefaultMaxAttempts = 5
	// DefaultBaseDelay is the first backoff step; it doubles per attempt.
	DefaultBaseDelay = time.Second
	// DefaultAttemptTimeout bounds a single attempt.
	DefaultAttemptTimeout = 30 * time.Second
)

// Policy retries outbound calls. Rate-limit responses wait exactly the
// requested time, transient failures back off exponentially and anything
// else is returned at once. Every wait consumes an attempt.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait.
	OnRetry func(attempt int, kind Kind, delay time.Duration, err error)
}

// DefaultPolicy returns the policy used for Telegram calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = DefaultAttemptTimeout
	}
	if p.Sleep == nil {
		p.Sleep = sleepCtx
	}
	return p
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(1<<(attempt-1))
}

// Do runs fn until it succeeds, fails permanently or attempts run out.
// It returns the number of attempts made.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		kind := Classify(err)
		var delay time.Duration
		switch kind {
		case KindRateLimited:
			delay, _ = RetryAfter(err)
		case KindTransient:
			delay = p.Backoff(attempt)
		default:
			return attempt, err
		}

		if attempt == p.MaxAttempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, kind, delay, err)
		}
		if err := p.Sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}
	return p.MaxAttempts, fmt.Errorf("gave up after %d attempts: %w", p.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
