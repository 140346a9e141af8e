package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// DefaultRetryPolicy retries twice after the initial attempt, which
// covers the transient failures seen in practice without stretching a
// single generation stage past a few seconds of waiting.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 2,
	BaseDelay:  time.Second,
}

// RetryPolicy governs how classified failures are retried. Rate-limit
// errors back off more aggressively than other retryable kinds.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration

	// Sleep is swapped out in tests. Nil means time.Sleep honoring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do runs fn, retrying retryable failures per the policy. Non-retryable
// failures return immediately. On exhaustion the last error is wrapped
// with the attempt count; transient exhaustion adds a connectivity hint.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) (string, error)) (string, error) {
	attempts := p.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := p.backoff(lastErr, attempt)
			slog.Warn("retrying LLM call", "op", op, "attempt", attempt+1, "delay", delay, "err", lastErr)
			if err := p.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var le *Error
		if !errors.As(err, &le) || !le.Retryable() {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}

	if KindOf(lastErr) == KindTransient {
		return "", fmt.Errorf("%s failed after %d attempts: %w (check network connectivity and the API endpoint)", op, attempts, lastErr)
	}
	return "", fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

// backoff computes the delay before the given retry attempt (1-based).
func (p RetryPolicy) backoff(lastErr error, attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	exp := attempt - 1
	if KindOf(lastErr) == KindRateLimited {
		// Rate limits get one extra doubling so the second attempt
		// already waits past the provider's usual window.
		exp = attempt
	}
	delay := base * (1 << exp)
	jitter := time.Duration(rand.Int63n(int64(base / 4)))
	return delay + jitter
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer enforces a minimum delay between successive API calls so burst
// generation stays under provider rate limits.
type Pacer struct {
	MinDelay time.Duration
	last     time.Time
}

// Wait blocks until at least MinDelay has passed since the previous
// call. A zero MinDelay disables pacing.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.MinDelay <= 0 {
		return nil
	}
	if !p.last.IsZero() {
		if remaining := p.MinDelay - time.Since(p.last); remaining > 0 {
			t := time.NewTimer(remaining)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	p.last = time.Now()
	return nil
}
