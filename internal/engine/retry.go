package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"
)

const maxBackoff = 10 * time.Second

// retryPolicy bounds retries of transient engine failures.
type retryPolicy struct {
	maxRetries int
	backoff    time.Duration
}

// do runs fn once plus up to maxRetries more times while fn returns a retryable
// error. Non-retryable errors are returned immediately. The sleep between attempts
// doubles from the base backoff and is abandoned when ctx is done.
func (p retryPolicy) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.maxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				log.Printf("engine.retry: %s succeeded on attempt %d", op, attempt)
			}
			return nil
		}
		if !IsRetryable(lastErr) || attempt == attempts {
			break
		}
		delay := p.delay(attempt)
		log.Printf("engine.retry: %s attempt %d/%d failed: %v (next in %s)", op, attempt, attempts, lastErr, delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s aborted during backoff: %w", op, ctx.Err())
		}
	}
	return lastErr
}

func (p retryPolicy) delay(attempt int) time.Duration {
	d := time.Duration(float64(p.backoff) * math.Pow(2, float64(attempt-1)))
	if d > maxBackoff || d < 0 {
		return maxBackoff
	}
	return d
}
