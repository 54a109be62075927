package jobs

import (
	"context"
	"fmt"
	"time"
)

const (
	// RetryAttempts is the per-record retry budget for transient failures.
	RetryAttempts = 3
	// RetryBaseDelay is the delay before the second attempt; it doubles for
	// each attempt after that.
	RetryBaseDelay = 60 * time.Second
)

// SleepFunc waits for d or until ctx is done. Tests inject a fake.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WithRetry runs op up to attempts times with exponential backoff starting at
// base. It is per-record: a terminal failure here is recorded against the
// record and does not touch chunk or checkpoint semantics. A nil sleep uses
// real time.
func WithRetry(ctx context.Context, attempts int, base time.Duration, sleep SleepFunc, op func(ctx context.Context) error) error {
	if sleep == nil {
		sleep = sleepContext
	}

	delay := base
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = op(ctx)
		if last == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
	return fmt.Errorf("after %d attempts: %w", attempts, last)
}
