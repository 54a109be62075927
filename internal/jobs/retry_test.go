package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	calls := 0
	err := WithRetry(context.Background(), RetryAttempts, RetryBaseDelay, sleep, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}

	// Exponential: 60s before attempt 2, 120s before attempt 3.
	want := []time.Duration{60 * time.Second, 120 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %d", len(want), len(delays))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}

func TestWithRetry_ExhaustsBudget(t *testing.T) {
	sleep := func(ctx context.Context, d time.Duration) error { return nil }

	calls := 0
	cause := errors.New("still down")
	err := WithRetry(context.Background(), RetryAttempts, RetryBaseDelay, sleep, func(ctx context.Context) error {
		calls++
		return cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if calls != RetryAttempts {
		t.Errorf("expected %d attempts, got %d", RetryAttempts, calls)
	}
}

func TestWithRetry_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := WithRetry(ctx, RetryAttempts, RetryBaseDelay, sleep, func(ctx context.Context) error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
