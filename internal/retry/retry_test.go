package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"podmirror/internal/retry"
)

func noSleep(recorded *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*recorded = append(*recorded, d)
		return nil
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	var delays []time.Duration
	calls := 0
	err := retry.Do(context.Background(), retry.Policy{Attempts: 4, BaseDelay: time.Second, Sleep: noSleep(&delays)}, func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("unexpected backoff delays: %v", delays)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("forbidden")
	calls := 0
	var delays []time.Duration
	err := retry.Do(context.Background(), retry.Policy{
		Attempts:  5,
		Retryable: func(err error) bool { return !errors.Is(err, permanent) },
		Sleep:     noSleep(&delays),
	}, func(int) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestDoReportsExhaustion(t *testing.T) {
	base := errors.New("still down")
	var delays []time.Duration
	err := retry.Do(context.Background(), retry.Policy{Attempts: 2, Sleep: noSleep(&delays)}, func(int) error {
		return base
	})
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped base error, got %v", err)
	}
	if len(delays) != 1 {
		t.Fatalf("expected one sleep between two attempts, got %v", delays)
	}
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := retry.Do(ctx, retry.Policy{Attempts: 3}, func(int) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no calls, got %d", calls)
	}
}

func TestBackoffCaps(t *testing.T) {
	p := retry.Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}
