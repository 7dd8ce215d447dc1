package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"contestbot/internal/contest"
	"contestbot/pkg/logx"
)

func TestRetryDelaySequence(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	calls := 0
	opErr := errors.New("boom")
	_, err := withRetry(context.Background(), logx.Nop(), maxAttempts, backoffBase, sleep,
		func(context.Context) ([]contest.Record, error) {
			calls++
			return nil, opErr
		})
	if !errors.Is(err, opErr) {
		t.Fatalf("err = %v, want %v", err, opErr)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("delays = %v, want [1s 2s]", delays)
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	calls := 0
	recs, err := withRetry(context.Background(), logx.Nop(), maxAttempts, backoffBase, sleep,
		func(context.Context) ([]contest.Record, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("transient")
			}
			return []contest.Record{{Name: "x"}}, nil
		})
	if err != nil {
		t.Fatalf("withRetry error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if len(delays) != 1 || delays[0] != time.Second {
		t.Fatalf("delays = %v, want [1s]", delays)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	calls := 0
	_, err := withRetry(ctx, logx.Nop(), maxAttempts, backoffBase, sleep,
		func(context.Context) ([]contest.Record, error) {
			calls++
			return nil, errors.New("boom")
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no attempt after cancelled backoff)", calls)
	}
}
