package source

import (
	"context"
	"time"

	"contestbot/internal/contest"
	"contestbot/pkg/logx"
)

// Retry policy shared by all fetchers: up to 3 attempts, sleeping
// 2^attempt seconds between failures (1s, 2s), no sleep after the last.
const (
	maxAttempts = 3
	backoffBase = time.Second
)

// sleepFunc pauses for d or returns early with the context's error.
// Fetchers override it in tests.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withRetry runs op up to attempts times. The error of the final attempt is
// returned unchanged; an interrupted backoff sleep returns the context error.
func withRetry(ctx context.Context, log logx.Logger, attempts int, base time.Duration, sleep sleepFunc, op func(context.Context) ([]contest.Record, error)) ([]contest.Record, error) {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		recs, err := op(ctx)
		if err == nil {
			return recs, nil
		}
		lastErr = err
		log.Warn("fetch attempt failed",
			logx.Int("attempt", attempt+1),
			logx.Int("max", attempts),
			logx.Err(err))
		if attempt < attempts-1 {
			if err := sleep(ctx, base<<uint(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}
