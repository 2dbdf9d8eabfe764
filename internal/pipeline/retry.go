package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgallion1/versegest/internal/faults"
)

// retry runs fn until it succeeds, fails permanently or has been tried
// attempts times. It returns the number of attempts made. Exhausting the
// attempts on a transient error yields a *faults.ResilienceFault.
func retry(ctx context.Context, op string, attempts int, unit time.Duration, log *slog.Logger, fn func(context.Context) error) (int, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := range attempts {
		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt + 1, nil
		}
		if !faults.IsRetryable(lastErr) {
			return attempt + 1, lastErr
		}
		if attempt == attempts-1 {
			break
		}
		log.Warn("retryable fetch error", "op", op, "attempt", attempt+1, "error", lastErr)
		select {
		case <-time.After(faults.Backoff(attempt, unit)):
		case <-ctx.Done():
			return attempt + 1, ctx.Err()
		}
	}
	return attempts, &faults.ResilienceFault{
		Operation: op,
		Attempts:  attempts,
		Category:  faults.Category(lastErr),
		Circuit:   faults.CircuitNone,
		Err:       lastErr,
	}
}
