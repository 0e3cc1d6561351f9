package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNotConfirmed is returned when the primary artifact could not be confirmed
// on disk within the retry policy.
var ErrNotConfirmed = errors.New("persist: artifact not confirmed")

// RetryPolicy bounds the final-save loop. The wait before attempt n+1 is
// Delay doubled n-1 times, capped at MaxDelay.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetryPolicy is 20 attempts starting at 100ms, capped at 2s per wait.
var DefaultRetryPolicy = RetryPolicy{Attempts: 20, Delay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Delay <= 0 {
		p.Delay = DefaultRetryPolicy.Delay
	}
	if p.MaxDelay < p.Delay {
		p.MaxDelay = p.Delay
	}
	return p
}

// SaveConfirmed saves snap to the primary location until Exists confirms the
// artifact, waiting between attempts per policy.
func (w *Writer) SaveConfirmed(ctx context.Context, snap Snapshot, policy RetryPolicy) (Artifact, error) {
	policy = policy.normalized()
	delay := policy.Delay

	var lastErr error
	for attempt := 1; ; attempt++ {
		art, err := w.Save(ctx, snap, Primary)
		if err == nil && w.Exists(snap.Username) {
			if attempt > 1 {
				log.Info().Str("component", "persist").Str("user", snap.Username).Int("attempt", attempt).Msg("final save confirmed after retry")
			}
			return art, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: %s", ErrNotConfirmed, snap.Username)
		}
		lastErr = err

		if attempt >= policy.Attempts {
			break
		}

		log.Warn().Str("component", "persist").Err(err).Str("user", snap.Username).Int("attempt", attempt).Dur("retry_in", delay).Msg("final save not confirmed")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Artifact{}, fmt.Errorf("persist: final save for %s: %w", snap.Username, ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	if !errors.Is(lastErr, ErrNotConfirmed) {
		lastErr = errors.Join(ErrNotConfirmed, lastErr)
	}
	return Artifact{}, fmt.Errorf("persist: final save for %s failed after %d attempts: %w", snap.Username, policy.Attempts, lastErr)
}
