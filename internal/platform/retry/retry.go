// Package retry runs an operation with capped exponential backoff.
package retry

import (
	"context"
	"time"
)

// Policy bounds a retry loop. Attempts <= 0 retries until the context ends.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultPolicy retries forever, starting at 250ms and capping at 5s.
func DefaultPolicy() Policy {
	return Policy{BaseDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Do calls fn until it succeeds, the attempts run out or ctx is done.
// onFailure, when non-nil, sees every failed attempt with the delay before
// the next one. The last error from fn is returned; a cancelled context wins
// over it.
func Do(ctx context.Context, p Policy, fn func(context.Context) error, onFailure func(attempt int, err error, next time.Duration)) error {
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var err error
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}

		if p.Attempts > 0 && attempt >= p.Attempts {
			return err
		}
		if onFailure != nil {
			onFailure(attempt, err, delay)
		}

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
