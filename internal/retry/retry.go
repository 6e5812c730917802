package retry

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
)

// Policy is a bounded exponential backoff: Base, 2*Base, 4*Base ... capped at Max.
type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// Terminal is used for final-score delivery.
var Terminal = Policy{Attempts: 3, Base: 200 * time.Millisecond, Max: 2 * time.Second}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		attempt = 16
	}
	base := p.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := time.Duration(1<<uint(attempt-1)) * base
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Stop marks err as not worth retrying. Do returns the wrapped error as is.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// Do calls fn until it succeeds, returns a Stop error, or the attempts run out.
// The last error is returned.
func (p Policy) Do(ctx context.Context, clock clockwork.Clock, fn func(context.Context) error) error {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		var perm permanent
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-clock.After(p.Backoff(attempt)):
		}
	}
	return err
}
