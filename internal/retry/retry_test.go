package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Max: 350 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 350 * time.Millisecond, 350 * time.Millisecond}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Terminal.Do(ctx, clock, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("flaky")
			}
			return nil
		})
	}()
	for i := 1; i <= 2; i++ {
		if err := clock.BlockUntilContext(ctx, 1); err != nil {
			t.Fatalf("waiting for backoff %d: %v", i, err)
		}
		clock.Advance(Terminal.Backoff(i))
	}
	if err := <-done; err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoGivesUpAfterAttempts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	boom := errors.New("down")
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Terminal.Do(ctx, clock, func(context.Context) error { calls++; return boom })
	}()
	for i := 1; i < Terminal.Attempts; i++ {
		if err := clock.BlockUntilContext(ctx, 1); err != nil {
			t.Fatalf("waiting for backoff %d: %v", i, err)
		}
		clock.Advance(Terminal.Backoff(i))
	}
	if err := <-done; !errors.Is(err, boom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != Terminal.Attempts {
		t.Fatalf("expected %d calls, got %d", Terminal.Attempts, calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	bad := errors.New("bad request")
	calls := 0
	err := Terminal.Do(context.Background(), clockwork.NewFakeClock(), func(context.Context) error {
		calls++
		return Stop(bad)
	})
	if err != bad || calls != 1 {
		t.Fatalf("expected unwrapped error after one call, got %v (%d calls)", err, calls)
	}
}

func TestDoHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	boom := errors.New("down")
	err := Policy{Attempts: 5, Base: time.Hour}.Do(ctx, clockwork.NewFakeClock(), func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected last error on cancel, got %v", err)
	}
}
