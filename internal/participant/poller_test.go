package participant

import (
	"errors"
	"testing"
	"time"
)

func TestPollerLostAfterFiveFailures(t *testing.T) {
	p := NewPoller(time.Second)
	boom := errors.New("timeout")
	now := t0
	for i := 1; i <= MaxPollFailures; i++ {
		if !p.Due(now) {
			t.Fatalf("pull %d should be due", i)
		}
		p.Begin(now)
		if p.Due(now) {
			t.Fatalf("only one pull may be in flight")
		}
		lost := p.Done(boom)
		if lost != (i == MaxPollFailures) {
			t.Fatalf("failure %d: lost=%v", i, lost)
		}
		now = now.Add(time.Second)
	}
	if !p.Lost() {
		t.Fatalf("expected persistent connectivity condition")
	}
	// further failures do not re-raise it
	p.Begin(now)
	if p.Done(boom) {
		t.Fatalf("condition raised twice")
	}

	p.Begin(now.Add(time.Second))
	p.Done(nil)
	if p.Lost() || p.Failures() != 0 {
		t.Fatalf("one success should reset: lost=%v failures=%d", p.Lost(), p.Failures())
	}
}

func TestPollerTransientFailureIsSilent(t *testing.T) {
	p := NewPoller(time.Second)
	p.Begin(t0)
	p.Done(errors.New("blip"))
	if p.Lost() || p.Failures() != 1 {
		t.Fatalf("single failure must stay silent")
	}
	if p.Due(t0.Add(500 * time.Millisecond)) {
		t.Fatalf("retry waits for the next interval")
	}
	if !p.Due(t0.Add(time.Second)) {
		t.Fatalf("retry on the next interval")
	}
}

func TestPollerManualRetry(t *testing.T) {
	p := NewPoller(time.Minute)
	for i := 0; i < MaxPollFailures; i++ {
		p.Begin(t0)
		p.Done(errors.New("down"))
	}
	p.Retry(t0)
	if p.Lost() || !p.Due(t0) {
		t.Fatalf("retry should clear the condition and pull immediately")
	}
}

func TestShouldPoll(t *testing.T) {
	cases := []struct {
		phase   Phase
		rematch RematchState
		want    bool
	}{
		{PhaseLoading, RematchIdle, true},
		{PhaseWaiting, RematchIdle, true},
		{PhaseCountdown, RematchIdle, false},
		{PhasePlaying, RematchIdle, true},
		{PhaseFinished, RematchWaiting, true},
		{PhaseFinished, RematchExpired, false},
		{PhaseFinished, RematchRedirect, false},
	}
	for _, tc := range cases {
		if got := ShouldPoll(tc.phase, tc.rematch); got != tc.want {
			t.Fatalf("ShouldPoll(%s,%s) = %v", tc.phase, tc.rematch, got)
		}
	}
}
