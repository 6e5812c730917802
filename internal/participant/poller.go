package participant

import "time"

// MaxPollFailures is the number of consecutive failed pulls that raises the
// connectivity condition.
const MaxPollFailures = 5

// Poller schedules snapshot pulls and tracks their failures. At most one pull
// is in flight at a time. It is not safe for concurrent use; the Runner's
// loop owns it.
type Poller struct {
	interval time.Duration
	next     time.Time
	inFlight bool
	failures int
	lost     bool
}

func NewPoller(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{interval: interval}
}

// Due reports whether a pull should be issued at now.
func (p *Poller) Due(now time.Time) bool {
	return !p.inFlight && !now.Before(p.next)
}

// Begin marks a pull as issued and schedules the next one.
func (p *Poller) Begin(now time.Time) {
	p.inFlight = true
	p.next = now.Add(p.interval)
}

// Done records the outcome of the in-flight pull. It returns true when this
// failure is the one that crosses the threshold.
func (p *Poller) Done(err error) (lostNow bool) {
	p.inFlight = false
	if err == nil {
		p.failures = 0
		p.lost = false
		return false
	}
	p.failures++
	if p.failures >= MaxPollFailures && !p.lost {
		p.lost = true
		return true
	}
	return false
}

// Retry clears the connectivity condition and makes the next pull due now.
func (p *Poller) Retry(now time.Time) {
	p.failures = 0
	p.lost = false
	p.next = now
}

func (p *Poller) Lost() bool { return p.lost }

func (p *Poller) Failures() int { return p.failures }

// ShouldPoll reports whether phase still needs pulls. Countdown runs on local
// ticks only; a finished session is polled until the rematch flow is over.
func ShouldPoll(phase Phase, rematch RematchState) bool {
	switch phase {
	case PhaseCountdown:
		return false
	case PhaseFinished:
		return rematch != RematchExpired && rematch != RematchRedirect
	default:
		return true
	}
}
