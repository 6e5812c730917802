package participant

import (
	"errors"
	"time"

	"github.com/park285/quiz-duel/internal/duel"
)

// CountdownTicks is the local countdown between ready and playing.
const CountdownTicks = 3

var (
	ErrNotPlaying = errors.New("not accepting answers")
	ErrTimeUp     = errors.New("time is up")
	ErrNotPublic  = errors.New("only public challenges can be replayed")
)

type Phase string

const (
	PhaseLoading   Phase = "loading"
	PhaseWaiting   Phase = "waiting"
	PhaseCountdown Phase = "countdown"
	PhasePlaying   Phase = "playing"
	PhaseFinished  Phase = "finished"
)

// State is one of Loading, Waiting, Countdown, Playing or Finished.
type State interface {
	Phase() Phase
	state()
}

type Loading struct{}

type Waiting struct{}

type Countdown struct{ TicksLeft int }

// Playing carries the deadline on the local clock.
type Playing struct{ Deadline time.Time }

type Finished struct{ Reason FinishReason }

func (Loading) Phase() Phase   { return PhaseLoading }
func (Waiting) Phase() Phase   { return PhaseWaiting }
func (Countdown) Phase() Phase { return PhaseCountdown }
func (Playing) Phase() Phase   { return PhasePlaying }
func (Finished) Phase() Phase  { return PhaseFinished }

func (Loading) state()   {}
func (Waiting) state()   {}
func (Countdown) state() {}
func (Playing) state()   {}
func (Finished) state()  {}

type FinishReason string

const (
	ReasonTimeout   FinishReason = "timeout"
	ReasonStrikes   FinishReason = "strikes"
	ReasonExhausted FinishReason = "exhausted"
	// ReasonClosed means the session was already settled before a local condition fired.
	ReasonClosed FinishReason = "closed"
)

// Effect is I/O the machine asks its owner to perform.
type Effect interface{ effect() }

// StartEffect asks for the start write. Only the creator emits it.
type StartEffect struct{}

// ReportEffect carries the latest cumulative row after an answer.
type ReportEffect struct{ Progress duel.Progress }

// FinishEffect is the terminal write.
type FinishEffect struct{ Progress duel.Progress }

func (StartEffect) effect()  {}
func (ReportEffect) effect() {}
func (FinishEffect) effect() {}

// Opponent is the read-only projection of the other row. Each snapshot replaces it.
type Opponent struct {
	ID       string
	Score    int
	Strikes  int
	Index    int
	Finished bool
}

// Machine is the local game state of one participant. It does no I/O and
// never reads a clock: every method takes the local time and returns the
// effects to run.
type Machine struct {
	userID     string
	maxStrikes int

	kind     duel.Kind
	creator  bool
	rules    duel.Rules
	duration time.Duration

	state    State
	status   duel.Status
	progress duel.Progress
	opponent Opponent

	startedAt  *time.Time // server timeline
	// startInFlight is set while a StartEffect is unresolved.
	startInFlight bool
	finishedAt *time.Time // server timeline
	rematch    *duel.Rematch

	// skew is server time minus local time, from the latest snapshot.
	skew time.Duration
}

func NewMachine(userID string, maxStrikes int) *Machine {
	return &Machine{userID: userID, maxStrikes: maxStrikes, state: Loading{}}
}

func (m *Machine) State() State { return m.state }
func (m *Machine) Status() duel.Status { return m.status }
func (m *Machine) Kind() duel.Kind { return m.kind }
func (m *Machine) Creator() bool { return m.creator }
func (m *Machine) Progress() duel.Progress { return m.progress }
func (m *Machine) Opponent() Opponent { return m.opponent }
func (m *Machine) Rematch() *duel.Rematch { return m.rematch }
func (m *Machine) FinishedAt() *time.Time { return m.finishedAt }
func (m *Machine) QuestionCount() int { return m.rules.QuestionCount }
func (m *Machine) Skew() time.Duration { return m.skew }
func (m *Machine) ServerNow(now time.Time) time.Time { return now.Add(m.skew) }

// Remaining is the time left on the local timer, floored at zero.
func (m *Machine) Remaining(now time.Time) time.Duration {
	switch st := m.state.(type) {
	case Playing:
		if d := st.Deadline.Sub(now); d > 0 {
			return d
		}
		return 0
	case Finished:
		return 0
	default:
		return m.duration
	}
}

// ApplySnapshot reconciles one poll result received at local time receivedAt.
// Only opponent fields, the rematch record and shared status are taken from
// it; the caller's own row is read once, to resume from Loading.
func (m *Machine) ApplySnapshot(snap *duel.Snapshot, receivedAt time.Time) []Effect {
	if snap == nil {
		return nil
	}
	if !snap.ServerTime.IsZero() {
		m.skew = snap.ServerTime.Sub(receivedAt)
	}
	if m.kind == "" {
		m.kind = snap.Kind
		m.creator = snap.CreatorID == m.userID
		m.rules = duel.Rules{MaxStrikes: m.maxStrikes, QuestionCount: snap.QuestionCount}
		m.duration = time.Duration(snap.DurationSeconds) * time.Second
	}
	m.status = m.status.Max(snap.Status)
	if m.startedAt == nil && snap.StartedAt != nil {
		ts := *snap.StartedAt
		m.startedAt = &ts
	}
	if m.finishedAt == nil && snap.FinishedAt != nil {
		ts := *snap.FinishedAt
		m.finishedAt = &ts
	}
	if snap.Rematch != nil {
		r := *snap.Rematch
		m.rematch = &r
	}
	if m.kind == duel.KindDuel {
		m.opponent = Opponent{
			ID:       snap.OpponentID,
			Score:    snap.OpponentScore,
			Strikes:  snap.OpponentStrikes,
			Index:    snap.OpponentIndex,
			Finished: snap.OpponentFinished,
		}
	}

	switch m.state.(type) {
	case Loading:
		if m.kind == duel.KindPublic {
			m.state = Playing{Deadline: receivedAt.Add(m.duration)}
			return nil
		}
		if snap.Self != nil {
			m.progress = m.rules.Normalize(*snap.Self)
		}
		switch m.status {
		case duel.StatusWaiting:
			m.state = Waiting{}
		case duel.StatusReady:
			m.state = Countdown{TicksLeft: CountdownTicks}
		case duel.StatusPlaying:
			if m.progress.Finished {
				m.state = Finished{Reason: m.reasonFor(m.progress)}
				return nil
			}
			m.enterPlaying(receivedAt)
			return m.checkDeadline(receivedAt)
		case duel.StatusFinished:
			m.progress.Finished = true
			m.state = Finished{Reason: ReasonClosed}
		}
	case Waiting:
		switch m.status {
		case duel.StatusReady:
			m.state = Countdown{TicksLeft: CountdownTicks}
		case duel.StatusPlaying:
			m.enterPlaying(receivedAt)
			return m.checkDeadline(receivedAt)
		case duel.StatusFinished:
			return m.finish(ReasonClosed)
		}
	case Countdown:
		switch m.status {
		case duel.StatusPlaying:
			// the creator's start landed before our countdown ran out
			m.enterPlaying(receivedAt)
			return m.checkDeadline(receivedAt)
		case duel.StatusFinished:
			return m.finish(ReasonClosed)
		}
	case Playing:
		if m.kind == duel.KindDuel {
			m.enterPlaying(receivedAt)
		}
		// a settled session does not end local play; only the local
		// timer, strikes or exhaustion do
		return append(m.requestStart(), m.checkDeadline(receivedAt)...)
	case Finished:
		return m.requestStart()
	}
	return nil
}

// ApplyStart records the timestamp returned by the start write.
func (m *Machine) ApplyStart(startedAt time.Time, now time.Time) []Effect {
	if startedAt.IsZero() {
		return nil
	}
	m.startInFlight = false
	m.status = m.status.Max(duel.StatusPlaying)
	if m.startedAt == nil {
		ts := startedAt
		m.startedAt = &ts
	}
	if _, ok := m.state.(Playing); ok {
		m.enterPlaying(now)
		return m.checkDeadline(now)
	}
	return nil
}

// Tick advances the countdown and checks the deadline.
func (m *Machine) Tick(now time.Time) []Effect {
	switch st := m.state.(type) {
	case Countdown:
		left := st.TicksLeft - 1
		if left > 0 {
			m.state = Countdown{TicksLeft: left}
			return nil
		}
		m.enterPlaying(now)
		return append(m.requestStart(), m.checkDeadline(now)...)
	case Playing:
		return append(m.requestStart(), m.checkDeadline(now)...)
	case Finished:
		return m.requestStart()
	}
	return nil
}

// StartFailed clears the in-flight start so a later tick issues it again.
func (m *Machine) StartFailed() { m.startInFlight = false }

// requestStart emits the start write while the creator still owes it:
// no started_at is known and the shared status has not reached playing.
func (m *Machine) requestStart() []Effect {
	if m.kind != duel.KindDuel || !m.creator || m.startInFlight || m.startedAt != nil {
		return nil
	}
	if m.status.Rank() >= duel.StatusPlaying.Rank() {
		return nil
	}
	m.startInFlight = true
	return []Effect{StartEffect{}}
}

// Answer scores one answer given at local time now. When the timer has
// already run out the answer is dropped, ErrTimeUp is returned, and the
// returned effects still need to run.
func (m *Machine) Answer(correct bool, now time.Time) ([]Effect, error) {
	if _, ok := m.state.(Playing); !ok {
		return nil, ErrNotPlaying
	}
	if eff := m.checkDeadline(now); eff != nil {
		return eff, ErrTimeUp
	}
	p, terminal := m.rules.ApplyAnswer(m.progress, correct)
	m.progress = p
	if terminal {
		return m.finish(m.reasonFor(p)), nil
	}
	if m.kind == duel.KindPublic {
		return nil, nil
	}
	return []Effect{ReportEffect{Progress: p}}, nil
}

// PlayAgain starts a fresh public attempt.
func (m *Machine) PlayAgain(now time.Time) error {
	if m.kind != duel.KindPublic {
		return ErrNotPublic
	}
	if _, ok := m.state.(Finished); !ok {
		return ErrNotPlaying
	}
	m.progress = duel.Progress{}
	m.state = Playing{Deadline: now.Add(m.duration)}
	return nil
}

// enterPlaying (re)derives the local deadline. With a known started_at the
// deadline is taken from the server timeline; otherwise it runs from now.
func (m *Machine) enterPlaying(now time.Time) {
	deadline := now.Add(m.duration)
	if m.startedAt != nil {
		deadline = m.startedAt.Add(m.duration).Add(-m.skew)
	} else if st, ok := m.state.(Playing); ok {
		deadline = st.Deadline
	}
	m.state = Playing{Deadline: deadline}
}

func (m *Machine) checkDeadline(now time.Time) []Effect {
	st, ok := m.state.(Playing)
	if !ok || now.Before(st.Deadline) {
		return nil
	}
	return m.finish(ReasonTimeout)
}

func (m *Machine) finish(reason FinishReason) []Effect {
	if _, done := m.state.(Finished); done {
		return nil
	}
	m.progress.Finished = true
	m.state = Finished{Reason: reason}
	return []Effect{FinishEffect{Progress: m.progress}}
}

func (m *Machine) reasonFor(p duel.Progress) FinishReason {
	switch {
	case p.Strikes >= m.rules.StrikeCap():
		return ReasonStrikes
	case p.CurrentIndex >= m.rules.QuestionCount:
		return ReasonExhausted
	default:
		return ReasonTimeout
	}
}
