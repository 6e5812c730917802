package participant

import (
	"errors"
	"testing"
	"time"

	"github.com/park285/quiz-duel/internal/duel"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func duelSnap(status duel.Status, creator string) *duel.Snapshot {
	return &duel.Snapshot{
		ChallengeID:     "c1",
		Kind:            duel.KindDuel,
		Status:          status,
		CreatorID:       creator,
		DurationSeconds: 60,
		QuestionCount:   10,
		OpponentID:      "b",
		ServerTime:      t0,
	}
}

func finishEffect(t *testing.T, effs []Effect) duel.Progress {
	t.Helper()
	for _, e := range effs {
		if f, ok := e.(FinishEffect); ok {
			return f.Progress
		}
	}
	t.Fatalf("expected a FinishEffect in %#v", effs)
	return duel.Progress{}
}

func TestMachineCountdownCreatorStarts(t *testing.T) {
	creator := NewMachine("a", 3)
	other := NewMachine("b", 3)

	creator.ApplySnapshot(duelSnap(duel.StatusWaiting, "a"), t0)
	if creator.State().Phase() != PhaseWaiting {
		t.Fatalf("expected waiting, got %s", creator.State().Phase())
	}
	creator.ApplySnapshot(duelSnap(duel.StatusReady, "a"), t0.Add(time.Second))
	other.ApplySnapshot(duelSnap(duel.StatusReady, "a"), t0.Add(time.Second))

	for _, m := range []*Machine{creator, other} {
		if st, ok := m.State().(Countdown); !ok || st.TicksLeft != CountdownTicks {
			t.Fatalf("expected full countdown, got %#v", m.State())
		}
	}

	var creatorEffects, otherEffects []Effect
	for i := 1; i <= CountdownTicks; i++ {
		now := t0.Add(time.Duration(1+i) * time.Second)
		creatorEffects = append(creatorEffects, creator.Tick(now)...)
		otherEffects = append(otherEffects, other.Tick(now)...)
	}
	if creator.State().Phase() != PhasePlaying || other.State().Phase() != PhasePlaying {
		t.Fatalf("both sides should be playing after the countdown: %s %s", creator.State().Phase(), other.State().Phase())
	}
	if len(creatorEffects) != 1 {
		t.Fatalf("creator should emit exactly one start, got %#v", creatorEffects)
	}
	if _, ok := creatorEffects[0].(StartEffect); !ok {
		t.Fatalf("expected StartEffect, got %#v", creatorEffects[0])
	}
	if len(otherEffects) != 0 {
		t.Fatalf("non-creator must not start the session, got %#v", otherEffects)
	}
}

func TestMachineJoinsRunningSessionWithoutCountdown(t *testing.T) {
	m := NewMachine("b", 3)
	snap := duelSnap(duel.StatusPlaying, "a")
	started := t0.Add(-20 * time.Second)
	snap.StartedAt = &started

	if effs := m.ApplySnapshot(snap, t0); len(effs) != 0 {
		t.Fatalf("unexpected effects: %#v", effs)
	}
	if m.State().Phase() != PhasePlaying {
		t.Fatalf("expected to skip straight to playing, got %s", m.State().Phase())
	}
	if got := m.Remaining(t0); got != 40*time.Second {
		t.Fatalf("remaining should be duration minus elapsed, got %v", got)
	}
}

func TestMachineLateJoinPastDeadlineFinishes(t *testing.T) {
	m := NewMachine("b", 3)
	snap := duelSnap(duel.StatusPlaying, "a")
	started := t0.Add(-90 * time.Second)
	snap.StartedAt = &started

	p := finishEffect(t, m.ApplySnapshot(snap, t0))
	if !p.Finished || m.Remaining(t0) != 0 {
		t.Fatalf("expected immediate timeout, got %+v remaining=%v", p, m.Remaining(t0))
	}
	if st := m.State().(Finished); st.Reason != ReasonTimeout {
		t.Fatalf("expected timeout reason, got %s", st.Reason)
	}
}

func TestMachineDelayedStartReachesPlaying(t *testing.T) {
	m := NewMachine("b", 3)
	m.ApplySnapshot(duelSnap(duel.StatusWaiting, "a"), t0)

	// the creator's start failed twice; the first poll that sees playing wins
	snap := duelSnap(duel.StatusPlaying, "a")
	snap.ServerTime = t0.Add(15 * time.Second)
	started := t0.Add(10 * time.Second)
	snap.StartedAt = &started
	m.ApplySnapshot(snap, t0.Add(15*time.Second))

	if m.State().Phase() != PhasePlaying {
		t.Fatalf("expected playing, got %s", m.State().Phase())
	}
	if got := m.Remaining(t0.Add(15 * time.Second)); got != 55*time.Second {
		t.Fatalf("remaining must come from the server start, got %v", got)
	}
}

func TestMachineClockConvergence(t *testing.T) {
	started := t0.Add(-10 * time.Second)
	snap := duelSnap(duel.StatusPlaying, "a")
	snap.StartedAt = &started

	// same instant t0 on the server; one local clock runs 7s ahead, the other 4s behind
	ahead := NewMachine("a", 3)
	behind := NewMachine("b", 3)
	ahead.ApplySnapshot(snap, t0.Add(7*time.Second))
	behind.ApplySnapshot(snap, t0.Add(-4*time.Second))

	ra := ahead.Remaining(t0.Add(7 * time.Second))
	rb := behind.Remaining(t0.Add(-4 * time.Second))
	diff := ra - rb
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("remaining diverged: %v vs %v", ra, rb)
	}
	if ra != 50*time.Second {
		t.Fatalf("expected 50s left on the server timeline, got %v", ra)
	}

	// both time out at the same server instant
	if effs := ahead.Tick(t0.Add(57 * time.Second)); len(effs) == 0 {
		t.Fatalf("ahead clock should time out at its local deadline")
	}
	if effs := behind.Tick(t0.Add(46 * time.Second)); len(effs) == 0 {
		t.Fatalf("behind clock should time out at its local deadline")
	}
}

func TestMachineTimeoutKeepsScore(t *testing.T) {
	m := NewMachine("a", 3)
	snap := duelSnap(duel.StatusPlaying, "a")
	snap.StartedAt = &t0
	m.ApplySnapshot(snap, t0)

	for i, correct := range []bool{true, false, true} {
		effs, err := m.Answer(correct, t0.Add(time.Duration(i+1)*time.Second))
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		if len(effs) != 1 {
			t.Fatalf("answer %d should report progress, got %#v", i, effs)
		}
		if _, ok := effs[0].(ReportEffect); !ok {
			t.Fatalf("answer %d: expected ReportEffect, got %#v", i, effs[0])
		}
	}

	// no network involved: the local timer alone ends the game
	p := finishEffect(t, m.Tick(t0.Add(60*time.Second)))
	want := duel.Progress{Score: 2, Strikes: 1, CurrentIndex: 3, Finished: true}
	if p != want || m.Progress() != want {
		t.Fatalf("expected %+v, got effect=%+v machine=%+v", want, p, m.Progress())
	}
	if st, ok := m.State().(Finished); !ok || st.Reason != ReasonTimeout {
		t.Fatalf("expected finished by timeout, got %#v", m.State())
	}
	if m.Remaining(t0.Add(60*time.Second)) != 0 {
		t.Fatalf("remaining must be zero after timeout")
	}
}

func TestMachineThreeStrikesWithQuestionsLeft(t *testing.T) {
	m := NewMachine("a", 3)
	snap := duelSnap(duel.StatusPlaying, "a")
	snap.QuestionCount = 13
	snap.StartedAt = &t0
	m.ApplySnapshot(snap, t0)

	var last []Effect
	for i := 0; i < 3; i++ {
		effs, err := m.Answer(false, t0.Add(time.Second))
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		last = effs
	}
	p := finishEffect(t, last)
	if p.Strikes != 3 || p.CurrentIndex != 3 || !p.Finished {
		t.Fatalf("unexpected final progress: %+v", p)
	}
	if st := m.State().(Finished); st.Reason != ReasonStrikes {
		t.Fatalf("expected strikes reason, got %s", st.Reason)
	}
	if _, err := m.Answer(true, t0.Add(2*time.Second)); !errors.Is(err, ErrNotPlaying) {
		t.Fatalf("answers after the cap must be refused, got %v", err)
	}
}

func TestMachineAnswerAfterDeadline(t *testing.T) {
	m := NewMachine("a", 3)
	snap := duelSnap(duel.StatusPlaying, "a")
	snap.StartedAt = &t0
	m.ApplySnapshot(snap, t0)

	effs, err := m.Answer(true, t0.Add(61*time.Second))
	if !errors.Is(err, ErrTimeUp) {
		t.Fatalf("expected ErrTimeUp, got %v", err)
	}
	if p := finishEffect(t, effs); p.Score != 0 {
		t.Fatalf("late answer must not score: %+v", p)
	}
}

func TestMachineFinishedIsSticky(t *testing.T) {
	m := NewMachine("a", 3)
	snap := duelSnap(duel.StatusPlaying, "a")
	snap.StartedAt = &t0
	m.ApplySnapshot(snap, t0)
	m.Tick(t0.Add(time.Minute))

	later := duelSnap(duel.StatusReady, "a")
	later.OpponentScore = 7
	later.OpponentFinished = true
	if effs := m.ApplySnapshot(later, t0.Add(2*time.Minute)); len(effs) != 0 {
		t.Fatalf("finished machine emitted %#v", effs)
	}
	if m.State().Phase() != PhaseFinished || m.Status() != duel.StatusPlaying {
		t.Fatalf("state or status regressed: %s %s", m.State().Phase(), m.Status())
	}
	if o := m.Opponent(); o.Score != 7 || !o.Finished {
		t.Fatalf("opponent fields should still update: %+v", o)
	}
}

func TestMachineIgnoresSessionSettledMidPlay(t *testing.T) {
	m := NewMachine("a", 3)
	snap := duelSnap(duel.StatusPlaying, "a")
	snap.StartedAt = &t0
	m.ApplySnapshot(snap, t0)

	done := duelSnap(duel.StatusFinished, "a")
	done.StartedAt = &t0
	done.ServerTime = t0.Add(10 * time.Second)
	done.OpponentFinished = true
	if effs := m.ApplySnapshot(done, t0.Add(10*time.Second)); len(effs) != 0 {
		t.Fatalf("remote settle must not end local play: %#v", effs)
	}
	if m.State().Phase() != PhasePlaying || !m.Opponent().Finished {
		t.Fatalf("expected to keep playing with final opponent row: %#v %+v", m.State(), m.Opponent())
	}
}

func TestMachineResumesOwnRow(t *testing.T) {
	m := NewMachine("a", 3)
	snap := duelSnap(duel.StatusPlaying, "a")
	snap.StartedAt = &t0
	snap.Self = &duel.Progress{Score: 4, Strikes: 1, CurrentIndex: 5}
	m.ApplySnapshot(snap, t0.Add(5*time.Second))
	if m.Progress().CurrentIndex != 5 {
		t.Fatalf("expected to resume at index 5, got %+v", m.Progress())
	}

	// later snapshots never overwrite local progress
	snap.Self = &duel.Progress{}
	m.ApplySnapshot(snap, t0.Add(6*time.Second))
	if m.Progress().Score != 4 {
		t.Fatalf("own row overwritten by poll: %+v", m.Progress())
	}
}

func TestMachinePublicAttempts(t *testing.T) {
	m := NewMachine("u", 3)
	m.ApplySnapshot(&duel.Snapshot{ChallengeID: "p", Kind: duel.KindPublic, Status: duel.StatusPlaying, CreatorID: "host", DurationSeconds: 30, QuestionCount: 2, StartedAt: &t0, ServerTime: t0}, t0.Add(time.Hour))

	if m.State().Phase() != PhasePlaying || m.Remaining(t0.Add(time.Hour)) != 30*time.Second {
		t.Fatalf("public attempt should get its own full timer: %#v", m.State())
	}
	effs, _ := m.Answer(true, t0.Add(time.Hour))
	if len(effs) != 0 {
		t.Fatalf("public mode reports only the final result, got %#v", effs)
	}
	effs, _ = m.Answer(true, t0.Add(time.Hour))
	if p := finishEffect(t, effs); p.Score != 2 {
		t.Fatalf("unexpected final: %+v", p)
	}
	if err := m.PlayAgain(t0.Add(2 * time.Hour)); err != nil {
		t.Fatalf("PlayAgain: %v", err)
	}
	if m.Progress() != (duel.Progress{}) || m.State().Phase() != PhasePlaying {
		t.Fatalf("replay should reset progress: %+v %#v", m.Progress(), m.State())
	}

	d := NewMachine("a", 3)
	d.ApplySnapshot(duelSnap(duel.StatusWaiting, "a"), t0)
	if err := d.PlayAgain(t0); !errors.Is(err, ErrNotPublic) {
		t.Fatalf("duels cannot be replayed, got %v", err)
	}
}

func countStarts(effs []Effect) int {
	n := 0
	for _, e := range effs {
		if _, ok := e.(StartEffect); ok {
			n++
		}
	}
	return n
}

func TestMachineReissuesFailedStart(t *testing.T) {
	m := NewMachine("a", 3)
	m.ApplySnapshot(duelSnap(duel.StatusReady, "a"), t0)

	var effs []Effect
	for i := 1; i <= CountdownTicks; i++ {
		effs = append(effs, m.Tick(t0.Add(time.Duration(i)*time.Second))...)
	}
	if countStarts(effs) != 1 {
		t.Fatalf("expected one start after the countdown, got %#v", effs)
	}

	// while the write is unresolved neither ticks nor polls add another
	if n := countStarts(m.Tick(t0.Add(5 * time.Second))); n != 0 {
		t.Fatalf("start reissued while in flight")
	}
	ready := duelSnap(duel.StatusReady, "a")
	ready.ServerTime = t0.Add(6 * time.Second)
	if n := countStarts(m.ApplySnapshot(ready, t0.Add(6*time.Second))); n != 0 {
		t.Fatalf("start reissued on poll while in flight")
	}

	m.StartFailed()
	if n := countStarts(m.Tick(t0.Add(7 * time.Second))); n != 1 {
		t.Fatalf("failed start must be reissued on the next tick")
	}
	m.StartFailed()
	ready.ServerTime = t0.Add(8 * time.Second)
	if n := countStarts(m.ApplySnapshot(ready, t0.Add(8*time.Second))); n != 1 {
		t.Fatalf("a poll still showing ready must reissue the start")
	}

	m.ApplyStart(t0.Add(8*time.Second), t0.Add(8*time.Second))
	if n := countStarts(m.Tick(t0.Add(9 * time.Second))); n != 0 {
		t.Fatalf("no start once started_at is known")
	}
	if got := m.Remaining(t0.Add(9 * time.Second)); got != 59*time.Second {
		t.Fatalf("deadline should follow the stamped start, got %v", got)
	}
}

func TestMachineNonCreatorNeverStarts(t *testing.T) {
	m := NewMachine("b", 3)
	m.ApplySnapshot(duelSnap(duel.StatusReady, "a"), t0)
	var effs []Effect
	for i := 1; i <= 10; i++ {
		effs = append(effs, m.Tick(t0.Add(time.Duration(i)*time.Second))...)
	}
	if countStarts(effs) != 0 {
		t.Fatalf("non-creator emitted a start: %#v", effs)
	}
}
