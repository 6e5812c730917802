package participant

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/park285/quiz-duel/internal/duel"
	"github.com/park285/quiz-duel/internal/retry"
	"go.uber.org/zap"
)

// Reporter writes the local participant's progress. Per-answer writes are
// latest-wins: while one is in flight only the newest row is kept, and a
// failed row is resent by Flush. The terminal write has its own retry policy.
type Reporter struct {
	store       duel.Store
	challengeID string
	userID      string
	kind        duel.Kind
	clock       clockwork.Clock
	logger      *zap.Logger
	policy      retry.Policy

	mu      sync.Mutex
	sending bool
	pending *duel.Progress
	failed  *duel.Progress
	final   bool
}

func NewReporter(store duel.Store, challengeID, userID string, kind duel.Kind, clock clockwork.Clock, logger *zap.Logger) *Reporter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		store:       store,
		challengeID: challengeID,
		userID:      userID,
		kind:        kind,
		clock:       clock,
		logger:      logger,
		policy:      retry.Terminal,
	}
}

// Report queues p for writing. It never blocks.
func (r *Reporter) Report(ctx context.Context, p duel.Progress) {
	if r.kind != duel.KindDuel {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.final {
		return
	}
	r.failed = nil
	if r.sending {
		r.pending = &p
		return
	}
	r.sending = true
	go r.drain(ctx, p)
}

// Flush resends the last row whose write failed, if nothing newer replaced it.
func (r *Reporter) Flush(ctx context.Context) {
	r.mu.Lock()
	p := r.failed
	r.mu.Unlock()
	if p != nil {
		r.Report(ctx, *p)
	}
}

func (r *Reporter) drain(ctx context.Context, p duel.Progress) {
	for {
		_, err := r.store.ReportProgress(ctx, r.challengeID, r.userID, p)
		r.mu.Lock()
		if err != nil {
			r.logger.Warn("progress_report_failed", zap.String("challenge_id", r.challengeID), zap.Int("index", p.CurrentIndex), zap.Error(err))
			if r.pending == nil && !r.final {
				failed := p
				r.failed = &failed
			}
		}
		if r.pending == nil || r.final {
			r.pending = nil
			r.sending = false
			r.mu.Unlock()
			return
		}
		p = *r.pending
		r.pending = nil
		r.mu.Unlock()
	}
}

// FinalResult is what the terminal write produced.
type FinalResult struct {
	Ack     *duel.Ack
	Attempt *duel.AttemptResult
}

// MarkFinished delivers the terminal row at least once. It blocks through
// the retry policy and is meant to run off the event loop. Per-answer writes
// queued afterwards are dropped.
func (r *Reporter) MarkFinished(ctx context.Context, p duel.Progress) (*FinalResult, error) {
	r.mu.Lock()
	r.final = true
	r.pending = nil
	r.failed = nil
	r.mu.Unlock()

	p.Finished = true
	out := &FinalResult{}
	var call func(context.Context) error
	if r.kind == duel.KindPublic {
		a := duel.Attempt{ID: uuid.NewString(), Score: p.Score, Strikes: p.Strikes}
		call = func(ctx context.Context) error {
			res, err := r.store.SaveFinalAttempt(ctx, r.challengeID, r.userID, a)
			out.Attempt = res
			return classify(err)
		}
	} else {
		call = func(ctx context.Context) error {
			ack, err := r.store.ReportProgress(ctx, r.challengeID, r.userID, p)
			out.Ack = ack
			return classify(err)
		}
	}
	if err := r.policy.Do(ctx, r.clock, call); err != nil {
		// the opponent still sees the last per-answer row
		r.logger.Error("final_report_failed", zap.String("challenge_id", r.challengeID), zap.String("user_id", r.userID), zap.Error(err))
		return nil, err
	}
	r.logger.Info("final_report", zap.String("challenge_id", r.challengeID), zap.String("user_id", r.userID), zap.Int("score", p.Score), zap.Int("strikes", p.Strikes))
	return out, nil
}

// Reset reopens the reporter for another public attempt.
func (r *Reporter) Reset() {
	r.mu.Lock()
	r.final = false
	r.mu.Unlock()
}

// classify stops retrying on errors another attempt cannot fix.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, perm := range []error{duel.ErrInvalidArgs, duel.ErrNotFound, duel.ErrNotParticipant, duel.ErrWrongKind, duel.ErrInvalidProgress, duel.ErrNotReady} {
		if errors.Is(err, perm) {
			return retry.Stop(err)
		}
	}
	return err
}
