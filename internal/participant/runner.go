package participant

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/park285/quiz-duel/internal/duel"
	"github.com/park285/quiz-duel/internal/retry"
	"go.uber.org/zap"
)

type Config struct {
	ChallengeID  string
	UserID       string
	MaxStrikes   int
	PollInterval time.Duration
	TickInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxStrikes <= 0 {
		c.MaxStrikes = duel.DefaultMaxStrikes
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	return c
}

// View is what a UI renders. A new one is published after every loop step.
type View struct {
	ChallengeID      string
	Kind             duel.Kind
	Phase            Phase
	Reason           FinishReason
	TicksLeft        int
	Remaining        time.Duration
	QuestionCount    int
	Progress         duel.Progress
	Opponent         Opponent
	ConnectivityLost bool
	Rematch          RematchState
	Final            *FinalResult
	FinalErr         error
}

// Result is returned by Run.
type Result struct {
	ChallengeID string
	Progress    duel.Progress
	Reason      FinishReason
	Opponent    Opponent
	// RedirectTo is the rematch challenge both participants move to.
	RedirectTo string
	Final      *FinalResult
}

type inputKind int

const (
	inputAnswer inputKind = iota
	inputRematch
	inputRetry
	inputPlayAgain
	inputLeave
)

type input struct {
	kind    inputKind
	correct bool
}

// Runner is the single event loop of one participant. It owns the Machine,
// the Poller and the Negotiator; network calls run on their own goroutines
// and hand their results back to the loop, so timers and input are never
// blocked by I/O.
type Runner struct {
	store  duel.Store
	cfg    Config
	clock  clockwork.Clock
	logger *zap.Logger

	machine  *Machine
	poller   *Poller
	rematch  *Negotiator
	reporter *Reporter

	inputs  chan input
	results chan func()
	updates chan View
	stopped chan struct{}

	finalPending bool
	final        *FinalResult
	finalErr     error
	leave        bool
	lastPhase    Phase
}

type Option func(*Runner)

func WithClock(c clockwork.Clock) Option { return func(r *Runner) { r.clock = c } }

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRunner(store duel.Store, cfg Config, opts ...Option) *Runner {
	cfg = cfg.withDefaults()
	r := &Runner{
		store:   store,
		cfg:     cfg,
		clock:   clockwork.NewRealClock(),
		logger:  zap.NewNop(),
		machine: NewMachine(cfg.UserID, cfg.MaxStrikes),
		poller:  NewPoller(cfg.PollInterval),
		rematch: NewNegotiator(cfg.UserID),
		inputs:  make(chan input, 16),
		results: make(chan func(), 16),
		updates: make(chan View, 1),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("challenge_id", cfg.ChallengeID), zap.String("user_id", cfg.UserID))
	return r
}

// Updates delivers the latest View. Stale views are dropped.
func (r *Runner) Updates() <-chan View { return r.updates }

func (r *Runner) Answer(correct bool) { r.send(input{kind: inputAnswer, correct: correct}) }

// RequestRematch proposes a rematch, or accepts the opponent's.
func (r *Runner) RequestRematch() { r.send(input{kind: inputRematch}) }

// RetryConnection clears the connectivity condition and polls immediately.
func (r *Runner) RetryConnection() { r.send(input{kind: inputRetry}) }

// PlayAgain starts another public attempt.
func (r *Runner) PlayAgain() { r.send(input{kind: inputPlayAgain}) }

// Leave ends Run once any terminal write has completed.
func (r *Runner) Leave() { r.send(input{kind: inputLeave}) }

func (r *Runner) send(in input) {
	select {
	case r.inputs <- in:
	case <-r.stopped:
	}
}

// Run drives the loop until the participant leaves, both sides redirect to a
// rematch, the rematch window closes, or ctx is done. Network failures never
// end it.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer close(r.stopped)

	ticker := r.clock.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	r.maybePoll(ctx)
	r.publish()
	for {
		select {
		case <-ctx.Done():
			return r.result(), ctx.Err()
		case <-ticker.Chan():
			r.onTick(ctx)
		case in := <-r.inputs:
			r.onInput(ctx, in)
		case fn := <-r.results:
			fn()
		}
		r.publish()
		if r.done() {
			r.logger.Info("runner_exit", zap.String("phase", string(r.machine.State().Phase())), zap.String("redirect", r.rematch.Target()))
			return r.result(), nil
		}
	}
}

func (r *Runner) done() bool {
	if r.finalPending {
		return false
	}
	if r.leave || r.rematch.State() == RematchRedirect {
		return true
	}
	_, finished := r.machine.State().(Finished)
	return finished && r.machine.Kind() == duel.KindDuel && r.rematch.State() == RematchExpired
}

func (r *Runner) onTick(ctx context.Context) {
	now := r.clock.Now()
	r.exec(ctx, r.machine.Tick(now))
	if r.reporter != nil {
		r.reporter.Flush(ctx)
	}
	if _, finished := r.machine.State().(Finished); finished && r.machine.Kind() == duel.KindDuel {
		if r.rematch.Expire(r.machine.ServerNow(now)) {
			r.logger.Info("rematch_window_closed")
		}
	}
	r.maybePoll(ctx)
}

func (r *Runner) onInput(ctx context.Context, in input) {
	now := r.clock.Now()
	switch in.kind {
	case inputAnswer:
		effs, err := r.machine.Answer(in.correct, now)
		if err != nil {
			r.logger.Debug("answer_ignored", zap.Error(err))
		}
		r.exec(ctx, effs)
	case inputRematch:
		r.proposeRematch(ctx)
	case inputRetry:
		r.poller.Retry(now)
		r.maybePoll(ctx)
	case inputPlayAgain:
		if r.finalPending {
			return
		}
		if err := r.machine.PlayAgain(now); err != nil {
			r.logger.Debug("play_again_ignored", zap.Error(err))
			return
		}
		r.reporter.Reset()
		r.final, r.finalErr = nil, nil
	case inputLeave:
		r.leave = true
	}
}

func (r *Runner) maybePoll(ctx context.Context) {
	now := r.clock.Now()
	if !ShouldPoll(r.machine.State().Phase(), r.rematch.State()) || !r.poller.Due(now) {
		return
	}
	r.poller.Begin(now)
	go func() {
		snap, err := r.store.GetSnapshot(ctx, r.cfg.ChallengeID, r.cfg.UserID)
		receivedAt := r.clock.Now()
		r.post(ctx, func() { r.onSnapshot(ctx, snap, receivedAt, err) })
	}()
}

func (r *Runner) onSnapshot(ctx context.Context, snap *duel.Snapshot, receivedAt time.Time, err error) {
	if lost := r.poller.Done(err); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Warn("poll_failure", zap.Int("consecutive", r.poller.Failures()), zap.Error(err))
		if lost {
			r.logger.Error("poll_connectivity_lost", zap.Int("consecutive", r.poller.Failures()))
		}
		return
	}
	if r.reporter == nil {
		r.reporter = NewReporter(r.store, r.cfg.ChallengeID, r.cfg.UserID, snap.Kind, r.clock, r.logger)
	}
	r.exec(ctx, r.machine.ApplySnapshot(snap, receivedAt))
	if r.machine.Kind() == duel.KindDuel {
		r.rematch.Observe(r.machine.Rematch(), r.machine.FinishedAt(), r.machine.ServerNow(receivedAt))
	}
}

func (r *Runner) proposeRematch(ctx context.Context) {
	if _, finished := r.machine.State().(Finished); !finished || r.machine.Kind() != duel.KindDuel {
		return
	}
	if !r.rematch.Begin() {
		return
	}
	go func() {
		res, err := r.store.ProposeRematch(ctx, r.cfg.ChallengeID, r.cfg.UserID)
		r.post(ctx, func() {
			if err != nil {
				r.logger.Warn("rematch_propose_failed", zap.Error(err))
			} else {
				r.logger.Info("rematch_propose", zap.String("action", string(res.Action)), zap.String("new_challenge_id", res.NewChallengeID))
			}
			r.rematch.Resolve(res, err)
		})
	}()
}

// exec runs machine effects. Writes go out on their own goroutines.
func (r *Runner) exec(ctx context.Context, effs []Effect) {
	for _, e := range effs {
		switch eff := e.(type) {
		case StartEffect:
			go func() {
				var startedAt time.Time
				err := retry.Terminal.Do(ctx, r.clock, func(ctx context.Context) error {
					ts, err := r.store.StartSession(ctx, r.cfg.ChallengeID)
					startedAt = ts
					return classify(err)
				})
				r.post(ctx, func() {
					if err != nil {
						// reissued on the next tick until started_at is stamped
						r.logger.Warn("start_session_failed", zap.Error(err))
						r.machine.StartFailed()
						return
					}
					r.exec(ctx, r.machine.ApplyStart(startedAt, r.clock.Now()))
				})
			}()
		case ReportEffect:
			if r.reporter != nil {
				r.reporter.Report(ctx, eff.Progress)
			}
		case FinishEffect:
			if r.reporter == nil {
				continue
			}
			r.finalPending = true
			p := eff.Progress
			go func() {
				res, err := r.reporter.MarkFinished(ctx, p)
				r.post(ctx, func() {
					r.finalPending = false
					r.final, r.finalErr = res, err
				})
			}()
		}
	}
}

func (r *Runner) post(ctx context.Context, fn func()) {
	select {
	case r.results <- fn:
	case <-ctx.Done():
	}
}

func (r *Runner) view() View {
	now := r.clock.Now()
	v := View{
		ChallengeID:      r.cfg.ChallengeID,
		Kind:             r.machine.Kind(),
		Phase:            r.machine.State().Phase(),
		Remaining:        r.machine.Remaining(now),
		QuestionCount:    r.machine.QuestionCount(),
		Progress:         r.machine.Progress(),
		Opponent:         r.machine.Opponent(),
		ConnectivityLost: r.poller.Lost(),
		Rematch:          r.rematch.State(),
		Final:            r.final,
		FinalErr:         r.finalErr,
	}
	switch st := r.machine.State().(type) {
	case Countdown:
		v.TicksLeft = st.TicksLeft
	case Finished:
		v.Reason = st.Reason
	}
	return v
}

func (r *Runner) publish() {
	v := r.view()
	if v.Phase != r.lastPhase {
		r.logger.Info("duel_phase", zap.String("from", string(r.lastPhase)), zap.String("to", string(v.Phase)))
		r.lastPhase = v.Phase
	}
	select {
	case <-r.updates:
	default:
	}
	select {
	case r.updates <- v:
	default:
	}
}

func (r *Runner) result() *Result {
	res := &Result{
		ChallengeID: r.cfg.ChallengeID,
		Progress:    r.machine.Progress(),
		Opponent:    r.machine.Opponent(),
		Final:       r.final,
	}
	if st, ok := r.machine.State().(Finished); ok {
		res.Reason = st.Reason
	}
	if r.rematch.State() == RematchRedirect {
		res.RedirectTo = r.rematch.Target()
	}
	return res
}
