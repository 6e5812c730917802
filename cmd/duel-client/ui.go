package main

import (
	"fmt"
	"io"
	"time"

	"github.com/park285/quiz-duel/internal/duel"
	"github.com/park285/quiz-duel/internal/msgcat"
	"github.com/park285/quiz-duel/internal/obslog"
	"github.com/park285/quiz-duel/internal/participant"
	"github.com/park285/quiz-duel/internal/quizbank"
	"go.uber.org/zap"
)

var requiredKeys = []string{
	"duel.created", "duel.waiting", "duel.countdown", "duel.question", "duel.choice",
	"duel.hud", "duel.opponent", "duel.correct", "duel.wrong", "duel.connectivity_lost",
	"finish.timeout", "finish.strikes", "finish.exhausted", "finish.closed",
	"finish.result_win", "finish.result_lose", "finish.result_draw", "finish.save_failed",
	"rematch.prompt", "rematch.waiting", "rematch.opponent_wants", "rematch.redirect", "rematch.expired",
	"public.leaderboard_header", "public.leaderboard_row", "public.play_again",
}

// terminal prints only what changed between two views.
type terminal struct {
	cat        *msgcat.Catalog
	out        io.Writer
	user       string
	maxStrikes int
	bank       *quizbank.Bank

	challengeID string
	questions   []quizbank.Question
	index     int
	last      participant.View
	shown     bool
	verdict   bool
	final     *participant.FinalResult
}

func (t *terminal) reset(challengeID string) {
	t.challengeID = challengeID
	t.questions = nil
	t.index = 0
	t.last = participant.View{}
	t.shown, t.verdict, t.final = false, false, nil
}

func (t *terminal) say(key string, data any) {
	s, err := t.cat.Render(key, data)
	if err != nil {
		obslog.L().Warn("render_failed", zap.String("key", key), zap.Error(err))
		return
	}
	_, _ = fmt.Fprintln(t.out, s)
}

// bind picks the challenge's questions once its size is known. Both
// participants derive the same list from the challenge id.
func (t *terminal) bind(count int) error {
	if t.questions != nil || count <= 0 {
		return nil
	}
	if count > t.bank.Len() {
		return fmt.Errorf("challenge needs %d questions, bank has %d", count, t.bank.Len())
	}
	t.questions = t.bank.ForChallenge(t.challengeID, count)
	return nil
}

func (t *terminal) question(i int) (quizbank.Question, bool) {
	if i < 0 || i >= len(t.questions) {
		return quizbank.Question{}, false
	}
	return t.questions[i], true
}

// grade checks a 0-based choice against the current question.
func (t *terminal) grade(choice int) (correct bool, ok bool) {
	if t.last.Phase != participant.PhasePlaying {
		return false, false
	}
	q, ok := t.question(t.index)
	if !ok || choice < 0 || choice >= len(q.Choices) {
		return false, false
	}
	correct = q.Check(choice)
	if correct {
		t.say("duel.correct", nil)
	} else {
		t.say("duel.wrong", map[string]any{"Answer": q.Choices[q.Answer]})
	}
	t.index++
	return correct, true
}

func (t *terminal) render(v participant.View) error {
	if err := t.bind(v.QuestionCount); err != nil {
		return err
	}
	prev := t.last
	t.last = v
	if v.Progress.CurrentIndex > t.index {
		t.index = v.Progress.CurrentIndex
	}

	if v.ConnectivityLost && !prev.ConnectivityLost {
		t.say("duel.connectivity_lost", nil)
	}

	switch v.Phase {
	case participant.PhaseWaiting:
		if prev.Phase != v.Phase {
			t.say("duel.waiting", nil)
		}
	case participant.PhaseCountdown:
		if prev.Phase != v.Phase || prev.TicksLeft != v.TicksLeft {
			t.say("duel.countdown", map[string]any{"Ticks": v.TicksLeft})
		}
	case participant.PhasePlaying:
		if prev.Phase != v.Phase || prev.Progress.CurrentIndex != v.Progress.CurrentIndex || !t.shown {
			t.showQuestion(v)
		}
	case participant.PhaseFinished:
		if prev.Phase != v.Phase {
			t.say("finish."+string(v.Reason), map[string]any{"Score": v.Progress.Score, "Strikes": v.Progress.Strikes})
			t.shown = false
			if v.Kind == duel.KindDuel {
				t.say("rematch.prompt", nil)
			}
		}
		t.renderFinal(v)
		t.renderRematch(prev, v)
	}

	if v.Kind == duel.KindDuel && v.Opponent.ID != "" && v.Opponent != prev.Opponent {
		t.say("duel.opponent", map[string]any{
			"OpponentID": v.Opponent.ID,
			"Score":      v.Opponent.Score,
			"Strikes":    v.Opponent.Strikes,
			"Index":      v.Opponent.Index + 1,
			"Finished":   v.Opponent.Finished,
		})
	}
	return nil
}

func (t *terminal) showQuestion(v participant.View) {
	q, ok := t.question(t.index)
	if !ok {
		return
	}
	t.shown = true
	t.say("duel.hud", map[string]any{
		"Remaining":  clockText(v.Remaining),
		"Score":      v.Progress.Score,
		"Strikes":    v.Progress.Strikes,
		"MaxStrikes": t.maxStrikes,
	})
	t.say("duel.question", map[string]any{"Number": t.index + 1, "Total": v.QuestionCount, "Prompt": q.Prompt})
	for i, c := range q.Choices {
		t.say("duel.choice", map[string]any{"Key": i + 1, "Text": c})
	}
}

func (t *terminal) renderFinal(v participant.View) {
	if v.FinalErr != nil && t.final == nil && v.Final == nil {
		t.final = &participant.FinalResult{}
		t.say("finish.save_failed", nil)
		return
	}
	if v.Final != nil && v.Final != t.final {
		t.final = v.Final
		if v.Kind == duel.KindPublic && v.Final.Attempt != nil {
			t.say("public.leaderboard_header", map[string]any{"Attempts": v.Final.Attempt.AttemptCount})
			for _, e := range v.Final.Attempt.Leaderboard {
				t.say("public.leaderboard_row", map[string]any{"Rank": e.Rank, "UserID": e.UserID, "Score": e.Score, "Strikes": e.Strikes})
			}
			t.say("public.play_again", nil)
		}
	}
	if v.Kind == duel.KindDuel && !t.verdict && v.Opponent.Finished {
		t.verdict = true
		rows := map[string]duel.Progress{
			t.user:        v.Progress,
			v.Opponent.ID: {Score: v.Opponent.Score, Strikes: v.Opponent.Strikes},
		}
		switch duel.Winner(rows) {
		case "":
			t.say("finish.result_draw", nil)
		case t.user:
			t.say("finish.result_win", nil)
		default:
			t.say("finish.result_lose", nil)
		}
	}
}

func (t *terminal) renderRematch(prev, v participant.View) {
	if v.Kind != duel.KindDuel || prev.Rematch == v.Rematch {
		return
	}
	switch v.Rematch {
	case participant.RematchWaiting:
		t.say("rematch.waiting", nil)
	case participant.RematchOpponentWants:
		t.say("rematch.opponent_wants", nil)
	case participant.RematchExpired:
		t.say("rematch.expired", nil)
	}
}

func clockText(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
