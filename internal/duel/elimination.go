package duel

// DefaultMaxStrikes is the strike cap used when none is configured.
const DefaultMaxStrikes = 3

// Rules bounds a session: the strike cap and the length of its question list.
type Rules struct {
	MaxStrikes    int
	QuestionCount int
}

// StrikeCap is the configured cap, or DefaultMaxStrikes.
func (r Rules) StrikeCap() int {
	if r.MaxStrikes <= 0 {
		return DefaultMaxStrikes
	}
	return r.MaxStrikes
}

// Terminal reports whether p has hit the strike cap or exhausted the questions.
func (r Rules) Terminal(p Progress) bool {
	return p.Strikes >= r.StrikeCap() || p.CurrentIndex >= r.QuestionCount
}

// ApplyAnswer scores one answered question. It has no side effects and must be
// called exactly once per answer. A progress that is already terminal is
// returned unchanged.
func (r Rules) ApplyAnswer(p Progress, correct bool) (Progress, bool) {
	if p.Finished || r.Terminal(p) {
		p.Finished = true
		return p, true
	}
	if correct {
		p.Score++
	} else {
		p.Strikes++
	}
	p.CurrentIndex++
	terminal := r.Terminal(p)
	if terminal {
		p.Finished = true
	}
	return p, terminal
}

// Validate checks a reported row against the session bounds.
func (r Rules) Validate(p Progress) error {
	if p.Score < 0 || p.Strikes < 0 || p.CurrentIndex < 0 {
		return ErrInvalidProgress
	}
	if p.CurrentIndex > r.QuestionCount || p.Strikes > r.StrikeCap() {
		return ErrInvalidProgress
	}
	if p.Score+p.Strikes > p.CurrentIndex {
		return ErrInvalidProgress
	}
	return nil
}

// Normalize forces finished once a terminal condition holds.
func (r Rules) Normalize(p Progress) Progress {
	if r.Terminal(p) {
		p.Finished = true
	}
	return p
}
