package participant

import (
	"time"

	"github.com/park285/quiz-duel/internal/duel"
)

// RematchWindow is how long after a session finishes a rematch can still be arranged.
const RematchWindow = 5 * time.Minute

type RematchState string

const (
	RematchIdle          RematchState = "idle"
	RematchRequesting    RematchState = "requesting"
	RematchWaiting       RematchState = "waiting"
	RematchOpponentWants RematchState = "opponent_wants"
	RematchAccepting     RematchState = "accepting"
	RematchRedirect      RematchState = "redirect"
	RematchExpired       RematchState = "expired"
)

// Negotiator is one participant's side of the rematch handshake. The store
// resolves races; this type only tracks what the local user sees.
type Negotiator struct {
	userID     string
	state      RematchState
	target     string
	finishedAt time.Time
}

func NewNegotiator(userID string) *Negotiator {
	return &Negotiator{userID: userID, state: RematchIdle}
}

func (n *Negotiator) State() RematchState { return n.state }

// Target is the new challenge id once the state is redirect.
func (n *Negotiator) Target() string { return n.target }

// Observe folds in the rematch record from a poll. serverNow is used for expiry.
func (n *Negotiator) Observe(r *duel.Rematch, finishedAt *time.Time, serverNow time.Time) {
	if n.state == RematchRedirect {
		return
	}
	if finishedAt != nil && n.finishedAt.IsZero() {
		n.finishedAt = *finishedAt
	}
	if r != nil && r.Status == duel.RematchReady && r.ChallengeID != "" {
		n.redirect(r.ChallengeID)
		return
	}
	if n.expiredAt(serverNow) {
		n.state = RematchExpired
		return
	}
	if r == nil || r.Status != duel.RematchRequesting {
		return
	}
	switch {
	case r.RequestedBy == n.userID && (n.state == RematchIdle || n.state == RematchRequesting):
		n.state = RematchWaiting
	case r.RequestedBy != n.userID && n.state == RematchIdle:
		n.state = RematchOpponentWants
	}
}

// Expire moves to expired once the window has passed. It reports whether
// the state changed.
func (n *Negotiator) Expire(serverNow time.Time) bool {
	if n.state == RematchRedirect || n.state == RematchExpired || !n.expiredAt(serverNow) {
		return false
	}
	n.state = RematchExpired
	return true
}

// Begin is the local user asking for (or accepting) a rematch. It returns
// false when no call should be made.
func (n *Negotiator) Begin() bool {
	switch n.state {
	case RematchIdle:
		n.state = RematchRequesting
	case RematchOpponentWants:
		n.state = RematchAccepting
	default:
		return false
	}
	return true
}

// Resolve applies the result of the ProposeRematch call started by Begin.
func (n *Negotiator) Resolve(res *duel.RematchResult, err error) {
	if n.state == RematchRedirect || n.state == RematchExpired {
		return
	}
	if err != nil || res == nil {
		switch n.state {
		case RematchRequesting:
			n.state = RematchIdle
		case RematchAccepting:
			n.state = RematchOpponentWants
		}
		return
	}
	if res.NewChallengeID != "" && (res.Action == duel.RematchAccepted || res.Status == duel.RematchReady) {
		n.redirect(res.NewChallengeID)
		return
	}
	n.state = RematchWaiting
}

func (n *Negotiator) redirect(id string) {
	n.state = RematchRedirect
	n.target = id
}

func (n *Negotiator) expiredAt(serverNow time.Time) bool {
	return !n.finishedAt.IsZero() && !serverNow.Before(n.finishedAt.Add(RematchWindow))
}
