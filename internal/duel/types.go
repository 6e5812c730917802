package duel

import (
	"context"
	"errors"
	"time"
)

// Kind distinguishes a two-party duel from a single-player score attack.
type Kind string

const (
	KindDuel   Kind = "duel"
	KindPublic Kind = "public"
)

func (k Kind) Valid() bool { return k == KindDuel || k == KindPublic }

// Status is the shared lifecycle of a challenge. It only ever moves forward.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusReady    Status = "ready"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Rank orders statuses; unknown values rank below waiting.
func (s Status) Rank() int {
	switch s {
	case StatusWaiting:
		return 1
	case StatusReady:
		return 2
	case StatusPlaying:
		return 3
	case StatusFinished:
		return 4
	default:
		return 0
	}
}

// Max returns whichever of s and o is further along.
func (s Status) Max(o Status) Status {
	if o.Rank() > s.Rank() {
		return o
	}
	return s
}

type RematchStatus string

const (
	RematchRequesting RematchStatus = "requesting"
	RematchReady      RematchStatus = "ready"
)

// Rematch is the follow-up record hanging off a finished challenge.
type Rematch struct {
	ChallengeID string        `json:"challenge_id,omitempty"`
	Status      RematchStatus `json:"status"`
	RequestedBy string        `json:"requested_by"`
	RequestedAt time.Time     `json:"requested_at"`
}

// Challenge is the authoritative shared record. Participant rows live under
// their own keys; see Progress.
type Challenge struct {
	ID              string     `json:"id"`
	Kind            Kind       `json:"kind"`
	Status          Status     `json:"status"`
	CreatorID       string     `json:"creator_id"`
	Participants    []string   `json:"participants"`
	DurationSeconds int        `json:"duration_seconds"`
	QuestionCount   int        `json:"question_count"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Rematch         *Rematch   `json:"rematch,omitempty"`
	RematchOf       string     `json:"rematch_of,omitempty"`
}

func (c *Challenge) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

// HasParticipant reports whether userID is registered on the challenge.
func (c *Challenge) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OpponentOf returns the other duel participant, or "" if none joined yet.
func (c *Challenge) OpponentOf(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// Progress is one participant's row: cumulative, never a delta.
type Progress struct {
	Score        int  `json:"score"`
	Strikes      int  `json:"strikes"`
	CurrentIndex int  `json:"current_index"`
	Finished     bool `json:"finished"`
}

// Snapshot is the caller-relative projection of a challenge returned by a poll.
type Snapshot struct {
	ChallengeID     string     `json:"challenge_id"`
	Kind            Kind       `json:"kind"`
	Status          Status     `json:"status"`
	CreatorID       string     `json:"creator_id"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	QuestionCount   int        `json:"question_count"`

	OpponentID       string `json:"opponent_id,omitempty"`
	OpponentScore    int    `json:"opponent_score"`
	OpponentStrikes  int    `json:"opponent_strikes"`
	OpponentIndex    int    `json:"opponent_index"`
	OpponentFinished bool   `json:"opponent_finished"`

	// Self is the caller's own row as last persisted. Only used to resume after a reload.
	Self *Progress `json:"self,omitempty"`

	Rematch    *Rematch  `json:"rematch,omitempty"`
	ServerTime time.Time `json:"server_time"`
}

// Ack confirms a progress write.
type Ack struct {
	Applied bool     `json:"applied"`
	Status  Status   `json:"status"`
	Stored  Progress `json:"stored"`
}

// Attempt is a public-mode final result.
type Attempt struct {
	ID      string `json:"attempt_id"`
	Score   int    `json:"score"`
	Strikes int    `json:"strikes"`
}

type LeaderboardEntry struct {
	Rank    int    `json:"rank"`
	UserID  string `json:"user_id"`
	Score   int    `json:"score"`
	Strikes int    `json:"strikes"`
}

type AttemptResult struct {
	Leaderboard  []LeaderboardEntry `json:"leaderboard"`
	AttemptCount int64              `json:"attempt_count"`
	Duplicate    bool               `json:"duplicate,omitempty"`
}

type RematchAction string

const (
	RematchWaiting          RematchAction = "waiting"
	RematchAccepted         RematchAction = "accepted"
	RematchAlreadyRequested RematchAction = "already_requested"
)

type RematchResult struct {
	Action         RematchAction `json:"action"`
	NewChallengeID string        `json:"new_challenge_id,omitempty"`
	Status         RematchStatus `json:"status"`
}

// NewChallenge describes a challenge to create.
type NewChallenge struct {
	Kind            Kind   `json:"kind"`
	CreatorID       string `json:"creator_id"`
	DurationSeconds int    `json:"duration_seconds"`
	QuestionCount   int    `json:"question_count"`
}

// Store is the participant-facing contract of the shared session record.
type Store interface {
	GetSnapshot(ctx context.Context, challengeID, callerID string) (*Snapshot, error)
	ReportProgress(ctx context.Context, challengeID, callerID string, p Progress) (*Ack, error)
	StartSession(ctx context.Context, challengeID string) (time.Time, error)
	SaveFinalAttempt(ctx context.Context, challengeID, callerID string, a Attempt) (*AttemptResult, error)
	ProposeRematch(ctx context.Context, challengeID, callerID string) (*RematchResult, error)
}

// Admin covers challenge creation and joining, which sit outside the sync loop.
type Admin interface {
	CreateChallenge(ctx context.Context, nc NewChallenge) (*Challenge, error)
	JoinChallenge(ctx context.Context, challengeID, userID string) (*Challenge, error)
}

var (
	ErrInvalidArgs     = errors.New("invalid arguments")
	ErrNotFound        = errors.New("challenge not found or expired")
	ErrNotParticipant  = errors.New("user is not a participant of this challenge")
	ErrFull            = errors.New("challenge already has two participants")
	ErrNotReady        = errors.New("challenge is not ready to start")
	ErrNotFinished     = errors.New("challenge has not finished")
	ErrWrongKind       = errors.New("operation not supported for this challenge kind")
	ErrInvalidProgress = errors.New("progress out of bounds")
	ErrConflict        = errors.New("concurrent update, retries exhausted")
)
