package duelwire

import "time"

type CreateRequest struct {
	Kind            string `json:"kind"`
	CreatorID       string `json:"creator_id"`
	DurationSeconds int    `json:"duration_seconds"`
	QuestionCount   int    `json:"question_count"`
}

// UserRequest is the body of join and rematch calls.
type UserRequest struct {
	UserID string `json:"user_id"`
}

type ProgressRequest struct {
	UserID       string `json:"user_id"`
	Score        int    `json:"score"`
	Strikes      int    `json:"strikes"`
	CurrentIndex int    `json:"current_index"`
	Finished     bool   `json:"finished"`
}

type AttemptRequest struct {
	UserID    string `json:"user_id"`
	AttemptID string `json:"attempt_id"`
	Score     int    `json:"score"`
	Strikes   int    `json:"strikes"`
}

type StartResponse struct {
	StartedAt time.Time `json:"started_at"`
}
