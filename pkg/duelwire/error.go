package duelwire

import "net/http"

// Error codes carried in DomainError.Code.
const (
	CodeInvalidArgs     = "invalid_args"
	CodeNotFound        = "not_found"
	CodeNotParticipant  = "not_participant"
	CodeFull            = "full"
	CodeNotReady        = "not_ready"
	CodeNotFinished     = "not_finished"
	CodeWrongKind       = "wrong_kind"
	CodeInvalidProgress = "invalid_progress"
	CodeConflict        = "conflict"
	CodeInternal        = "internal"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "duel service error"
}

// HTTPStatus maps the code onto a response status.
func (e DomainError) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidArgs, CodeInvalidProgress, CodeWrongKind:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNotParticipant:
		return http.StatusForbidden
	case CodeFull, CodeNotReady, CodeNotFinished, CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error DomainError `json:"error"`
}
