package api

import (
	"errors"

	"github.com/park285/quiz-duel/internal/duel"
	"github.com/park285/quiz-duel/pkg/duelwire"
)

var codes = []struct {
	err  error
	code string
}{
	{duel.ErrInvalidArgs, duelwire.CodeInvalidArgs},
	{duel.ErrNotFound, duelwire.CodeNotFound},
	{duel.ErrNotParticipant, duelwire.CodeNotParticipant},
	{duel.ErrFull, duelwire.CodeFull},
	{duel.ErrNotReady, duelwire.CodeNotReady},
	{duel.ErrNotFinished, duelwire.CodeNotFinished},
	{duel.ErrWrongKind, duelwire.CodeWrongKind},
	{duel.ErrInvalidProgress, duelwire.CodeInvalidProgress},
	{duel.ErrConflict, duelwire.CodeConflict},
}

// toDomain converts a store error into its wire form.
func toDomain(err error) duelwire.DomainError {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return duelwire.DomainError{Code: c.code, Message: c.err.Error(), Retryable: c.code == duelwire.CodeConflict}
		}
	}
	return duelwire.DomainError{Code: duelwire.CodeInternal, Message: "internal error", Retryable: true}
}

// fromDomain maps a wire error back onto the matching sentinel so callers can
// use errors.Is regardless of transport.
func fromDomain(de duelwire.DomainError) error {
	for _, c := range codes {
		if c.code == de.Code {
			return c.err
		}
	}
	return de
}
