package service

import (
	"classplay/internal/model"
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionFull         = errors.New("session is full")
	ErrInsufficientPlayers = errors.New("a turn needs at least two players")
	ErrSessionFinished     = errors.New("session is finished")
	ErrInvalidTransition   = errors.New("invalid session status transition")
	ErrPlayerNotInSession  = errors.New("player is not in this session")
	ErrNoActiveTurn        = errors.New("session has no current turn")
	ErrArchiveUnavailable  = errors.New("session archive is not configured")

	errInvalidInput = errors.New("invalid input")
)

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports bad caller input
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return errInvalidInput.Error()
	}
	if len(e.Fields) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s %s", e.Err, e.Fields[0].Field, e.Fields[0].Error)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// OpError tags a store failure with the operation that hit it
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *OpError) Unwrap() error { return e.Err }

func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}

// PartialWriteError is returned when the next turn was published but the
// move could not be appended. Retry only the append (TurnCoordinator.RetryMove).
type PartialWriteError struct {
	SessionID string
	Turn      *model.Turn
	Move      *model.Move
	Err       error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("advanceTurn: session %s: turn published but move append failed: %v", e.SessionID, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
