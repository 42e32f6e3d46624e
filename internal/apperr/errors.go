package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation_error")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrIllegalState      = errors.New("illegal_state_transition")
	ErrNotFound          = errors.New("not_found")
	ErrConflict          = errors.New("concurrency_conflict")
)

// Error carries one of the sentinel kinds above plus the operation that
// produced it. errors.Is matches against the kind.
type Error struct {
	Kind error
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newf(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Validation(op, format string, args ...any) error {
	return newf(ErrValidation, op, format, args...)
}

func InsufficientFunds(op, format string, args ...any) error {
	return newf(ErrInsufficientFunds, op, format, args...)
}

func IllegalState(op, format string, args ...any) error {
	return newf(ErrIllegalState, op, format, args...)
}

func NotFound(op, format string, args ...any) error {
	return newf(ErrNotFound, op, format, args...)
}

func Conflict(op, format string, args ...any) error {
	return newf(ErrConflict, op, format, args...)
}

// KindOf returns the sentinel kind of err, or nil for errors outside the taxonomy.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrInsufficientFunds, ErrIllegalState, ErrNotFound, ErrConflict} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
