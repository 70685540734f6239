package checkout

import (
	"errors"
	"fmt"
)

// Error kinds returned by the pipeline. Match them with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrDuplicateAttempt    = errors.New("duplicate payment attempt")
	ErrProviderDisabled    = errors.New("payment provider disabled")
	ErrPersistence         = errors.New("order persistence failed")
	ErrProviderIntegration = errors.New("provider charge registration failed")
	ErrNotFound            = errors.New("order not found")
)

// Error carries the kind, a message safe to show to the buyer and the
// underlying cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether target is the error kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func persistenceError(err error) error {
	return &Error{Kind: ErrPersistence, Message: "erro ao salvar pedido", Err: err}
}

// Message returns the user-facing message of err, or fallback when err is not
// a pipeline error.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
