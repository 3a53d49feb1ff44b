package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidPrompt      = errors.New("prompt is required")
	ErrInsufficientCredit = errors.New("not enough credits")
	ErrAlreadyGenerating  = errors.New("a generation is already in progress")
	ErrProviderFailure    = errors.New("provider failure")
)

// ErrorKind tags the failure classes surfaced by the generation lifecycle.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindCredit       ErrorKind = "credit"
	KindProvider     ErrorKind = "provider"
	KindNetwork      ErrorKind = "network"
	KindCancellation ErrorKind = "cancellation"
)

// Error is a tagged failure. Message is the user-facing text; Err keeps the
// underlying cause for logs and errors.Is checks.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Message)
	if e.Err == nil {
		return msg
	}
	if msg == "" {
		return e.Err.Error()
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func ValidationError(msg string, err error) *Error {
	return &Error{Kind: KindValidation, Message: msg, Err: err}
}

func CreditError(msg string, err error) *Error {
	return &Error{Kind: KindCredit, Message: msg, Err: err}
}

func ProviderError(msg string, err error) *Error {
	return &Error{Kind: KindProvider, Message: msg, Err: err}
}

func NetworkError(msg string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: msg, Err: err}
}

func CancellationError(msg string, err error) *Error {
	return &Error{Kind: KindCancellation, Message: msg, Err: err}
}

// KindOf returns the tag of err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return ""
}
