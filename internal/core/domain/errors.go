package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrJobNotFound      = errors.New("job not found")
	ErrObjectNotFound   = errors.New("object not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotAnalyzed      = errors.New("document not analyzed")
	ErrUnsupported      = errors.New("unsupported operation")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Error is a client-facing failure: Message is safe to show to callers and
// Kind decides the transport status.
type Error struct {
	Kind    error
	Message string
}

func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}

// PublicMessage returns the first client-facing message in the chain.
func PublicMessage(err error) (string, bool) {
	var pub *Error
	if errors.As(err, &pub) && pub.Message != "" {
		return pub.Message, true
	}
	return "", false
}
