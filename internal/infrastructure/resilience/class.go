package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

// Class tells the executor what a failed attempt means.
type Class int

const (
	// Permanent failures end the call and count against the breaker.
	Permanent Class = iota
	// Transient failures are retried and count against the breaker.
	Transient
	// Rejected failures are the caller's own (bad request, cancellation).
	// They end the call and leave the breaker alone.
	Rejected
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Rejected:
		return "rejected"
	default:
		return "permanent"
	}
}

type Classifier func(error) Class

// RetryHinter is implemented by errors that carry an upstream wait hint,
// such as a Retry-After header on a 429.
type RetryHinter interface {
	RetryAfter() time.Duration
}

// Cancelled reports context cancellation or deadline expiry anywhere in
// err's chain.
func Cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Temporary marks err as domain.ErrTemporary when classify considers it
// transient or the breaker refused the call. Errors that already carry
// ErrTemporary or ErrUnsupported pass through.
func Temporary(operation string, err error, classify Classifier) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrUnsupported) {
		return err
	}
	if IsCircuitOpen(err) || (classify != nil && classify(err) == Transient) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func retryHint(err error) time.Duration {
	var hinter RetryHinter
	if errors.As(err, &hinter) {
		return hinter.RetryAfter()
	}
	return 0
}

func permanent(error) Class { return Permanent }
