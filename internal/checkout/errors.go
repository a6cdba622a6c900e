package checkout

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable error class returned to clients.
type Kind string

const (
	KindValidation            Kind = "validation_error"
	KindInsufficientStock     Kind = "insufficient_stock"
	KindNoSellableBatch       Kind = "no_sellable_batch"
	KindAuthorizationRequired Kind = "authorization_required"
	KindInvalidTender         Kind = "invalid_tender"
	KindConcurrencyConflict   Kind = "concurrency_conflict"
	KindPersistence           Kind = "persistence_failure"
	KindCanceled              Kind = "canceled"
	KindNotFound              Kind = "not_found"
)

var (
	ErrValidation            = errors.New("invalid checkout request")
	ErrAuthorizationRequired = errors.New("restricted product requires an authorization reference")
)

// Error is returned by every engine operation that fails.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the client may resubmit the same checkout.
func (e *Error) Retryable() bool {
	return e.Kind == KindConcurrencyConflict
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindPersistence for errors that did
// not come from the engine.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}
