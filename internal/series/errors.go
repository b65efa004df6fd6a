package series

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a delete targets a date with no entry.
	ErrNotFound = errors.New("entry not found")

	// ErrStaleSession is returned when a load finished after the session it
	// was started under had ended. Its result is discarded.
	ErrStaleSession = errors.New("session changed while request was in flight")
)

// Provider operations reported in ProviderError.Op.
const (
	OpFetch  = "fetch"
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Kind classifies errors for the notification channel.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindProvider   Kind = "provider"
	KindInternal   Kind = "internal"
)

// ValidationError rejects user input before any persistence I/O.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// AuthError wraps an identity provider sign-in failure.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("sign-in failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProviderError wraps a persistence provider failure for one operation.
type ProviderError struct {
	Op   string
	Date Date
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.Date, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindOf reports which notification kind err belongs to.
func KindOf(err error) Kind {
	var (
		verr *ValidationError
		aerr *AuthError
		perr *ProviderError
	)
	switch {
	case errors.As(err, &verr):
		return KindValidation
	case errors.As(err, &aerr):
		return KindAuth
	case errors.As(err, &perr), errors.Is(err, ErrStaleSession):
		return KindProvider
	default:
		return KindInternal
	}
}
