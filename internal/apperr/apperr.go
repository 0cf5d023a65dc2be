// Package apperr defines the failure taxonomy shared by the repository,
// the remote store adapters, and the identity provider adapters.
//
// Every failure that crosses a package boundary is an [*Error] carrying one
// [Kind]. Callers branch on the kind with [KindOf] or errors.Is against the
// sentinel values:
//
//	if errors.Is(err, apperr.ErrNotFound) { ... }
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnknown is reported for errors that carry no Kind.
	KindUnknown Kind = iota
	// KindUnauthenticated means there is no current identity, or the
	// supplied credential was rejected.
	KindUnauthenticated
	// KindNotFound means the document or entity does not exist.
	KindNotFound
	// KindRemoteUnavailable covers network and backend failures.
	KindRemoteUnavailable
	// KindValidationFailed means the input was malformed.
	KindValidationFailed
	// KindPartialDeletion means a multi-step deletion committed some steps
	// and failed on a later one.
	KindPartialDeletion
	// KindConcurrentMutationRejected means a favorite toggle was dropped
	// because another operation for the same key was in flight.
	KindConcurrentMutationRejected
)

// String returns the identifier of the kind, used in logs and metric attributes.
func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindNotFound:
		return "not_found"
	case KindRemoteUnavailable:
		return "remote_unavailable"
	case KindValidationFailed:
		return "validation_failed"
	case KindPartialDeletion:
		return "partial_deletion"
	case KindConcurrentMutationRejected:
		return "concurrent_mutation_rejected"
	default:
		return "unknown"
	}
}

// Message returns the single user-facing message for the kind.
func (k Kind) Message() string {
	switch k {
	case KindUnauthenticated:
		return "Please sign in again to continue."
	case KindNotFound:
		return "The requested item no longer exists."
	case KindRemoteUnavailable:
		return "The service is unreachable. Check your connection and try again."
	case KindValidationFailed:
		return "Some of the entered information is invalid."
	case KindPartialDeletion:
		return "Your account data was removed but your sign-in could not be deleted. You have been signed out."
	case KindConcurrentMutationRejected:
		return "Please wait for the previous change to finish."
	default:
		return "Something went wrong."
	}
}

// Error is a classified failure. Op names the operation that failed
// (e.g. "locations.get"), Err is the optional underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind. This lets the
// sentinel values below match any error of their kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrUnauthenticated            = &Error{Kind: KindUnauthenticated}
	ErrNotFound                   = &Error{Kind: KindNotFound}
	ErrRemoteUnavailable          = &Error{Kind: KindRemoteUnavailable}
	ErrValidationFailed           = &Error{Kind: KindValidationFailed}
	ErrPartialDeletion            = &Error{Kind: KindPartialDeletion}
	ErrConcurrentMutationRejected = &Error{Kind: KindConcurrentMutationRejected}
)

// New returns an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf returns an *Error of the given kind with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Wrap re-labels err with op, keeping its kind. Errors without a kind are
// classified as fallback.
func Wrap(op string, fallback Kind, err error) error {
	if err == nil {
		return nil
	}
	kind := KindOf(err)
	if kind == KindUnknown {
		kind = fallback
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
