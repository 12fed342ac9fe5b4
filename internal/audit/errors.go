package audit

import (
	"errors"
	"fmt"

	"github.com/roach88/chronicle/internal/datastore"
)

// Code categorizes an audit error.
type Code string

const (
	// CodeInvalidArgument indicates a missing or malformed input, such as an
	// empty account or tag label.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodePreconditionFailed indicates an operation ran out of order: an audit
	// built from a stale or absent data hash, an account that cannot be
	// resolved yet, or a write outside a transaction.
	CodePreconditionFailed Code = "PRECONDITION_FAILED"

	// CodeNotImplemented indicates a record type lacks a required capability.
	// It is a programming error and never retried.
	CodeNotImplemented Code = "NOT_IMPLEMENTED"
)

// Error is returned by the audit, tag and engine packages for failures that
// originate in this module. Store errors are passed through unchanged.
type Error struct {
	Code    Code
	Message string

	// Key is the affected record key path, if known.
	Key string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (key=%s)", e.Code, e.Message, e.Key)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds an *Error for key (which may be nil).
func Errorf(code Code, key *datastore.Key, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Key: key.String()}
}

func hasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsInvalidArgument reports whether err wraps a CodeInvalidArgument error.
func IsInvalidArgument(err error) bool { return hasCode(err, CodeInvalidArgument) }

// IsPreconditionFailed reports whether err wraps a CodePreconditionFailed error.
func IsPreconditionFailed(err error) bool { return hasCode(err, CodePreconditionFailed) }

// IsNotImplemented reports whether err wraps a CodeNotImplemented error.
func IsNotImplemented(err error) bool { return hasCode(err, CodeNotImplemented) }

func isNotFound(err error) bool {
	return errors.Is(err, datastore.ErrNotFound)
}
