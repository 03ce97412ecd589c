package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed failure taxonomy shared by the client core and the
// gateway. Every failure path resolves to exactly one kind; provider faults
// that match no known pattern fall through to KindUnknown with the raw detail
// preserved for diagnostics.
type ErrorKind string

const (
	// Client-local discipline violations.
	KindAlreadyInFlight ErrorKind = "ALREADY_IN_FLIGHT"
	KindNoPriorUserTurn ErrorKind = "NO_PRIOR_USER_TURN"

	// Protocol and attachment validation.
	KindMissingMessage ErrorKind = "MISSING_MESSAGE"
	KindInvalidType    ErrorKind = "INVALID_TYPE"
	KindTooLarge       ErrorKind = "TOO_LARGE"

	// External model boundary.
	KindModelUnavailable   ErrorKind = "MODEL_UNAVAILABLE"
	KindInvalidCredentials ErrorKind = "INVALID_CREDENTIALS"
	KindQuotaExceeded      ErrorKind = "QUOTA_EXCEEDED"
	KindAttachmentRejected ErrorKind = "ATTACHMENT_REJECTED"
	KindUnknown            ErrorKind = "UNKNOWN"
)

// ParseErrorKind maps a wire error string back to an ErrorKind. Unrecognized
// strings become KindUnknown rather than a new category.
func ParseErrorKind(s string) ErrorKind {
	switch ErrorKind(s) {
	case KindAlreadyInFlight, KindNoPriorUserTurn, KindMissingMessage,
		KindInvalidType, KindTooLarge, KindModelUnavailable,
		KindInvalidCredentials, KindQuotaExceeded, KindAttachmentRejected:
		return ErrorKind(s)
	}
	return KindUnknown
}

// Error is a classified failure. Reason is a stable machine-readable token;
// Err carries the underlying cause, preserved as an opaque diagnostic only.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError constructs a classified Error.
func NewError(kind ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf extracts the ErrorKind from err, or KindUnknown when err carries no
// classification.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
