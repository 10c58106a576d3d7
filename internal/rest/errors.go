package rest

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed call: it decides whether the controller
// moves on to the next candidate base, invalidates a stored session, or
// surfaces the failure to the user.
type ErrorKind int

const (
	// KindNetwork: the request never completed.
	KindNetwork ErrorKind = iota
	// KindRejected: the service answered non-2xx with a reason.
	KindRejected
	// KindMalformed: the body could not be parsed as structured data.
	KindMalformed
)

// APIError is the error type returned by all Client calls.
type APIError struct {
	Kind   ErrorKind
	Status int    // HTTP status for KindRejected, zero otherwise
	Detail string // server-supplied reason or generic message
	Err    error  // underlying transport or decode error
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindRejected:
		return fmt.Sprintf("chat service error %d: %s", e.Status, e.Detail)
	case KindMalformed:
		return fmt.Sprintf("chat service returned an unreadable response: %v", e.Err)
	default:
		return fmt.Sprintf("chat service unreachable: %v", e.Err)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func kindIs(err error, kind ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// IsNetwork reports whether the request never completed.
func IsNetwork(err error) bool { return kindIs(err, KindNetwork) }

// IsRejected reports whether the service answered with a non-2xx status.
func IsRejected(err error) bool { return kindIs(err, KindRejected) }

// IsMalformed reports whether a 2xx body failed to parse.
func IsMalformed(err error) bool { return kindIs(err, KindMalformed) }

// IsAuthRejected reports whether the service rejected the caller's
// credentials. During a resume probe this means the stored room or token is
// no longer valid.
func IsAuthRejected(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Kind == KindRejected &&
		(apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden)
}
