package queue

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed request so callers can map it to a response code
type ErrorKind string

const (
	KindQueueFull          ErrorKind = "queue_full"
	KindTimeout            ErrorKind = "timeout"
	KindCanceledByCaller   ErrorKind = "canceled_by_caller"
	KindMalformedResponse  ErrorKind = "malformed_response"
	KindDuplicateRequestID ErrorKind = "duplicate_request_id"
	KindRouteNotFound      ErrorKind = "route_not_found"
)

// StatusClientClosedRequest is the non-standard code used when the caller went away
const StatusClientClosedRequest = 499

// Code returns the HTTP-style status code reported to callers for kind
func (k ErrorKind) Code() int {
	switch k {
	case KindQueueFull:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindCanceledByCaller:
		return StatusClientClosedRequest
	case KindMalformedResponse:
		return http.StatusBadGateway
	case KindRouteNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is returned by the broker and dispatcher for every request failure
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrTimeout) works
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Code returns the status code for the error's kind
func (e *Error) Code() int {
	return e.Kind.Code()
}

// Sentinels for errors.Is comparisons
var (
	ErrQueueFull          = &Error{Kind: KindQueueFull, Message: "queue is full"}
	ErrTimeout            = &Error{Kind: KindTimeout, Message: "the request timed out"}
	ErrCanceledByCaller   = &Error{Kind: KindCanceledByCaller, Message: "canceled by caller"}
	ErrMalformedResponse  = &Error{Kind: KindMalformedResponse, Message: "null json returned from backend"}
	ErrDuplicateRequestID = &Error{Kind: KindDuplicateRequestID, Message: "unable to add pending response id"}
	ErrRouteNotFound      = &Error{Kind: KindRouteNotFound, Message: "route not found"}
)

// NewError creates an Error of kind wrapping cause
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf extracts the ErrorKind from err
func KindOf(err error) (ErrorKind, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return "", false
}

func newKindError(sentinel *Error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message}
}
