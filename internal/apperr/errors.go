package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeUnknown                Code = "UNKNOWN"
	CodeUnauthenticated        Code = "UNAUTHENTICATED"
	CodeForbidden              Code = "FORBIDDEN"
	CodeInvalidMessage         Code = "INVALID_MESSAGE"
	CodeDeliveryFailed         Code = "DELIVERY_FAILED"
	CodeRoutingDegraded        Code = "ROUTING_DEGRADED"
	CodeDispatchPartialFailure Code = "DISPATCH_PARTIAL_FAILURE"
	CodeInvalidArgument        Code = "INVALID_ARGUMENT"
	CodeNotFound               Code = "NOT_FOUND"
	CodeConflict               Code = "CONFLICT"
	CodeRateLimited            Code = "RATE_LIMITED"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on code so errors.Is(err, apperr.ErrInvalidMessage) holds for any
// InvalidMessage error regardless of message text.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthenticated        = &Error{Code: CodeUnauthenticated}
	ErrForbidden              = &Error{Code: CodeForbidden}
	ErrInvalidMessage         = &Error{Code: CodeInvalidMessage}
	ErrDeliveryFailed         = &Error{Code: CodeDeliveryFailed}
	ErrRoutingDegraded        = &Error{Code: CodeRoutingDegraded}
	ErrDispatchPartialFailure = &Error{Code: CodeDispatchPartialFailure}
)

func Unauthenticated(msg string, cause error) error {
	return Wrap(CodeUnauthenticated, msg, cause)
}

func Forbidden(msg string) error {
	return New(CodeForbidden, msg)
}

func InvalidMessage(msg string) error {
	return New(CodeInvalidMessage, msg)
}

func InvalidArgument(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func Conflict(msg string) error {
	return New(CodeConflict, msg)
}

func RateLimited(msg string) error {
	return New(CodeRateLimited, msg)
}

func DeliveryFailed(cause error) error {
	return Wrap(CodeDeliveryFailed, "message could not be stored", cause)
}

func RoutingDegraded(step string, cause error) error {
	return Wrap(CodeRoutingDegraded, step, cause)
}

func DispatchPartialFailure(failed, total int, cause error) error {
	return Wrap(CodeDispatchPartialFailure, fmt.Sprintf("%d of %d push chunks failed", failed, total), cause)
}

// CodeOf returns the taxonomy code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// MessageOf returns the client-safe message for err. Causes are never exposed.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidMessage, CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
