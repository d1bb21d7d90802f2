package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit    Code = "RATE_LIMITED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"

	CodeIllegalTransition   Code = "ILLEGAL_TRANSITION"
	CodeInsufficientStock   Code = "INSUFFICIENT_STOCK"
	CodeInvariantViolation  Code = "INVARIANT_VIOLATION"
	CodeIncompleteSelection Code = "INCOMPLETE_SELECTION"
	CodePartialShipment     Code = "PARTIAL_SHIPMENT"
	CodeMixedTechnician     Code = "MIXED_TECHNICIAN"
	CodeNotBound            Code = "NOT_BOUND"
	CodeEmptySelection      Code = "EMPTY_SELECTION"
)

// Metadata is how a code surfaces over HTTP. Messages of Internal codes
// never leave the process; clients see PublicMessage instead.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	Internal       bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:          {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
	CodeUnauthorized:        {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
	CodeForbidden:           {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
	CodeNotFound:            {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
	CodeConflict:            {HTTPStatus: http.StatusConflict, Retryable: true, PublicMessage: "concurrent modification detected"},
	CodeIdempotency:         {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
	CodeRateLimit:           {HTTPStatus: http.StatusTooManyRequests, Retryable: true, PublicMessage: "too many requests", DetailsAllowed: true},
	CodeInternal:            {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error", Internal: true},
	CodeDependency:          {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true, Internal: true},
	CodeInvariantViolation:  {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Internal: true},
	CodeIllegalTransition:   {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true},
	CodeInsufficientStock:   {HTTPStatus: http.StatusConflict, PublicMessage: "insufficient stock", DetailsAllowed: true},
	CodeIncompleteSelection: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "component selection incomplete", DetailsAllowed: true},
	CodePartialShipment:     {HTTPStatus: http.StatusConflict, Retryable: true, PublicMessage: "some reservations could not be bound", DetailsAllowed: true},
	CodeMixedTechnician:     {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "pickup batch spans multiple technicians", DetailsAllowed: true},
	CodeNotBound:            {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "reservation has no bound components", DetailsAllowed: true},
	CodeEmptySelection:      {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "no reservations eligible"},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is lets errors.Is match any two typed errors sharing a code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// Retryable reports whether the caller may resend the same request.
// Untyped errors are not retryable.
func Retryable(err error) bool {
	typed := As(err)
	return typed != nil && MetadataFor(typed.code).Retryable
}

// Is reports whether err carries a typed error with the given code.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
