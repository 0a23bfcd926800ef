package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeLastOwner           Code = "LAST_OWNER_VIOLATION"
	CodeNotAMember          Code = "NOT_A_MEMBER"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeDuplicateMembership Code = "DUPLICATE_MEMBERSHIP"
	CodeStateConflict       Code = "STATE_CONFLICT"
	CodeRateLimit           Code = "RATE_LIMIT_EXCEEDED"
	CodePayloadTooLarge     Code = "PAYLOAD_TOO_LARGE"
	CodeInternal            Code = "INTERNAL_ERROR"
	CodeDependency          Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code surfaces over HTTP. ExposeMessage lets the
// caller's message replace PublicMessage in the response body.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	ExposeMessage  bool
	DetailsAllowed bool
}

const (
	retryable = 1 << iota
	exposeMessage
	detailsAllowed
)

func meta(status int, public string, flags int) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		ExposeMessage:  flags&exposeMessage != 0,
		DetailsAllowed: flags&detailsAllowed != 0,
	}
}

// LAST_OWNER_VIOLATION and NOT_A_MEMBER share 403 with FORBIDDEN but keep
// their own code so clients can branch on them.
var metadataByCode = map[Code]Metadata{
	CodeValidation:          meta(http.StatusBadRequest, "validation failed", exposeMessage|detailsAllowed),
	CodeUnauthorized:        meta(http.StatusUnauthorized, "authentication required", exposeMessage),
	CodeForbidden:           meta(http.StatusForbidden, "access denied", exposeMessage),
	CodeLastOwner:           meta(http.StatusForbidden, "organization must keep at least one owner", exposeMessage),
	CodeNotAMember:          meta(http.StatusForbidden, "not a member of this organization", exposeMessage),
	CodeNotFound:            meta(http.StatusNotFound, "resource not found", exposeMessage),
	CodeConflict:            meta(http.StatusConflict, "conflict detected", exposeMessage),
	CodeDuplicateMembership: meta(http.StatusConflict, "membership already exists", exposeMessage|detailsAllowed),
	CodeStateConflict:       meta(http.StatusUnprocessableEntity, "state transition disallowed", exposeMessage|detailsAllowed),
	CodeRateLimit:           meta(http.StatusTooManyRequests, "rate limit exceeded", exposeMessage),
	CodePayloadTooLarge:     meta(http.StatusRequestEntityTooLarge, "request body too large", exposeMessage),
	CodeInternal:            meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:          meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|detailsAllowed),
}

func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded failure. The code decides the HTTP mapping; the cause is
// only ever logged.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
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

// PublicMessage is the text safe to return to clients.
func (e *Error) PublicMessage() string {
	m := MetadataFor(e.Code())
	if m.ExposeMessage && e.Message() != "" {
		return e.message
	}
	return m.PublicMessage
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches any *Error with the same code, so errors.Is(err,
// New(CodeLastOwner, "")) works across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !stdErrors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return e.code == t.code
}

func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
