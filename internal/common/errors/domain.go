package commonerrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCategory string

const (
	CategoryValidation   ErrorCategory = "VALIDATION"
	CategoryAuth         ErrorCategory = "AUTH"
	CategoryNotFound     ErrorCategory = "NOT_FOUND"
	CategoryConflict     ErrorCategory = "CONFLICT"
	CategoryUnauthorized ErrorCategory = "UNAUTHORIZED"
	CategoryInternal     ErrorCategory = "INTERNAL"
	CategoryExternal     ErrorCategory = "EXTERNAL"
)

type DomainError interface {
	error
	Code() string
	Category() ErrorCategory
	HTTPStatus() int
	Message() string
	Unwrap() error
	WithCause(cause error) DomainError
}

type domainError struct {
	code     string
	category ErrorCategory
	status   int
	message  string
	cause    error
}

func (e *domainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *domainError) Code() string {
	return e.code
}

func (e *domainError) Category() ErrorCategory {
	return e.category
}

func (e *domainError) HTTPStatus() int {
	return e.status
}

func (e *domainError) Message() string {
	return e.message
}

func (e *domainError) Unwrap() error {
	return e.cause
}

func (e *domainError) WithCause(cause error) DomainError {
	return &domainError{
		code:     e.code,
		category: e.category,
		status:   e.status,
		message:  e.message,
		cause:    cause,
	}
}

func NewDomainError(code string, category ErrorCategory, status int, message string) DomainError {
	return &domainError{
		code:     code,
		category: category,
		status:   status,
		message:  message,
	}
}

func IsDomainError(err error) bool {
	var de DomainError
	return errors.As(err, &de)
}

func AsDomainError(err error) (DomainError, bool) {
	var de DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

var (
	ErrMissingRequiredEnv = NewDomainError(
		"MISSING_REQUIRED_ENV",
		CategoryValidation,
		http.StatusInternalServerError,
		"missing required environment variable",
	)

	ErrInvalidJWTSecret = NewDomainError(
		"INVALID_JWT_SECRET",
		CategoryValidation,
		http.StatusInternalServerError,
		"JWT_SECRET must be at least 32 bytes",
	)

	ErrInvalidToken = NewDomainError(
		"INVALID_TOKEN",
		CategoryUnauthorized,
		http.StatusUnauthorized,
		"token is not valid",
	)

	ErrUserNotConnected = NewDomainError(
		"USER_NOT_CONNECTED",
		CategoryNotFound,
		http.StatusNotFound,
		"user not connected",
	)

	ErrInvalidPayload = NewDomainError(
		"INVALID_PAYLOAD",
		CategoryValidation,
		http.StatusBadRequest,
		"invalid message payload",
	)

	ErrUnknownMessageType = NewDomainError(
		"UNKNOWN_MESSAGE_TYPE",
		CategoryValidation,
		http.StatusBadRequest,
		"unknown message type",
	)

	ErrMarshalError = NewDomainError(
		"MARSHAL_ERROR",
		CategoryInternal,
		http.StatusInternalServerError,
		"failed to marshal message",
	)

	ErrSendTimeout = NewDomainError(
		"SEND_TIMEOUT",
		CategoryInternal,
		http.StatusServiceUnavailable,
		"send to client timed out",
	)
)
