package utils

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// AppError is an error that knows the HTTP status it maps to.
type AppError struct {
	StatusCode int
	Message    string
	Details    string
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches diagnostic text returned to the client as "details".
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause records the underlying error for logs.
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

func NewBadRequestError(message string) *AppError {
	return &AppError{StatusCode: http.StatusBadRequest, Message: message}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{StatusCode: http.StatusNotFound, Message: message}
}

func NewConflictError(message string) *AppError {
	return &AppError{StatusCode: http.StatusConflict, Message: message}
}

func NewInternalError(message string) *AppError {
	return &AppError{StatusCode: http.StatusInternalServerError, Message: message}
}

func NewUnavailableError(message string) *AppError {
	return &AppError{StatusCode: http.StatusServiceUnavailable, Message: message}
}

// GenerateID returns a new random identifier.
func GenerateID() string {
	return uuid.NewString()
}
