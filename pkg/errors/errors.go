// Package errors defines the platform's error taxonomy: sentinel errors for
// every failure class, an AppError carrying an HTTP status, and helpers that
// map errors to status codes and user-facing messages.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrArchiveFormat is fatal to an ingestion run: the upload is not a
	// readable container.
	ErrArchiveFormat = errors.New("invalid archive")
	// ErrOCRFailure is scoped to one archive entry and never aborts a run.
	ErrOCRFailure = errors.New("ocr failed")
	// ErrEntryRead reports an archive entry whose bytes could not be read.
	ErrEntryRead = errors.New("archive entry unreadable")
	// ErrPersistence is fatal to the save step. The prior snapshot is kept.
	ErrPersistence = errors.New("persistence failed")
	// ErrStoreNotFound is returned when no snapshot has ever been saved.
	ErrStoreNotFound = errors.New("snapshot not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrInternal      = errors.New("internal error")
	ErrTimeout       = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrArchiveFormat), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrStoreNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrOCRFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns the message shown to a person for err. Every error,
// including unknown ones, maps to a non-empty string.
func UserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && errors.Is(appErr.Err, ErrInvalidInput) {
		return appErr.Message
	}

	switch {
	case errors.Is(err, ErrArchiveFormat):
		return "Invalid ZIP file."
	case errors.Is(err, ErrInvalidInput):
		return "Invalid request."
	case errors.Is(err, ErrPersistence):
		return "Could not save extracted text."
	case errors.Is(err, ErrStoreNotFound):
		return "No archive has been ingested yet. Upload a .zip file first."
	case errors.Is(err, ErrRateLimited):
		return "Too many uploads, please wait a moment and try again."
	case errors.Is(err, ErrTimeout):
		return "The request took too long to complete."
	default:
		return "Something went wrong while processing the request."
	}
}
