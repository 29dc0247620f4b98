package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCodeAndUserMessage(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"archive", fmt.Errorf("opening: %w", ErrArchiveFormat), http.StatusBadRequest, "Invalid ZIP file."},
		{"persistence", fmt.Errorf("%w: disk full", ErrPersistence), http.StatusInternalServerError, "Could not save extracted text."},
		{"no snapshot", ErrStoreNotFound, http.StatusNotFound, "No archive has been ingested yet. Upload a .zip file first."},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "Too many uploads, please wait a moment and try again."},
		{"app error keeps its message", New(ErrInvalidInput, http.StatusRequestEntityTooLarge, "Too big."), http.StatusRequestEntityTooLarge, "Too big."},
		{"app error on other sentinel", New(ErrPersistence, http.StatusServiceUnavailable, "db"), http.StatusServiceUnavailable, "Could not save extracted text."},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Something went wrong while processing the request."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.status {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.status)
			}
			if got := UserMessage(tt.err); got != tt.msg {
				t.Errorf("UserMessage() = %q, want %q", got, tt.msg)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("upload: %w", Newf(ErrInvalidInput, http.StatusBadRequest, "bad %s", "name"))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatal("wrapped AppError does not match its sentinel")
	}
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Message != "bad name" {
		t.Errorf("AppError = %+v", appErr)
	}
}
