package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrArticleNotFound       = errors.New("article not found")
	ErrAudioNotFound         = errors.New("audio not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrEmptyContent          = errors.New("no extractable content")
	ErrMalformedDocument     = errors.New("malformed document")
	ErrAlreadyInProgress     = errors.New("synthesis already in progress")
	ErrAudioReady            = errors.New("audio already synthesized")
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)

// Retryable is implemented by error types that classify themselves as
// transient. Retry policies consult it before scheduling another attempt.
type Retryable interface {
	IsRetryable() bool
}

// IsRetryable reports whether any error in the chain declares itself
// retryable. Unclassified errors are treated as permanent.
func IsRetryable(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// AppError attaches an HTTP status to a sentinel for the route layer.
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
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

// HTTPStatusCode maps an error chain to the response status the route layer
// should emit.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrArticleNotFound), errors.Is(err, ErrAudioNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrEmptyContent), errors.Is(err, ErrMalformedDocument):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyInProgress), errors.Is(err, ErrAudioReady):
		return http.StatusConflict
	case errors.Is(err, ErrRepositoryUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
