package tracker

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"xivtracker/internal/models"
	"xivtracker/internal/storage"
	"xivtracker/internal/xivapi"
)

// ServiceError represents errors from the tracker service with HTTP context
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	// RetryAfter is set on rate limit errors when the budget refills.
	RetryAfter time.Duration
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Error constructors for common service errors

func NewCharacterNotFoundError(id string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeCharacterNotFound,
		Message:    fmt.Sprintf("character '%s' not found", id),
		StatusCode: http.StatusNotFound,
	}
}

func NewInvalidRequestError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewValidationError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeValidation,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

func NewInternalError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewNotFoundError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUpstreamError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeUpstreamError,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

func NewRateLimitError(message string, err *xivapi.RateLimitExceededError) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeRateLimitExceeded,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: err.RetryAfter,
		Err:        err,
	}
}

// storageError maps a storage failure for character id.
func storageError(id, action string, err error) *ServiceError {
	if errors.Is(err, storage.ErrNotFound) {
		return NewCharacterNotFoundError(id)
	}
	return NewInternalError("failed to "+action, err)
}

// upstreamError maps an XIVAPI failure while fetching what.
func upstreamError(what string, err error) *ServiceError {
	var rle *xivapi.RateLimitExceededError
	switch {
	case errors.As(err, &rle):
		return NewRateLimitError("game data API budget exhausted while fetching "+what, rle)
	case errors.Is(err, xivapi.ErrNotFound):
		return NewNotFoundError(what + " not found on the game data API")
	default:
		return NewUpstreamError("failed to fetch "+what+" from the game data API", err)
	}
}
