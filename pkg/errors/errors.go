package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors. Validation rejections are deterministic functions of
// input plus committed state; only STORE_UNAVAILABLE is worth a retry.
var (
	ErrInvalidGeometry   = New("INVALID_GEOMETRY", http.StatusBadRequest, "invalid lot geometry")
	ErrConflictingResize = New("CONFLICTING_RESIZE", http.StatusConflict, "resize removes a spot with live bookings")
	ErrInvalidSpot       = New("INVALID_SPOT", http.StatusBadRequest, "spot does not exist or is not parkable")
	ErrSpotDisabled      = New("SPOT_DISABLED", http.StatusBadRequest, "spot is administratively disabled")
	ErrInvalidTimeRange  = New("INVALID_TIME_RANGE", http.StatusBadRequest, "invalid booking time range")
	ErrInvalidRecurrence = New("INVALID_RECURRENCE", http.StatusBadRequest, "invalid recurrence rule")
	ErrScheduleConflict  = New("SCHEDULE_CONFLICT", http.StatusConflict, "booking overlaps an existing schedule")
	ErrNotFound          = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrStoreUnavailable  = New("STORE_UNAVAILABLE", http.StatusServiceUnavailable, "storage backend unavailable")
	ErrValidation        = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal          = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
