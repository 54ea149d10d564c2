package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types
var (
	ErrBadRequest = errors.New("bad request")
	ErrInternal   = errors.New("internal error")
	ErrValidation = errors.New("validation error")
	ErrDataAccess = errors.New("data access error")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       "BAD_REQUEST",
		HTTPStatus: http.StatusBadRequest,
	}
}

// Validation creates a validation error with field details
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// Internal creates an internal error
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	if appErr, ok := err.(*AppError); ok {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// DataAccessError is a failure reading report input from a data store.
// Message, Severity and State are copied from the driver error when the
// driver exposes them (SQL Server class/state, Postgres severity/SQLSTATE).
type DataAccessError struct {
	Op       string `json:"op"`
	Source   string `json:"source"`
	Message  string `json:"message"`
	Severity string `json:"severity,omitempty"`
	State    string `json:"state,omitempty"`
	Code     string `json:"code,omitempty"`
	Err      error  `json:"-"`
}

func (e *DataAccessError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Source, e.Op, e.Message)
	if e.Severity != "" || e.State != "" {
		msg += fmt.Sprintf(" (severity=%s state=%s)", e.Severity, e.State)
	}
	return msg
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrDataAccess) match any DataAccessError.
func (e *DataAccessError) Is(target error) bool {
	return target == ErrDataAccess
}

// DataAccess wraps err as a DataAccessError. The caller fills Severity,
// State and Code when it can extract them from a driver-specific type.
func DataAccess(source, op string, err error) *DataAccessError {
	return &DataAccessError{
		Op:      op,
		Source:  source,
		Message: err.Error(),
		Err:     err,
	}
}

// AsDataAccess reports whether err carries a DataAccessError.
func AsDataAccess(err error) (*DataAccessError, bool) {
	var dae *DataAccessError
	if errors.As(err, &dae) {
		return dae, true
	}
	return nil, false
}

// FromDataAccess converts a data access failure into an HTTP-facing error.
// The upstream store is at fault, so it maps to 502.
func FromDataAccess(dae *DataAccessError) *AppError {
	details := map[string]string{
		"source": dae.Source,
		"op":     dae.Op,
	}
	if dae.Severity != "" {
		details["severity"] = dae.Severity
	}
	if dae.State != "" {
		details["state"] = dae.State
	}
	if dae.Code != "" {
		details["code"] = dae.Code
	}
	return &AppError{
		Err:        dae,
		Message:    dae.Message,
		Code:       "DATA_ACCESS_ERROR",
		HTTPStatus: http.StatusBadGateway,
		Details:    details,
	}
}
