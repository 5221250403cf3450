package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError carries a stable code for the HTTP and CLI layers alongside its cause
type AppError struct {
	Code    string
	Message string
	Cause   error
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

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func wrap(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Wrap adds context, keeping the code of an AppError already in the chain
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	code := GetCode(err)
	if code == "UNKNOWN" {
		code = CodeInternalError
	}
	return wrap(code, message, err)
}

// Wrapf is Wrap with a formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// GetCode returns the code of the outermost AppError in the chain, or "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeModelState      = "MODEL_STATE_ERROR"
	CodeStorageError    = "STORAGE_ERROR"
)

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// DatabaseError wraps a failed query or statement
func DatabaseError(operation string, cause error) *AppError {
	return wrap(CodeDatabaseError, fmt.Sprintf("%s failed", operation), cause)
}

// ExternalServiceError wraps a failure reaching a cloud backend
func ExternalServiceError(service string, cause error) *AppError {
	return wrap(CodeExternalService, fmt.Sprintf("%s service error", service), cause)
}

// ModelStateError marks an operation the model cannot run in its current state
func ModelStateError(message string, cause error) *AppError {
	return wrap(CodeModelState, message, cause)
}

// StorageError wraps a failed persistence or registry transfer
func StorageError(operation string, cause error) *AppError {
	return wrap(CodeStorageError, fmt.Sprintf("%s failed", operation), cause)
}
