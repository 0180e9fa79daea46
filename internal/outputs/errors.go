package outputs

import (
	"errors"
	"fmt"
)

// Error is a coded output error.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Error codes.
const (
	ErrCodeAlreadyActive = "ALREADY_ACTIVE"
	ErrCodeNotActive     = "NOT_ACTIVE"
	ErrCodeBadPath       = "BAD_PATH"
	ErrCodePrepare       = "PREPARE_FAILED"
	ErrCodeStartFailed   = "START_FAILED"
	ErrCodeUnsupported   = "UNSUPPORTED"
)

var (
	// ErrBadPath is the cause of a BAD_PATH error.
	ErrBadPath = errors.New("output directory is missing or not a directory")
	// ErrUnsupported is returned when a primitive does not implement an operation.
	ErrUnsupported = errors.New("operation not supported by output")
)

// NewError creates a coded error.
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
