package client

import (
	"errors"
	"fmt"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitConnError    = 3
	ExitAuthError    = 4
)

// ExitError carries the process exit code for a failed command
type ExitError struct {
	Message string
	Code    int
}

// Error implements the error interface
func (e *ExitError) Error() string {
	return e.Message
}

// NewExitError creates a new ExitError
func NewExitError(message string, code int) *ExitError {
	return &ExitError{Message: message, Code: code}
}

// NewUsageError creates a usage error (exit code 2)
func NewUsageError(message string) *ExitError {
	return &ExitError{Message: message, Code: ExitUsageError}
}

// NewConnectionError creates a connection error (exit code 3)
func NewConnectionError(message string) *ExitError {
	return &ExitError{Message: message, Code: ExitConnError}
}

// NewAuthError creates an auth error (exit code 4)
func NewAuthError(message string) *ExitError {
	return &ExitError{Message: message, Code: ExitAuthError}
}

// NewAPIError creates a general API error (exit code 1)
func NewAPIError(message string) *ExitError {
	return &ExitError{Message: message, Code: ExitGeneralError}
}

// ExitCode maps any error to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitGeneralError
}

func configError(format string, args ...interface{}) *ExitError {
	return NewExitError(fmt.Sprintf(format, args...), ExitGeneralError)
}
