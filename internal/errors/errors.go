// Package errors provides centralized error types and exit codes for the bot.
package errors

import (
	"errors"
	"fmt"
)

// Exit codes for different error categories.
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitConfigError     = 2
	ExitValidationError = 3
	ExitSpawnError      = 4
	ExitStreamError     = 5
	ExitTransportError  = 6
	ExitStateError      = 7
)

// BotError is the base error type for all bot-specific errors.
type BotError struct {
	Code    int
	Message string
	Cause   error
}

// Error returns the error message, including the cause if present.
func (e *BotError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error.
func (e *BotError) Unwrap() error {
	return e.Cause
}

func newError(code int, msg string, cause error) *BotError {
	return &BotError{
		Code:    code,
		Message: msg,
		Cause:   cause,
	}
}

// NewConfigError creates a new configuration error.
func NewConfigError(msg string) *BotError {
	return newError(ExitConfigError, msg, nil)
}

// NewConfigErrorWithCause creates a new configuration error with an underlying cause.
func NewConfigErrorWithCause(msg string, cause error) *BotError {
	return newError(ExitConfigError, msg, cause)
}

// NewValidationError creates a new validation error.
func NewValidationError(msg string) *BotError {
	return newError(ExitValidationError, msg, nil)
}

// NewValidationErrorWithCause creates a new validation error with an underlying cause.
func NewValidationErrorWithCause(msg string, cause error) *BotError {
	return newError(ExitValidationError, msg, cause)
}

// NewSpawnError creates an error for an external process that could not be started.
func NewSpawnError(msg string) *BotError {
	return newError(ExitSpawnError, msg, nil)
}

// NewSpawnErrorWithCause creates a spawn error with an underlying cause.
func NewSpawnErrorWithCause(msg string, cause error) *BotError {
	return newError(ExitSpawnError, msg, cause)
}

// NewStreamError creates an error for an unexpected failure while reading process output.
func NewStreamError(msg string) *BotError {
	return newError(ExitStreamError, msg, nil)
}

// NewStreamErrorWithCause creates a stream error with an underlying cause.
func NewStreamErrorWithCause(msg string, cause error) *BotError {
	return newError(ExitStreamError, msg, cause)
}

// NewTransportError creates a chat transport error.
func NewTransportError(msg string) *BotError {
	return newError(ExitTransportError, msg, nil)
}

// NewTransportErrorWithCause creates a chat transport error with an underlying cause.
func NewTransportErrorWithCause(msg string, cause error) *BotError {
	return newError(ExitTransportError, msg, cause)
}

// NewStateError creates a persistence error.
func NewStateError(msg string) *BotError {
	return newError(ExitStateError, msg, nil)
}

// NewStateErrorWithCause creates a persistence error with an underlying cause.
func NewStateErrorWithCause(msg string, cause error) *BotError {
	return newError(ExitStateError, msg, cause)
}

// NewGeneralError creates a new general error.
func NewGeneralError(msg string) *BotError {
	return newError(ExitGeneralError, msg, nil)
}

// NewGeneralErrorWithCause creates a new general error with an underlying cause.
func NewGeneralErrorWithCause(msg string, cause error) *BotError {
	return newError(ExitGeneralError, msg, cause)
}

func hasCode(err error, code int) bool {
	var botErr *BotError
	if errors.As(err, &botErr) {
		return botErr.Code == code
	}
	return false
}

// IsConfigError checks if an error is a configuration error.
func IsConfigError(err error) bool {
	return hasCode(err, ExitConfigError)
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	return hasCode(err, ExitValidationError)
}

// IsSpawnError checks if an error is a spawn error.
func IsSpawnError(err error) bool {
	return hasCode(err, ExitSpawnError)
}

// IsStreamError checks if an error is a stream error.
func IsStreamError(err error) bool {
	return hasCode(err, ExitStreamError)
}

// IsTransportError checks if an error is a chat transport error.
func IsTransportError(err error) bool {
	return hasCode(err, ExitTransportError)
}

// IsStateError checks if an error is a persistence error.
func IsStateError(err error) bool {
	return hasCode(err, ExitStateError)
}

// GetExitCode returns the exit code for an error.
// If the error is not a BotError, it returns ExitGeneralError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var botErr *BotError
	if errors.As(err, &botErr) {
		return botErr.Code
	}
	return ExitGeneralError
}
