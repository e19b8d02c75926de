// Package errors defines the coded error taxonomy shared by all botconsole
// components. Remote-reported business errors, transport failures, and local
// storage failures each map to a distinct code so the application layer can
// decide how to present them without inspecting error strings.
package errors

import (
	"errors"
	"fmt"
)

// Standard error codes for the application.
const (
	CodeUnknown              = "UNKNOWN"
	CodeValidation           = "VALIDATION"
	CodeRegistrationRejected = "REGISTRATION_REJECTED"
	CodeNotFound             = "NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeNetwork              = "NETWORK"
	CodeStorage              = "STORAGE"
)

// ApplicationError is the interface that all our custom errors implement.
type ApplicationError interface {
	error
	Code() string
	Unwrap() error
}

// Error represents a basic application error.
type Error struct {
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the application error code carried by err,
// or CodeUnknown if it doesn't carry one.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}

	return CodeUnknown
}

// Specific error types and constructors

// ValidationError reports locally detectable malformed input. It is raised
// before any network call is made.
type ValidationError struct {
	base Error
}

func (e *ValidationError) Error() string {
	return e.base.Error()
}

func (e *ValidationError) Code() string {
	return e.base.Code()
}

func (e *ValidationError) Unwrap() error {
	return e.base.Unwrap()
}

func NewValidationError(message string, cause error) error {
	return &ValidationError{
		base: Error{
			code:    CodeValidation,
			message: message,
			err:     cause,
		},
	}
}

// RegistrationRejectedError reports that the registry refused a bot token,
// either as invalid or as already claimed.
type RegistrationRejectedError struct {
	base Error
}

func (e *RegistrationRejectedError) Error() string {
	return e.base.Error()
}

func (e *RegistrationRejectedError) Code() string {
	return e.base.Code()
}

func (e *RegistrationRejectedError) Unwrap() error {
	return e.base.Unwrap()
}

func NewRegistrationRejectedError(message string, cause error) error {
	return &RegistrationRejectedError{
		base: Error{
			code:    CodeRegistrationRejected,
			message: message,
			err:     cause,
		},
	}
}

// NotFoundError reports that the registry has no matching bot for the
// identity that made the call.
type NotFoundError struct {
	base Error
}

func (e *NotFoundError) Error() string {
	return e.base.Error()
}

func (e *NotFoundError) Code() string {
	return e.base.Code()
}

func (e *NotFoundError) Unwrap() error {
	return e.base.Unwrap()
}

func NewNotFoundError(message string, cause error) error {
	return &NotFoundError{
		base: Error{
			code:    CodeNotFound,
			message: message,
			err:     cause,
		},
	}
}

// UnauthorizedError reports that the identity does not own the requested bot.
type UnauthorizedError struct {
	base Error
}

func (e *UnauthorizedError) Error() string {
	return e.base.Error()
}

func (e *UnauthorizedError) Code() string {
	return e.base.Code()
}

func (e *UnauthorizedError) Unwrap() error {
	return e.base.Unwrap()
}

func NewUnauthorizedError(message string) error {
	return &UnauthorizedError{
		base: Error{
			code:    CodeUnauthorized,
			message: message,
		},
	}
}

// NetworkError reports a transport-level failure: connection errors,
// timeouts, and malformed or unexpected responses.
type NetworkError struct {
	base Error
}

func (e *NetworkError) Error() string {
	return e.base.Error()
}

func (e *NetworkError) Code() string {
	return e.base.Code()
}

func (e *NetworkError) Unwrap() error {
	return e.base.Unwrap()
}

func NewNetworkError(message string, cause error) error {
	return &NetworkError{
		base: Error{
			code:    CodeNetwork,
			message: message,
			err:     cause,
		},
	}
}

// StorageError reports that the durable local store for the device identity
// is unavailable. The session degrades to an unidentified device.
type StorageError struct {
	base Error
}

func (e *StorageError) Error() string {
	return e.base.Error()
}

func (e *StorageError) Code() string {
	return e.base.Code()
}

func (e *StorageError) Unwrap() error {
	return e.base.Unwrap()
}

func NewStorageError(message string, cause error) error {
	return &StorageError{
		base: Error{
			code:    CodeStorage,
			message: message,
			err:     cause,
		},
	}
}
