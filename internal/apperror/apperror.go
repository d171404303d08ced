// Package apperror defines the error classes shared by executors, the service
// layer and the HTTP handlers.
//
// There are three classes worth telling apart:
//   - configuration errors, raised when an executor is constructed with options
//     it cannot honour
//   - infrastructure errors, raised when the environment cannot run code at all
//     (interpreter missing, process cannot be spawned, container daemon down)
//   - program errors, which are NOT Go errors: they are failures of the executed
//     code and travel inside ExecutionResult.Stderr
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("invalid configuration")
	ErrInfrastructure = errors.New("infrastructure failure")
	ErrUnauthorized   = errors.New("unauthorized")
)

type AppError struct {
	Err     error  // sentinel class
	Message string // human-readable error message
	Field   string // optional: field or option causing the error
	Cause   error  // optional: underlying error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the sentinel class and the underlying cause so that
// errors.Is works for either.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// InvalidConfiguration reports an executor option that the named executor
// cannot support. It is returned from constructors, never from Execute.
func InvalidConfiguration(executor, option string) *AppError {
	return &AppError{
		Err:     ErrConfiguration,
		Message: fmt.Sprintf("cannot set `%s=true` in %s", option, executor),
		Field:   option,
	}
}

// Infrastructure wraps an environment failure that prevented the named
// executor from running code at all.
func Infrastructure(executor string, cause error) *AppError {
	return &AppError{
		Err:     ErrInfrastructure,
		Message: fmt.Sprintf("%s: cannot execute code", executor),
		Cause:   cause,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}
