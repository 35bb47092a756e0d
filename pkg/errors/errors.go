// Package errors provides structured error handling for multisql with
// error categorization, context details and stack capture.
//
// # Overview
//
// Every failure that can happen while a unit of work runs is classified by an
// ErrorType. The four unit-level failure classes are:
//
//   - ErrorTypeDriverLoad: the configured driver name cannot be resolved
//   - ErrorTypeDriverRegistration: the driver rejects the connection string
//   - ErrorTypeExecution: the connection cannot be opened or the statement fails
//   - ErrorTypeRowRead: the cursor fails after the statement started returning rows
//
// Unit readers convert these into error records; they never escape to the job.
// Configuration errors (ErrorTypeConfig) are the only fatal class.
//
// # Basic Usage
//
//	rows, err := conn.QueryContext(ctx, stmt)
//	if err != nil {
//	    return errors.Wrap(err, errors.ErrorTypeExecution, "failed to execute statement").
//	        WithDetail("unit", unit.ID)
//	}
//
//	class := errors.TypeOf(err) // "execution"
//
// # Thread Safety
//
// Error instances are not safe for concurrent modification. Add details before
// sharing an error across goroutines.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of an error. For unit failures it is the
// failure class reported on error records.
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors and any error that
	// was not produced by this package
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeConnection represents connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeCancelled represents work stopped by context cancellation
	ErrorTypeCancelled ErrorType = "cancelled"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeDriverLoad means the driver name could not be resolved
	ErrorTypeDriverLoad ErrorType = "driver_load"
	// ErrorTypeDriverRegistration means the driver rejected the connection string
	ErrorTypeDriverRegistration ErrorType = "driver_registration"
	// ErrorTypeExecution means the statement failed or the connection could not open
	ErrorTypeExecution ErrorType = "execution"
	// ErrorTypeRowRead means the cursor failed after the unit started streaming
	ErrorTypeRowRead ErrorType = "row_read"
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: categorizes the error (the failure class for unit errors)
//   - Message: human-readable description
//   - Cause: the underlying error
//   - Details: key-value pairs with additional context
//   - Stack: call stack at the point of creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface, returning the type, message and
// cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. It can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If err is already a structured Error its stack
// is kept. Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return Wrap(err, errType, fmt.Sprintf(format, args...))
}

// IsType checks if the outermost structured error in the chain has the
// given type.
func IsType(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}

// TypeOf returns the type of the outermost structured error in the chain.
// Errors not produced by this package are reported as ErrorTypeInternal.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// IsUnitFailure reports whether the error belongs to one of the classes a
// unit reader converts into an error record.
func IsUnitFailure(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeDriverLoad, ErrorTypeDriverRegistration, ErrorTypeExecution, ErrorTypeRowRead:
		return true
	default:
		return false
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
