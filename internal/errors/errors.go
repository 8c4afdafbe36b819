package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes
// and to the diagnostic category reported back to tool callers.
type Code int

const (
	CodeSuccess    Code = 0
	CodeInternal   Code = 1
	CodeUsage      Code = 2
	CodeRouting    Code = 3
	CodeInput      Code = 4
	CodeValidation Code = 5
	CodeConfig     Code = 6
	CodeAuth       Code = 10
	CodeNetwork    Code = 12
	CodeExecutor   Code = 13
	CodeBlocked    Code = 16
)

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost typed error, or CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	if typed, ok := As(err); ok {
		return typed.Code
	}
	return CodeInternal
}

// TypeName is the snake_case category used in envelopes, metrics and journal rows.
func TypeName(code Code) string {
	switch code {
	case CodeSuccess:
		return "ok"
	case CodeUsage:
		return "usage_error"
	case CodeRouting:
		return "routing_error"
	case CodeInput:
		return "input_error"
	case CodeValidation:
		return "validation_error"
	case CodeConfig:
		return "configuration_error"
	case CodeAuth:
		return "security_error"
	case CodeNetwork:
		return "network_error"
	case CodeExecutor:
		return "executor_error"
	case CodeBlocked:
		return "blocked"
	default:
		return "internal_error"
	}
}

func ExitCode(err error) int {
	return int(CodeOf(err))
}
