package errors

import (
	"errors"
	"fmt"
)

// Code classifies a pipeline failure. Only CodeValidation and CodeOracleFailure
// abort a request; the remaining codes degrade to partial results.
type Code int

const (
	CodeInternal Code = iota + 1
	CodeValidation
	CodeOracleFailure
	CodeStoreUnavailable
	CodeQuoteFailure
)

func (c Code) String() string {
	switch c {
	case CodeValidation:
		return "validation_error"
	case CodeOracleFailure:
		return "oracle_failure"
	case CodeStoreUnavailable:
		return "store_unavailable"
	case CodeQuoteFailure:
		return "quote_failure"
	default:
		return "internal"
	}
}

// Error is a typed error that carries a stable code.
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

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
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

// Is reports whether any error in err's chain carries code.
func Is(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// CodeOf returns the code of err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}
