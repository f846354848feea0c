package rpc

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies an RPC failure so clients can map it back to a sentinel.
type Code string

const (
	CodeUnknownMethod Code = "unknown_method"
	CodeInvalid       Code = "invalid_argument"
	CodeNotFound      Code = "not_found"
	CodeUnsupported   Code = "unsupported"
	CodeDeadline      Code = "deadline_exceeded"
	CodeInternal      Code = "internal"
)

// Error is a coded RPC error. Handlers return it to choose the code; any
// other error is sent as CodeInternal.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Code, e.Message)
}

func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of an *Error in err's chain, or "".
func CodeOf(err error) Code {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return ""
}

func asError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeDeadline, Message: err.Error()}
	}
	return &Error{Code: CodeInternal, Message: err.Error()}
}
