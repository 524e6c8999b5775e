package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode is the structured code surfaced to callers in a result's error field.
type ErrorCode string

const (
	ErrTableNotFound  ErrorCode = "TABLE_NOT_FOUND"
	ErrMissingColumns ErrorCode = "MISSING_COLUMNS"
	ErrAbort          ErrorCode = "AbortError"
	ErrBackend        ErrorCode = "backend"
	ErrAuthorization  ErrorCode = "authorization"
	ErrNotConfigured  ErrorCode = "not_configured"
	ErrSchema         ErrorCode = "schema"
	ErrInvalidRequest ErrorCode = "invalid_request"
)

// Error is the ErrorInfo carried by read and write results.
type Error struct {
	Code        ErrorCode `json:"code"`
	Msg         string    `json:"message"`
	Columns     []string  `json:"columns,omitempty"`
	BackendCode string    `json:"backendCode,omitempty"`
	Details     string    `json:"details,omitempty"`
	Hint        string    `json:"hint,omitempty"`
	Cause       error     `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	base := fmt.Sprintf("%s: %s", e.Code, e.Msg)
	if len(e.Columns) > 0 {
		base = fmt.Sprintf("%s (columns=%s)", base, strings.Join(e.Columns, ","))
	}
	// Info copies a foreign cause's text into Msg; don't print it twice.
	if e.Cause != nil && e.Cause.Error() != e.Msg {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(code ErrorCode, msg string) *Error { return &Error{Code: code, Msg: msg} }
func Wrap(code ErrorCode, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Cause: cause}
}

func TableNotFound(table string) *Error {
	return &Error{Code: ErrTableNotFound, Msg: fmt.Sprintf("table %q not found", table)}
}

// MissingColumns names the logical keys that no physical column could back.
func MissingColumns(keys []string) *Error {
	cols := append([]string(nil), keys...)
	return &Error{Code: ErrMissingColumns, Msg: "required fields could not be resolved", Columns: cols}
}

func Aborted(cause error) *Error {
	return &Error{Code: ErrAbort, Msg: "operation aborted", Cause: cause}
}

func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Info returns err as an *Error, wrapping foreign errors as backend passthrough.
func Info(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return Wrap(ErrBackend, err.Error(), err)
}
