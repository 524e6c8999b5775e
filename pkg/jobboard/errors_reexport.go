package jobboard

import jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"

type Error = jberrors.Error
type ErrorCode = jberrors.ErrorCode

const (
	ErrTableNotFound  = jberrors.ErrTableNotFound
	ErrMissingColumns = jberrors.ErrMissingColumns
	ErrAbort          = jberrors.ErrAbort
	ErrBackend        = jberrors.ErrBackend
	ErrAuthorization  = jberrors.ErrAuthorization
	ErrNotConfigured  = jberrors.ErrNotConfigured
	ErrSchema         = jberrors.ErrSchema
	ErrInvalidRequest = jberrors.ErrInvalidRequest
)

func NewError(code ErrorCode, msg string) *Error          { return jberrors.NewError(code, msg) }
func Wrap(code ErrorCode, msg string, cause error) *Error { return jberrors.Wrap(code, msg, cause) }
func IsCode(err error, code ErrorCode) bool               { return jberrors.IsCode(err, code) }
