package slpg

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	BadRequest   ErrorCode = "bad-request"
	NotAvailable ErrorCode = "not-available"
	NotFound     ErrorCode = "not-found"
	UnknownError ErrorCode = "unknown-error"

	MalformedAmount          ErrorCode = "malformed-amount"
	ValidationUnavailable    ErrorCode = "validation-unavailable"
	NotTokenTransaction      ErrorCode = "not-token-transaction"
	NotIssuance              ErrorCode = "not-issuance"
	InvalidLineage           ErrorCode = "invalid-lineage"
	NoTokenOutputs           ErrorCode = "no-token-outputs"
	SpendResolutionAmbiguous ErrorCode = "spend-resolution-ambiguous"
	SpendResolutionFailed    ErrorCode = "spend-resolution-failed"
	ReentrantTraversal       ErrorCode = "reentrant-traversal"
)

type ErrorInfo struct {
	Code    ErrorCode // machine-readble ErrorCode enumeration
	Message string    // human-readable debug message
	Cause   error     // optional underlying error
}

func (e *ErrorInfo) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ErrorInfo) Unwrap() error {
	return e.Cause
}

// Is matches any ErrorInfo with the same Code, so errors.Is can
// find a code anywhere inside a joined error tree.
func (e *ErrorInfo) Is(target error) bool {
	t, ok := target.(*ErrorInfo)
	return ok && t.Code == e.Code
}

func NewErr(code ErrorCode, format string, args ...any) error {
	return &ErrorInfo{Code: code, Message: fmt.Sprintf(format, args...)}
}

func WrapErr(code ErrorCode, cause error, format string, args ...any) error {
	return &ErrorInfo{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func IsNotFoundError(err error) bool {
	return IsError(err, NotFound)
}

func IsError(err error, ofType ErrorCode) bool {
	return errors.Is(err, &ErrorInfo{Code: ofType})
}

// ErrorCodeOf returns the code of the outermost ErrorInfo in err, or UnknownError.
func ErrorCodeOf(err error) ErrorCode {
	var info *ErrorInfo
	if errors.As(err, &info) {
		return info.Code
	}
	return UnknownError
}
