// Package apperr defines the error taxonomy shared by every service layer.
// Errors carry a stable wire code and the HTTP status the API surface maps
// them to; callers classify with errors.As.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code exposed on the wire.
type Code string

const (
	CodeInvalidRequest        Code = "INVALID_REQUEST"
	CodeProjectNotFound       Code = "PROJECT_NOT_FOUND"
	CodeCommitNotFound        Code = "COMMIT_NOT_FOUND"
	CodeEvalRunNotFound       Code = "EVAL_RUN_NOT_FOUND"
	CodeBaselineNotSet        Code = "BASELINE_NOT_SET"
	CodeOpenAITimeout         Code = "OPENAI_TIMEOUT"
	CodeOpenAIUpstreamError   Code = "OPENAI_UPSTREAM_ERROR"
	CodeOpenAISafetyRejection Code = "OPENAI_SAFETY_REJECTION"
	CodeStorageWriteFailed    Code = "STORAGE_WRITE_FAILED"
	CodeComparePipelineFailed Code = "COMPARE_PIPELINE_FAILED"
	CodeEvalRunFailed         Code = "EVAL_RUN_FAILED"
)

// Error is the unified application error. Status is the HTTP status code the
// server returns for it. Transient marks failures that may succeed on a
// fresh attempt, such as an upstream 5xx or a dropped connection.
type Error struct {
	Code      Code
	Message   string
	Status    int
	Transient bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error with a formatted message.
func New(code Code, status int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Status: status}
}

// NewTransient builds an Error marked transient.
func NewTransient(code Code, status int, format string, args ...any) *Error {
	err := New(code, status, format, args...)
	err.Transient = true
	return err
}

// As unwraps err into an *Error if possible.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	if ae, ok := As(err); ok {
		return ae.Code == code
	}
	return false
}

// Retryable reports whether err is a transient upstream failure worth one
// more attempt. Timeouts always qualify; other errors only when marked
// transient. Validation errors, safety rejections, deterministic upstream
// 4xx responses, and storage failures do not.
func Retryable(err error) bool {
	ae, ok := As(err)
	if !ok {
		return false
	}
	return ae.Code == CodeOpenAITimeout || ae.Transient
}
