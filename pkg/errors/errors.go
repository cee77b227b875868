// Package errors provides standardized error types for the SQL gateway workbench.
package errors

import (
	"errors"
	"fmt"
)

// Error codes covering the gateway client failure taxonomy.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeNotFound          = "NOT_FOUND"
	CodeAlreadyExists     = "ALREADY_EXISTS"
	CodeTransport         = "TRANSPORT_FAILED"
	CodeGateway           = "GATEWAY_ERROR"
	CodeStatementFailed   = "STATEMENT_FAILED"
	CodeSessionInvalid    = "SESSION_INVALID"
	CodeNoActiveSession   = "NO_ACTIVE_SESSION"
	CodeResourceExhausted = "RESOURCE_EXHAUSTED"
	CodeDeadlineExceeded  = "DEADLINE_EXCEEDED"
	CodeCanceled          = "CANCELED"
	CodeInternal          = "INTERNAL_ERROR"
)

// GatewayError represents a workbench error with code, message, and optional details.
type GatewayError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by code.
func (e *GatewayError) Is(target error) bool {
	t, ok := target.(*GatewayError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail adds a single detail to the error.
func (e *GatewayError) WithDetail(key string, value interface{}) *GatewayError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Common errors
var (
	ErrNoActiveSession   = &GatewayError{Code: CodeNoActiveSession, Message: "no active session and no connection to create one against"}
	ErrSessionNotFound   = &GatewayError{Code: CodeNotFound, Message: "session not found"}
	ErrConnectionInUse   = &GatewayError{Code: CodeInvalidRequest, Message: "connection is referenced by a session"}
	ErrLastConnection    = &GatewayError{Code: CodeInvalidRequest, Message: "cannot remove the last remaining connection"}
	ErrLastSession       = &GatewayError{Code: CodeInvalidRequest, Message: "cannot remove the last remaining session"}
	ErrResourceExhausted = &GatewayError{Code: CodeResourceExhausted, Message: "no resources available on the cluster; check cluster capacity"}
	ErrStatementTimeout  = &GatewayError{Code: CodeDeadlineExceeded, Message: "timed out waiting for results; the remote job may still be running"}
	ErrCanceled          = &GatewayError{Code: CodeCanceled, Message: "statement canceled"}
)

// New creates a new GatewayError with the given code and message.
func New(code, message string) *GatewayError {
	return &GatewayError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new GatewayError with a formatted message.
func Newf(code, format string, args ...interface{}) *GatewayError {
	return &GatewayError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a GatewayError.
func Wrap(err error, code, message string) *GatewayError {
	if err == nil {
		return nil
	}
	return &GatewayError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *GatewayError {
	if err == nil {
		return nil
	}
	return &GatewayError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsCode checks whether an error carries the given code.
func IsCode(err error, code string) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Code == code
	}
	return false
}

// IsTransport checks if an error is a network-level transport error.
func IsTransport(err error) bool {
	return IsCode(err, CodeTransport)
}

// IsCanceled checks if an error is a cancellation.
func IsCanceled(err error) bool {
	return IsCode(err, CodeCanceled)
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Message
	}
	return err.Error()
}
