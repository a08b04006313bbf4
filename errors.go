package difybridge

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by how a run should surface them.
type ErrorCategory string

const (
	// ErrorValidation indicates the inbound request was rejected before any
	// upstream call was made.
	// Examples: non-user roles in strict mode, missing user identifier.
	ErrorValidation ErrorCategory = "validation"

	// ErrorTransport indicates the upstream could not be reached or the
	// response body could not be read.
	// Examples: connection refused, client timeout, truncated body.
	ErrorTransport ErrorCategory = "transport"

	// ErrorUpstream indicates the upstream answered with an error, either as
	// an HTTP status or as an error frame inside the stream.
	ErrorUpstream ErrorCategory = "upstream"

	// ErrorConversation indicates the upstream rejected the conversation
	// identifier. The run may be retried once without it.
	ErrorConversation ErrorCategory = "conversation"
)

// CategorizedError is an error that reports its category and upstream metadata.
type CategorizedError interface {
	error
	Category() ErrorCategory
	StatusCode() int   // HTTP status code if applicable, 0 otherwise
	ErrorCode() string // upstream error code if known, "" otherwise
}

// Error is a categorized error with upstream metadata.
type Error struct {
	Msg          string
	Cat          ErrorCategory
	Code         int    // HTTP status code, 0 if not applicable
	UpstreamCode string // upstream error code, "" if not available
	Cause        error  // underlying error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.Cat
}

// StatusCode returns the HTTP status code, or 0 if not applicable.
func (e *Error) StatusCode() int {
	return e.Code
}

// ErrorCode returns the upstream error code, or "" if not available.
func (e *Error) ErrorCode() string {
	return e.UpstreamCode
}

// NewValidationError creates an error for a rejected inbound request.
func NewValidationError(msg string, cause error) *Error {
	return &Error{
		Msg:   msg,
		Cat:   ErrorValidation,
		Cause: cause,
	}
}

// NewTransportError creates an error for a failed upstream exchange.
func NewTransportError(msg string, cause error) *Error {
	return &Error{
		Msg:   msg,
		Cat:   ErrorTransport,
		Cause: cause,
	}
}

// NewUpstreamError creates an error reported by the upstream service.
func NewUpstreamError(msg string, statusCode int, code string) *Error {
	return &Error{
		Msg:          msg,
		Cat:          ErrorUpstream,
		Code:         statusCode,
		UpstreamCode: code,
	}
}

func categoryOf(err error) (ErrorCategory, bool) {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category(), true
	}
	return "", false
}

// IsValidation returns true if the error is categorized as a validation error.
func IsValidation(err error) bool {
	cat, ok := categoryOf(err)
	return ok && cat == ErrorValidation
}

// IsTransport returns true if the error is categorized as a transport error.
func IsTransport(err error) bool {
	cat, ok := categoryOf(err)
	return ok && cat == ErrorTransport
}

// IsUpstream returns true if the error was reported by the upstream.
// Conversation errors are upstream errors too.
func IsUpstream(err error) bool {
	cat, ok := categoryOf(err)
	return ok && (cat == ErrorUpstream || cat == ErrorConversation)
}

// IsConversation returns true if the upstream rejected the conversation id.
func IsConversation(err error) bool {
	cat, ok := categoryOf(err)
	return ok && cat == ErrorConversation
}

// StatusCodeOf returns the HTTP status code from a categorized error, or 0.
func StatusCodeOf(err error) int {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.StatusCode()
	}
	return 0
}

// CodeOf returns the upstream error code from a categorized error, or "".
func CodeOf(err error) string {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.ErrorCode()
	}
	return ""
}
