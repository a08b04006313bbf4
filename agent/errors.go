package agent

import (
	"errors"

	"github.com/spetersoncode/difybridge"
)

// Sentinel errors for rejected run input.
var (
	// ErrStrictRole indicates the request carried a message whose role is not user.
	ErrStrictRole = errors.New("agent: only role=user is accepted in a single request")

	// ErrNoUserMessage indicates no user message with content was found.
	ErrNoUserMessage = errors.New("agent: no user message found")

	// ErrMissingUser indicates forwarded props carried no user identifier.
	ErrMissingUser = errors.New("agent: user identifier is required")

	// ErrInvalidResponseMode indicates an unknown response_mode was requested.
	ErrInvalidResponseMode = errors.New("agent: invalid response mode")

	// ErrMissingAPIKey indicates the agent was created without a Dify API key.
	ErrMissingAPIKey = errors.New("agent: dify api key is required")
)

// RUN_ERROR codes for failures the upstream did not name.
const (
	CodeValidation = "validation_error"
	CodeTransport  = "transport_error"
	CodeUpstream   = "upstream_error"
)

// InputError is a run input rejected before any upstream call.
// It unwraps to one of the sentinel errors above.
type InputError struct {
	Reason error
	Detail string
}

// Error returns the human-readable detail.
func (e *InputError) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return e.Detail
}

// Unwrap returns the sentinel reason.
func (e *InputError) Unwrap() error {
	return e.Reason
}

// Category reports a validation error.
func (e *InputError) Category() difybridge.ErrorCategory {
	return difybridge.ErrorValidation
}

// StatusCode returns 0; input errors carry no HTTP status.
func (e *InputError) StatusCode() int {
	return 0
}

// ErrorCode returns CodeValidation.
func (e *InputError) ErrorCode() string {
	return CodeValidation
}
