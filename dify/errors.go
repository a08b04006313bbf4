package dify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spetersoncode/difybridge"
)

const (
	maxErrorBodyBytes = 64 << 10
	maxErrorBodyReads = 100
)

// APIError is an error status returned by the Dify API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error formats the error as "Dify API error (status[, code=code]): message".
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("Dify API error (%d, code=%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("Dify API error (%d): %s", e.Status, e.Message)
}

// Category reports ErrorConversation for a rejected conversation id and
// ErrorUpstream otherwise.
func (e *APIError) Category() difybridge.ErrorCategory {
	if e.invalidConversation() {
		return difybridge.ErrorConversation
	}
	return difybridge.ErrorUpstream
}

// StatusCode returns the HTTP status.
func (e *APIError) StatusCode() int {
	return e.Status
}

// ErrorCode returns the Dify error code.
func (e *APIError) ErrorCode() string {
	return e.Code
}

func (e *APIError) invalidConversation() bool {
	if e.Status != http.StatusBadRequest {
		return false
	}
	if e.Code == "invalid_param" {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "conversation") && strings.Contains(msg, "invalid")
}

// IsInvalidConversation reports whether err is an HTTP 400 rejecting the
// conversation id, which is worth one retry without it.
func IsInvalidConversation(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.invalidConversation()
	}
	return false
}

// readAPIError builds an APIError from an error response. The body read is
// bounded so a misbehaving upstream cannot stall the run.
func readAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}

	body := readBounded(resp.Body, maxErrorBodyBytes, maxErrorBodyReads)
	text := strings.TrimSpace(string(body))

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && (payload.Code != "" || payload.Message != "") {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = text
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return apiErr
}

// readBounded reads at most maxBytes from r using at most maxReads calls.
// Read errors end the read; whatever arrived so far is returned.
func readBounded(r io.Reader, maxBytes, maxReads int) []byte {
	buf := make([]byte, 0, 4<<10)
	chunk := make([]byte, 4<<10)
	for reads := 0; reads < maxReads && len(buf) < maxBytes; reads++ {
		n, err := r.Read(chunk[:min(len(chunk), maxBytes-len(buf))])
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}
	return buf
}
