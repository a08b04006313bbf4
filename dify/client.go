package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spetersoncode/difybridge"
)

const (
	// DefaultBaseURL is the Dify cloud API root.
	DefaultBaseURL = "https://api.dify.ai/v1"

	// DefaultTimeout bounds a whole chat-messages exchange, body included.
	DefaultTimeout = 60 * time.Second
)

// Client calls the Dify chat-messages API.
// A Client is safe for concurrent use; it holds only immutable configuration.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the API root. A trailing slash is removed.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
// The client's own timeout applies instead of DefaultTimeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the logger for diagnostic output.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client authenticating with apiKey.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	return c
}

// BaseURL returns the API root the client posts to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ChatMessages posts chat to the chat-messages endpoint and returns a Stream
// over the response records.
//
// In blocking mode the single JSON answer is exposed as a message record
// followed by message_end. A status of 400 or above is returned as *APIError
// without reading more than a bounded prefix of the body. The caller must
// Close the returned Stream.
func (c *Client) ChatMessages(ctx context.Context, chat *ChatRequest) (*Stream, error) {
	req := *chat
	if req.ResponseMode == "" {
		req.ResponseMode = ResponseModeStreaming
	}
	if req.Inputs == nil {
		req.Inputs = map[string]any{}
	}

	body, err := json.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat-messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.ResponseMode == ResponseModeStreaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if req.TraceID != "" {
		httpReq.Header.Set("X-Trace-Id", req.TraceID)
	}

	c.logger.Debug("dify request",
		"url", httpReq.URL.String(),
		"response_mode", req.ResponseMode,
		"conversation_id", req.ConversationID,
		"files", len(req.Files),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, difybridge.NewTransportError("dify request failed", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		apiErr := readAPIError(resp)
		c.logger.Debug("dify error response", "status", apiErr.Status, "code", apiErr.Code, "message", apiErr.Message)
		return nil, apiErr
	}

	if req.ResponseMode == ResponseModeBlocking {
		defer resp.Body.Close()
		var blocking BlockingResponse
		if err := json.NewDecoder(resp.Body).Decode(&blocking); err != nil {
			return nil, difybridge.NewTransportError("decoding blocking response", err)
		}
		return newStaticStream(blocking.events()), nil
	}

	return newSSEStream(resp.Body, c.logger), nil
}
