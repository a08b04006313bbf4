package dify

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ResponseMode selects how the chat-messages endpoint answers.
type ResponseMode string

const (
	// ResponseModeStreaming answers with a Server-Sent-Events stream.
	ResponseModeStreaming ResponseMode = "streaming"
	// ResponseModeBlocking answers with a single JSON object.
	ResponseModeBlocking ResponseMode = "blocking"
)

// Valid reports whether m is a known response mode.
func (m ResponseMode) Valid() bool {
	return m == ResponseModeStreaming || m == ResponseModeBlocking
}

// Event names carried in the "event" field of stream records.
const (
	EventMessage        = "message"
	EventAgentMessage   = "agent_message"
	EventAgentThought   = "agent_thought"
	EventMessageFile    = "message_file"
	EventMessageEnd     = "message_end"
	EventMessageReplace = "message_replace"
	EventError          = "error"
	EventPing           = "ping"
	EventTTSMessage     = "tts_message"
	EventTTSMessageEnd  = "tts_message_end"
)

// Transfer methods for files attached to a chat request.
const (
	TransferRemoteURL = "remote_url"
	TransferLocalFile = "local_file"
)

// File is a file reference attached to a chat request.
type File struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	URL            string `json:"url,omitempty"`
	UploadFileID   string `json:"upload_file_id,omitempty"`
}

// ChatRequest is the body of a chat-messages call.
type ChatRequest struct {
	Query            string         `json:"query"`
	User             string         `json:"user"`
	Inputs           map[string]any `json:"inputs"`
	ResponseMode     ResponseMode   `json:"response_mode"`
	ConversationID   string         `json:"conversation_id,omitempty"`
	AutoGenerateName *bool          `json:"auto_generate_name,omitempty"`
	Files            []File         `json:"files,omitempty"`
	TraceID          string         `json:"trace_id,omitempty"`
}

// WithoutConversation returns a copy of the request with the conversation
// identifier removed. Inputs and files are shared with the original.
func (r *ChatRequest) WithoutConversation() *ChatRequest {
	c := *r
	c.ConversationID = ""
	return &c
}

// StreamEvent is one record of the chat-messages stream.
//
// Fields are populated according to Event; unused fields are zero.
type StreamEvent struct {
	Event          string `json:"event"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	TaskID         string `json:"task_id,omitempty"`
	ID             string `json:"id,omitempty"`
	CreatedAt      int64  `json:"created_at,omitempty"`

	// Text streaming.
	Answer string `json:"answer,omitempty"`

	// Agent thoughts.
	Position     int               `json:"position,omitempty"`
	Thought      string            `json:"thought,omitempty"`
	Observation  string            `json:"observation,omitempty"`
	Tool         string            `json:"tool,omitempty"`
	ToolInput    json.RawMessage   `json:"tool_input,omitempty"`
	MessageFiles []json.RawMessage `json:"message_files,omitempty"`

	// Files.
	Type      string `json:"type,omitempty"`
	URL       string `json:"url,omitempty"`
	BelongsTo string `json:"belongs_to,omitempty"`

	// Error frames.
	Status  int    `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// ToolInputText returns tool_input as text. A JSON string is unquoted and
// any other JSON value is returned as written. The second result is false
// when tool_input is absent, null or an empty string.
func (e *StreamEvent) ToolInputText() (string, bool) {
	raw := bytes.TrimSpace(e.ToolInput)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, strings.TrimSpace(s) != ""
	}
	return string(raw), true
}

// FileIDs returns the ids referenced by message_files. Entries may be plain
// strings or objects carrying "id" or "file_id".
func (e *StreamEvent) FileIDs() []string {
	var ids []string
	for _, raw := range e.MessageFiles {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				ids = append(ids, s)
			}
			continue
		}
		var obj struct {
			ID     string `json:"id"`
			FileID string `json:"file_id"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			continue
		}
		switch {
		case obj.FileID != "":
			ids = append(ids, obj.FileID)
		case obj.ID != "":
			ids = append(ids, obj.ID)
		}
	}
	return ids
}

// BlockingResponse is the body returned in blocking response mode.
type BlockingResponse struct {
	Event          string          `json:"event"`
	TaskID         string          `json:"task_id"`
	ID             string          `json:"id"`
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	Mode           string          `json:"mode"`
	Answer         string          `json:"answer"`
	CreatedAt      int64           `json:"created_at"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// events expands a blocking response into the stream records a streaming
// call would have produced.
func (r *BlockingResponse) events() []*StreamEvent {
	return []*StreamEvent{
		{
			Event:          EventMessage,
			ConversationID: r.ConversationID,
			MessageID:      r.MessageID,
			TaskID:         r.TaskID,
			ID:             r.ID,
			Answer:         r.Answer,
			CreatedAt:      r.CreatedAt,
		},
		{
			Event:          EventMessageEnd,
			ConversationID: r.ConversationID,
			MessageID:      r.MessageID,
			TaskID:         r.TaskID,
			ID:             r.ID,
			Metadata:       r.Metadata,
		},
	}
}
