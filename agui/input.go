package agui

import (
	"encoding/json"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
)

// RunAgentInput represents the AG-UI protocol request for running an agent.
// It decodes both the camelCase keys of the AG-UI wire format and the
// snake_case keys some clients send.
type RunAgentInput struct {
	ThreadID       string           `json:"threadId"`
	RunID          string           `json:"runId"`
	Messages       []events.Message `json:"messages"`
	Tools          []any            `json:"tools,omitempty"`   // Frontend-provided tools, not forwarded
	Context        []any            `json:"context,omitempty"` // Context items, not forwarded
	State          any              `json:"state,omitempty"`
	ForwardedProps ForwardedProps   `json:"forwardedProps"`
}

// ForwardedProps carries the Dify-specific request settings.
type ForwardedProps struct {
	// User identifies the end user to Dify. Required.
	User string `json:"user,omitempty"`

	// Inputs are the application variables defined in the Dify app.
	Inputs map[string]any `json:"inputs,omitempty"`

	// ResponseMode is "streaming" (default) or "blocking".
	ResponseMode string `json:"response_mode,omitempty"`

	// AutoGenerateName controls conversation title generation. Default true.
	AutoGenerateName *bool `json:"auto_generate_name,omitempty"`

	Files []InputFile `json:"files,omitempty"`
}

// InputFile is a file the caller wants attached to the query.
// Either URL or UploadFileID must be set.
type InputFile struct {
	Type         string `json:"type,omitempty"`
	URL          string `json:"url,omitempty"`
	UploadFileID string `json:"upload_file_id,omitempty"`
}

// UnmarshalJSON accepts camelCase and snake_case top-level keys.
func (r *RunAgentInput) UnmarshalJSON(data []byte) error {
	var wire struct {
		ThreadID            string           `json:"threadId"`
		ThreadIDSnake       string           `json:"thread_id"`
		RunID               string           `json:"runId"`
		RunIDSnake          string           `json:"run_id"`
		Messages            []events.Message `json:"messages"`
		Tools               []any            `json:"tools"`
		Context             []any            `json:"context"`
		State               any              `json:"state"`
		ForwardedProps      *ForwardedProps  `json:"forwardedProps"`
		ForwardedPropsSnake *ForwardedProps  `json:"forwarded_props"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*r = RunAgentInput{
		ThreadID: firstNonEmpty(wire.ThreadID, wire.ThreadIDSnake),
		RunID:    firstNonEmpty(wire.RunID, wire.RunIDSnake),
		Messages: wire.Messages,
		Tools:    wire.Tools,
		Context:  wire.Context,
		State:    wire.State,
	}
	switch {
	case wire.ForwardedProps != nil:
		r.ForwardedProps = *wire.ForwardedProps
	case wire.ForwardedPropsSnake != nil:
		r.ForwardedProps = *wire.ForwardedPropsSnake
	}
	return nil
}

// FillIDs assigns ids where the caller left them empty: a run id from
// newID, and message ids from newID. It returns the input for chaining.
func (r *RunAgentInput) FillIDs(newID func() string) *RunAgentInput {
	if r.RunID == "" {
		r.RunID = newID()
	}
	for i := range r.Messages {
		if r.Messages[i].ID == "" {
			r.Messages[i].ID = newID()
		}
	}
	return r
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
