package agent

import (
	"fmt"
	"strings"

	"github.com/spetersoncode/difybridge/agui"
	"github.com/spetersoncode/difybridge/dify"
)

const defaultFileType = "image"

// PrepareRequest validates input and projects it into a chat-messages
// request.
//
// Only user messages are accepted: Dify keeps the conversation history
// itself and receives a single query per call, so any other role would be
// dropped silently. The last user message with content becomes the query.
// Failures are returned as *InputError.
func PrepareRequest(input *agui.RunAgentInput) (*dify.ChatRequest, error) {
	for _, msg := range input.Messages {
		if msg.Role != agui.RoleUser {
			return nil, &InputError{
				Reason: ErrStrictRole,
				Detail: fmt.Sprintf("Dify adapter (strict mode) only supports role='user' messages in a single request. "+
					"Found unsupported role='%s'. Please do not include assistant/system/tool/developer messages in the request.", msg.Role),
			}
		}
	}

	query := lastUserQuery(input)
	if query == "" {
		return nil, &InputError{
			Reason: ErrNoUserMessage,
			Detail: "No user message found in messages. Dify API requires at least one message with role='user'.",
		}
	}

	props := input.ForwardedProps
	user := strings.TrimSpace(props.User)
	if user == "" {
		return nil, &InputError{
			Reason: ErrMissingUser,
			Detail: "User identifier is required. Provide it in forwarded_props.user.",
		}
	}

	mode := dify.ResponseModeStreaming
	if props.ResponseMode != "" {
		mode = dify.ResponseMode(props.ResponseMode)
		if !mode.Valid() {
			return nil, &InputError{
				Reason: ErrInvalidResponseMode,
				Detail: fmt.Sprintf("Unsupported response_mode %q. Use 'streaming' or 'blocking'.", props.ResponseMode),
			}
		}
	}

	inputs := props.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}

	autoName := true
	if props.AutoGenerateName != nil {
		autoName = *props.AutoGenerateName
	}

	return &dify.ChatRequest{
		Query:            query,
		User:             user,
		Inputs:           inputs,
		ResponseMode:     mode,
		ConversationID:   input.ThreadID,
		AutoGenerateName: &autoName,
		Files:            convertFiles(props.Files),
		TraceID:          input.RunID,
	}, nil
}

func lastUserQuery(input *agui.RunAgentInput) string {
	for i := len(input.Messages) - 1; i >= 0; i-- {
		msg := input.Messages[i]
		if msg.Role != agui.RoleUser {
			continue
		}
		if content := agui.ContentOf(msg); strings.TrimSpace(content) != "" {
			return content
		}
	}
	return ""
}

// convertFiles maps caller files onto Dify transfer methods. Files with
// neither a URL nor an upload id are dropped.
func convertFiles(files []agui.InputFile) []dify.File {
	var out []dify.File
	for _, f := range files {
		fileType := f.Type
		if fileType == "" {
			fileType = defaultFileType
		}
		switch {
		case f.URL != "":
			out = append(out, dify.File{Type: fileType, TransferMethod: dify.TransferRemoteURL, URL: f.URL})
		case f.UploadFileID != "":
			out = append(out, dify.File{Type: fileType, TransferMethod: dify.TransferLocalFile, UploadFileID: f.UploadFileID})
		}
	}
	return out
}
