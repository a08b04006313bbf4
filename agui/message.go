package agui

import (
	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
)

// Role constants matching AG-UI protocol.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
	RoleDeveloper = "developer"
)

// ContentOf returns the textual content of msg, or "" when it has none.
func ContentOf(msg events.Message) string {
	if msg.Content == nil {
		return ""
	}
	return *msg.Content
}

// NewUserMessage builds a user message with the given id and content.
func NewUserMessage(id, content string) events.Message {
	return events.Message{
		ID:      id,
		Role:    RoleUser,
		Content: &content,
	}
}
