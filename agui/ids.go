package agui

import (
	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
)

// FixEventIDs fills identifiers an event left empty from the run's thread
// and run ids. Lifecycle events get the missing thread or run id; tool
// results get the run's message id. Events that need no change are
// returned unchanged.
func FixEventIDs(ev events.Event, threadID, runID string) events.Event {
	switch e := ev.(type) {
	case *events.RunStartedEvent:
		if e.ThreadID() == "" || e.RunID() == "" {
			return events.NewRunStartedEvent(orDefault(e.ThreadID(), threadID), orDefault(e.RunID(), runID))
		}
	case *events.RunFinishedEvent:
		if e.ThreadID() == "" || e.RunID() == "" {
			return events.NewRunFinishedEvent(orDefault(e.ThreadID(), threadID), orDefault(e.RunID(), runID))
		}
	case *events.RunErrorEvent:
		if e.RunID() == "" && runID != "" {
			if e.Code != nil && *e.Code != "" {
				return events.NewRunErrorEvent(e.Message, events.WithRunID(runID), events.WithErrorCode(*e.Code))
			}
			return events.NewRunErrorEvent(e.Message, events.WithRunID(runID))
		}
	case *events.ToolCallResultEvent:
		if e.MessageID == "" {
			return events.NewToolCallResultEvent(MessageID(threadID, runID), e.ToolCallID, e.Content)
		}
	}
	return ev
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
