package agui

import (
	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
)

// Mapper builds the lifecycle events of one run.
//
// The thread id may change once during a run, when the upstream reports the
// conversation it actually used; call SetThreadID before emitting
// RUN_STARTED. The Mapper is not safe for concurrent use.
type Mapper struct {
	threadID string
	runID    string
}

// NewMapper creates a new Mapper for a single run.
// Empty ids are replaced with generated ones.
func NewMapper(threadID, runID string) *Mapper {
	if threadID == "" {
		threadID = events.GenerateThreadID()
	}
	if runID == "" {
		runID = events.GenerateRunID()
	}
	return &Mapper{
		threadID: threadID,
		runID:    runID,
	}
}

// ThreadID returns the thread ID for this mapper.
func (m *Mapper) ThreadID() string {
	return m.threadID
}

// RunID returns the run ID for this mapper.
func (m *Mapper) RunID() string {
	return m.runID
}

// SetThreadID replaces the thread ID. Empty values are ignored.
func (m *Mapper) SetThreadID(threadID string) {
	if threadID != "" {
		m.threadID = threadID
	}
}

// MessageID returns the deterministic text message id of the run.
func (m *Mapper) MessageID() string {
	return MessageID(m.threadID, m.runID)
}

// RunStarted returns a RUN_STARTED event.
func (m *Mapper) RunStarted() events.Event {
	return events.NewRunStartedEvent(m.threadID, m.runID)
}

// RunFinished returns a RUN_FINISHED event.
func (m *Mapper) RunFinished() events.Event {
	return events.NewRunFinishedEvent(m.threadID, m.runID)
}

// RunError returns a RUN_ERROR event. An empty code is omitted.
func (m *Mapper) RunError(message, code string) events.Event {
	if message == "" {
		message = "unknown error"
	}
	if code != "" {
		return events.NewRunErrorEvent(message, events.WithRunID(m.runID), events.WithErrorCode(code))
	}
	return events.NewRunErrorEvent(message, events.WithRunID(m.runID))
}

// StepStarted returns a STEP_STARTED event.
func (m *Mapper) StepStarted(name string) events.Event {
	return events.NewStepStartedEvent(name)
}

// StepFinished returns a STEP_FINISHED event.
func (m *Mapper) StepFinished(name string) events.Event {
	return events.NewStepFinishedEvent(name)
}

// MessageID joins a thread and run id into a text message id.
func MessageID(threadID, runID string) string {
	return threadID + ":" + runID
}
