package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/google/uuid"

	"github.com/spetersoncode/difybridge"
	"github.com/spetersoncode/difybridge/agui"
	"github.com/spetersoncode/difybridge/dify"
)

// Result is the outcome of translating one upstream record.
type Result struct {
	// Events are the AG-UI events to emit, in order.
	Events []events.Event

	// ThreadID is set the first time the upstream reports a conversation id.
	ThreadID string

	// Done is set when the upstream signalled the end of the answer,
	// either with message_end or with an error frame.
	Done bool

	// Failed is set when Events ends with a RUN_ERROR built from an
	// upstream error frame.
	Failed bool
}

type toolCall struct {
	name    string
	started bool
	fileIDs []string
}

// Translator turns Dify stream records into AG-UI events for one run.
//
// It keeps the text message open across deltas, drops thoughts that repeat
// text the user already received, and joins tool invocations with their
// results by thought id. A Translator is not safe for concurrent use.
type Translator struct {
	threadID string
	runID    string
	bound    bool

	logger *slog.Logger
	debug  bool

	textStarted  bool
	textID       string
	accumulated  strings.Builder
	calls        map[string]*toolCall
	order        []string
	results      map[string]struct{}
	pendingFiles map[string]string
}

// NewTranslator creates a translator for one run. threadID is used for
// message ids until the upstream reports its own conversation id. Only the
// Logger and DebugMode options apply.
func NewTranslator(threadID, runID string, opts ...Option) *Translator {
	o := ApplyOptions(opts...)
	t := &Translator{
		threadID: threadID,
		runID:    runID,
		logger:   o.Logger,
		debug:    o.DebugMode,
	}
	t.reset()
	return t
}

// ThreadID returns the effective thread id.
func (t *Translator) ThreadID() string {
	return t.threadID
}

// MessageID returns the id the next text message will start with. An open
// message keeps the id it started with.
func (t *Translator) MessageID() string {
	return agui.MessageID(t.threadID, t.runID)
}

// BindThread fixes the effective thread id. Only the first non-empty id is
// kept; it reports whether this call set it.
func (t *Translator) BindThread(conversationID string) bool {
	if t.bound || conversationID == "" {
		return false
	}
	t.threadID = conversationID
	t.bound = true
	return true
}

// Translate maps one upstream record to AG-UI events.
func (t *Translator) Translate(ev *dify.StreamEvent) Result {
	var res Result
	if t.BindThread(ev.ConversationID) {
		res.ThreadID = t.threadID
	}

	switch ev.Event {
	case dify.EventMessage, dify.EventAgentMessage:
		res.Events = t.text(ev.Answer)
	case dify.EventAgentThought:
		res.Events = t.thought(ev)
	case dify.EventMessageFile:
		res.Events = t.file(ev)
	case dify.EventMessageReplace:
		res.Events = t.replace(ev.Answer)
	case dify.EventMessageEnd:
		res.Events = t.Close()
		res.Done = true
		t.reset()
	case dify.EventError:
		res.Events = append(t.Close(), t.errorFrame(ev))
		res.Done = true
		res.Failed = true
		t.reset()
	default:
		// ping, tts_message, tts_message_end and unknown events
	}
	return res
}

// Close ends an open text message. It returns the TEXT_MESSAGE_END to emit,
// or nothing if no text was started.
func (t *Translator) Close() []events.Event {
	if !t.textStarted {
		return nil
	}
	t.textStarted = false
	return []events.Event{events.NewTextMessageEndEvent(t.textID)}
}

func (t *Translator) reset() {
	t.textStarted = false
	t.accumulated.Reset()
	t.calls = make(map[string]*toolCall)
	t.order = nil
	t.results = make(map[string]struct{})
	t.pendingFiles = make(map[string]string)
}

func (t *Translator) text(answer string) []events.Event {
	var out []events.Event
	if !t.textStarted {
		t.textID = t.MessageID()
		t.textStarted = true
		out = append(out, events.NewTextMessageStartEvent(t.textID, events.WithRole(agui.RoleAssistant)))
	}
	if answer != "" {
		t.accumulated.WriteString(answer)
		out = append(out, events.NewTextMessageContentEvent(t.textID, answer))
	}
	return out
}

func (t *Translator) replace(answer string) []events.Event {
	if answer == "" {
		return nil
	}
	out := t.Close()
	t.accumulated.Reset()
	return append(out, t.text(answer)...)
}

func (t *Translator) thought(ev *dify.StreamEvent) []events.Event {
	id := ev.ID
	if id == "" {
		id = uuid.NewString()
	}

	var out []events.Event

	thought := ev.Thought
	if strings.TrimSpace(ev.Tool) == "" {
		thought = ""
	}
	if thought != "" && ev.Observation != "" && observationInThought(thought, ev.Observation) {
		t.debugf("dropping thought restating observation", "thought_id", id)
		thought = ""
	}
	if strings.TrimSpace(thought) != "" {
		if duplicatesText(thought, t.accumulated.String()) {
			t.debugf("dropping thought duplicating streamed text", "thought_id", id, "thought_len", len(thought))
		} else {
			out = append(out, events.NewThinkingTextMessageContentEvent(thought))
		}
	}

	name := primaryTool(ev.Tool)
	input, hasInput := ev.ToolInputText()
	switch {
	case name != "" && hasInput:
		call := t.register(id, name)
		if !call.started {
			call.started = true
			t.debugf("tool call started", "tool_call_id", id, "tool", name)
			out = append(out,
				events.NewToolCallStartEvent(id, name),
				events.NewToolCallArgsEvent(id, formatArgs(input)),
				events.NewToolCallEndEvent(id),
			)
		}
		if ev.Observation != "" {
			out = append(out, t.result(id, ev.Observation)...)
		}
	case ev.Observation != "":
		t.debugf("observation without tool info", "tool_call_id", id)
		out = append(out, t.result(id, ev.Observation)...)
	}

	for _, fileID := range ev.FileIDs() {
		t.pendingFiles[fileID] = id
		if call, ok := t.calls[id]; ok {
			call.fileIDs = append(call.fileIDs, fileID)
		}
	}

	return out
}

func (t *Translator) file(ev *dify.StreamEvent) []events.Event {
	if ev.BelongsTo != "" && ev.BelongsTo != agui.RoleAssistant {
		return nil
	}
	if ev.URL == "" {
		return nil
	}

	fileID := ev.ID
	if fileID == "" {
		fileID = uuid.NewString()
	}

	toolCallID, ok := t.pendingFiles[fileID]
	switch {
	case ok:
		delete(t.pendingFiles, fileID)
	case len(t.order) > 0:
		toolCallID = t.order[len(t.order)-1]
	default:
		toolCallID = fileID
	}

	t.debugf("file resolved", "file_id", fileID, "tool_call_id", toolCallID)
	return []events.Event{events.NewToolCallResultEvent(t.resultMessageID(toolCallID), toolCallID, ev.URL)}
}

// result emits the tool result for id unless one was already sent.
func (t *Translator) result(id, content string) []events.Event {
	if _, sent := t.results[id]; sent {
		return nil
	}
	t.results[id] = struct{}{}
	return []events.Event{events.NewToolCallResultEvent(t.resultMessageID(id), id, content)}
}

func (t *Translator) resultMessageID(toolCallID string) string {
	return t.MessageID() + ":" + toolCallID
}

func (t *Translator) register(id, name string) *toolCall {
	if call, ok := t.calls[id]; ok {
		return call
	}
	call := &toolCall{name: name}
	t.calls[id] = call
	t.order = append(t.order, id)
	return call
}

func (t *Translator) errorFrame(ev *dify.StreamEvent) events.Event {
	status := ev.Status
	if status == 0 {
		status = 500
	}
	message := ev.Message
	if message == "" {
		message = "Unknown error"
	}
	msg := fmt.Sprintf("Dify API error (%d): %s", status, message)
	if ev.Code != "" {
		msg = fmt.Sprintf("Dify API error (%d), code=%s: %s", status, ev.Code, message)
	}
	code := ev.Code
	if code == "" {
		code = strconv.Itoa(status)
	}
	err := difybridge.NewUpstreamError(msg, status, code)
	t.logger.Warn("upstream error frame", "error", err, "status", err.StatusCode())
	return events.NewRunErrorEvent(
		err.Error(),
		events.WithRunID(t.runID),
		events.WithErrorCode(err.ErrorCode()),
	)
}

func (t *Translator) debugf(msg string, args ...any) {
	if t.debug {
		t.logger.Debug(msg, append(args, "run_id", t.runID)...)
	}
}

// primaryTool returns the first name of a semicolon-separated tool list.
func primaryTool(tools string) string {
	for _, name := range strings.Split(tools, ";") {
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	return ""
}

// formatArgs compacts JSON arguments. Text that is not JSON is returned
// unchanged.
func formatArgs(input string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(input)); err != nil {
		return input
	}
	return buf.String()
}
