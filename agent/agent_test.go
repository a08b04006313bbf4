package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/difybridge/agui"
)

// fakeDify serves chat-messages with one handler per call, in order.
type fakeDify struct {
	t        *testing.T
	server   *httptest.Server
	mu       sync.Mutex
	handlers []http.HandlerFunc
	requests []map[string]any
}

func newFakeDify(t *testing.T, handlers ...http.HandlerFunc) *fakeDify {
	t.Helper()
	f := &fakeDify{t: t, handlers: handlers}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeDify) serve(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "/chat-messages", r.URL.Path)
	assert.Equal(f.t, "Bearer app-key", r.Header.Get("Authorization"))

	var body map[string]any
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))

	f.mu.Lock()
	n := len(f.requests)
	f.requests = append(f.requests, body)
	f.mu.Unlock()

	if n >= len(f.handlers) {
		f.t.Errorf("unexpected upstream call #%d", n+1)
		http.Error(w, "unexpected", http.StatusInternalServerError)
		return
	}
	f.handlers[n](w, r)
}

func (f *fakeDify) calls() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.requests...)
}

func (f *fakeDify) agent(t *testing.T, opts ...Option) *Agent {
	t.Helper()
	opts = append([]Option{
		WithBaseURL(f.server.URL),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	a, err := New("app-key", opts...)
	require.NoError(t, err)
	return a
}

// streamOf writes records as an SSE stream.
func streamOf(records ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, rec := range records {
			fmt.Fprintf(w, "data: %s\n\n", rec)
		}
	}
}

func statusOf(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func userInput(threadID string, messages ...events.Message) *agui.RunAgentInput {
	if len(messages) == 0 {
		messages = []events.Message{agui.NewUserMessage("m1", "hello")}
	}
	return &agui.RunAgentInput{
		ThreadID:       threadID,
		RunID:          "r1",
		Messages:       messages,
		ForwardedProps: agui.ForwardedProps{User: "u1"},
	}
}

func collect(t *testing.T, ch <-chan events.Event) []events.Event {
	t.Helper()
	var out []events.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("run did not finish; got %v", types(out))
			return nil
		}
	}
}

func assertTypes(t *testing.T, want []events.EventType, got []events.Event) {
	t.Helper()
	if diff := cmp.Diff(want, types(got)); diff != "" {
		t.Fatalf("event types mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(" ")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestRunPlainText(t *testing.T) {
	f := newFakeDify(t, streamOf(
		`{"event":"message","answer":"Hello ","conversation_id":"c1"}`,
		`{"event":"message","answer":"world","conversation_id":"c1"}`,
		`{"event":"message_end","conversation_id":"c1"}`,
	))

	evs := collect(t, f.agent(t).Run(context.Background(), userInput("")))

	assertTypes(t, []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeStepStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageEnd,
		events.EventTypeStepFinished,
		events.EventTypeRunFinished,
	}, evs)

	assert.Equal(t, "c1", wire(t, evs[0])["threadId"])
	assert.Equal(t, "r1", wire(t, evs[0])["runId"])
	assert.Equal(t, StepName, wire(t, evs[1])["stepName"])
	assert.Equal(t, "c1:r1", wire(t, evs[2])["messageId"])
	assert.Equal(t, "Hello ", wire(t, evs[3])["delta"])
	assert.Equal(t, "world", wire(t, evs[4])["delta"])
	assert.Equal(t, StepName, wire(t, evs[6])["stepName"])
	assert.Equal(t, "c1", wire(t, evs[7])["threadId"])

	calls := f.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "hello", calls[0]["query"])
	assert.Equal(t, "u1", calls[0]["user"])
	assert.Equal(t, "streaming", calls[0]["response_mode"])
	assert.NotContains(t, calls[0], "conversation_id")
}

func TestRunTextBeforeConversationID(t *testing.T) {
	f := newFakeDify(t, streamOf(
		`{"event":"message","answer":"Hello "}`,
		`{"event":"message","answer":"world","conversation_id":"c1"}`,
		`{"event":"message_end","conversation_id":"c1"}`,
	))

	evs := collect(t, f.agent(t).Run(context.Background(), userInput("inbound")))

	assertTypes(t, []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeStepStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageEnd,
		events.EventTypeStepFinished,
		events.EventTypeRunFinished,
	}, evs)

	assert.Equal(t, "c1", wire(t, evs[0])["threadId"])
	messageID := wire(t, evs[2])["messageId"]
	assert.Equal(t, "inbound:r1", messageID)
	for _, ev := range evs[3:6] {
		assert.Equal(t, messageID, wire(t, ev)["messageId"], ev.Type())
	}
}

func TestRunToolCall(t *testing.T) {
	f := newFakeDify(t, streamOf(
		`{"event":"agent_thought","id":"t1","conversation_id":"c2","tool":"search","tool_input":"{\"q\":\"ada\"}"}`,
		`{"event":"agent_thought","id":"t1","conversation_id":"c2","tool":"search","tool_input":"{\"q\":\"ada\"}","observation":"RESULT"}`,
		`{"event":"message_end","conversation_id":"c2"}`,
	))

	evs := collect(t, f.agent(t).Run(context.Background(), userInput("c2")))

	assertTypes(t, []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeStepStarted,
		events.EventTypeToolCallStart,
		events.EventTypeToolCallArgs,
		events.EventTypeToolCallEnd,
		events.EventTypeToolCallResult,
		events.EventTypeStepFinished,
		events.EventTypeRunFinished,
	}, evs)

	assert.Equal(t, "search", wire(t, evs[2])["toolCallName"])
	assert.Equal(t, `{"q":"ada"}`, wire(t, evs[3])["delta"])
	result := wire(t, evs[5])
	assert.Equal(t, "t1", result["toolCallId"])
	assert.Equal(t, "RESULT", result["content"])
	assert.NotEmpty(t, result["messageId"])
	assert.Equal(t, "c2", f.calls()[0]["conversation_id"])
}

func TestRunDropsDuplicateThought(t *testing.T) {
	f := newFakeDify(t, streamOf(
		`{"event":"agent_message","answer":"The capital is Paris.","conversation_id":"c3"}`,
		`{"event":"agent_thought","id":"t1","thought":"The capital is Paris.","conversation_id":"c3"}`,
		`{"event":"message_end","conversation_id":"c3"}`,
	))

	evs := collect(t, f.agent(t).Run(context.Background(), userInput("")))

	assertTypes(t, []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeStepStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageEnd,
		events.EventTypeStepFinished,
		events.EventTypeRunFinished,
	}, evs)
}

func TestRunRetriesInvalidConversation(t *testing.T) {
	f := newFakeDify(t,
		statusOf(http.StatusBadRequest, `{"code":"invalid_param","message":"conversation_id is invalid"}`),
		streamOf(
			`{"event":"message","answer":"hi","conversation_id":"c-new"}`,
			`{"event":"message_end"}`,
		),
	)

	evs := collect(t, f.agent(t).Run(context.Background(), userInput("stale")))

	assertTypes(t, []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeStepStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageEnd,
		events.EventTypeStepFinished,
		events.EventTypeRunFinished,
	}, evs)
	assert.Equal(t, "c-new", wire(t, evs[0])["threadId"])
	assert.Equal(t, "c-new:r1", wire(t, evs[2])["messageId"])
	assert.Equal(t, "c-new", wire(t, evs[6])["threadId"])

	calls := f.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "stale", calls[0]["conversation_id"])
	assert.NotContains(t, calls[1], "conversation_id")
	assert.Equal(t, calls[0]["query"], calls[1]["query"])
}

func TestRunRetriesOnlyOnce(t *testing.T) {
	reject := statusOf(http.StatusBadRequest, `{"code":"invalid_param","message":"conversation_id is invalid"}`)
	f := newFakeDify(t, reject, reject)

	evs := collect(t, f.agent(t).Run(context.Background(), userInput("stale")))

	assertTypes(t, []events.EventType{events.EventTypeRunError}, evs)
	assert.Equal(t, "invalid_param", wire(t, evs[0])["code"])
	assert.Len(t, f.calls(), 2)
}

func TestRunNoRetryWithoutConversation(t *testing.T) {
	f := newFakeDify(t,
		statusOf(http.StatusBadRequest, `{"code":"invalid_param","message":"inputs is invalid"}`),
	)

	evs := collect(t, f.agent(t).Run(context.Background(), userInput("")))

	assertTypes(t, []events.EventType{events.EventTypeRunError}, evs)
	assert.Len(t, f.calls(), 1)
}

func TestRunNoRetryForOtherErrors(t *testing.T) {
	f := newFakeDify(t,
		statusOf(http.StatusBadRequest, `{"code":"app_unavailable","message":"App unavailable"}`),
	)

	evs := collect(t, f.agent(t).Run(context.Background(), userInput("c1")))

	assertTypes(t, []events.EventType{events.EventTypeRunError}, evs)
	assert.Equal(t, "app_unavailable", wire(t, evs[0])["code"])
	assert.Len(t, f.calls(), 1)
}

func TestRunUpstreamErrorFrame(t *testing.T) {
	f := newFakeDify(t, streamOf(
		`{"event":"message","answer":"partial","conversation_id":"c5"}`,
		`{"event":"error","status":500,"code":"internal","message":"boom"}`,
		`{"event":"message","answer":"ignored","conversation_id":"c5"}`,
	))

	evs := collect(t, f.agent(t).Run(context.Background(), userInput("")))

	assertTypes(t, []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeStepStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageEnd,
		events.EventTypeRunError,
		events.EventTypeStepFinished,
	}, evs)

	runErr := wire(t, evs[5])
	assert.Equal(t, "Dify API error (500), code=internal: boom", runErr["message"])
	assert.Equal(t, "internal", runErr["code"])
	assert.Equal(t, "r1", runErr["runId"])
}

func TestRunErrorFrameBeforeConversation(t *testing.T) {
	f := newFakeDify(t, streamOf(`{"event":"error","status":400,"code":"quota","message":"no quota"}`))

	evs := collect(t, f.agent(t).Run(context.Background(), userInput("t0")))

	assertTypes(t, []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeStepStarted,
		events.EventTypeRunError,
		events.EventTypeStepFinished,
	}, evs)
	assert.Equal(t, "t0", wire(t, evs[0])["threadId"])
}

func TestRunRejectsNonUserRole(t *testing.T) {
	f := newFakeDify(t)

	evs := collect(t, f.agent(t).Run(context.Background(), userInput("",
		message(agui.RoleSystem, "be brief"),
		agui.NewUserMessage("m1", "hi"),
	)))

	assertTypes(t, []events.EventType{events.EventTypeRunError}, evs)
	runErr := wire(t, evs[0])
	assert.Contains(t, runErr["message"], "strict mode")
	assert.Contains(t, runErr["message"], "role='system'")
	assert.Equal(t, CodeValidation, runErr["code"])
	assert.Empty(t, f.calls())
}

func TestRunRejectsMissingUser(t *testing.T) {
	f := newFakeDify(t)
	input := userInput("")
	input.ForwardedProps.User = ""

	evs := collect(t, f.agent(t).Run(context.Background(), input))

	assertTypes(t, []events.EventType{events.EventTypeRunError}, evs)
	assert.Contains(t, wire(t, evs[0])["message"], "forwarded_props.user")
	assert.Empty(t, f.calls())
}

func TestRunHTTPError(t *testing.T) {
	f := newFakeDify(t, statusOf(http.StatusInternalServerError, `{"code":"internal_error","message":"down"}`))

	evs := collect(t, f.agent(t).Run(context.Background(), userInput("c1")))

	assertTypes(t, []events.EventType{events.EventTypeRunError}, evs)
	runErr := wire(t, evs[0])
	assert.Equal(t, "internal_error", runErr["code"])
	assert.Contains(t, runErr["message"], "down")
	assert.Contains(t, runErr["message"], "500")
}

func TestRunStreamEndsWithoutMessageEnd(t *testing.T) {
	f := newFakeDify(t, streamOf(
		`{"event":"ping"}`,
		`{"event":"message","answer":"cut","conversation_id":"c6"}`,
	))

	evs := collect(t, f.agent(t).Run(context.Background(), userInput("")))

	assertTypes(t, []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeStepStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageEnd,
		events.EventTypeStepFinished,
		events.EventTypeRunFinished,
	}, evs)
}

func TestRunBrokenStream(t *testing.T) {
	f := newFakeDify(t, func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := http.NewResponseController(w).Hijack()
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		chunk := "data: {\"event\":\"message\",\"answer\":\"half\",\"conversation_id\":\"c7\"}\n\n"
		fmt.Fprint(buf, "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nTransfer-Encoding: chunked\r\n\r\n")
		fmt.Fprintf(buf, "%x\r\n%s\r\n", len(chunk), chunk)
		buf.Flush()
	})

	evs := collect(t, f.agent(t).Run(context.Background(), userInput("")))

	assertTypes(t, []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeStepStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageEnd,
		events.EventTypeRunError,
		events.EventTypeStepFinished,
	}, evs)
	assert.Equal(t, CodeTransport, wire(t, evs[5])["code"])
}

func TestRunBlockingMode(t *testing.T) {
	f := newFakeDify(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"event":"message","message_id":"m9","conversation_id":"c9","mode":"chat","answer":"full answer"}`)
	})
	input := userInput("")
	input.ForwardedProps.ResponseMode = "blocking"

	evs := collect(t, f.agent(t).Run(context.Background(), input))

	assertTypes(t, []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeStepStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageEnd,
		events.EventTypeStepFinished,
		events.EventTypeRunFinished,
	}, evs)
	assert.Equal(t, "c9", wire(t, evs[0])["threadId"])
	assert.Equal(t, "full answer", wire(t, evs[3])["delta"])
	assert.Equal(t, "blocking", f.calls()[0]["response_mode"])
}

func TestRunCancellation(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	f := newFakeDify(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"event\":\"message\",\"answer\":\"wait\",\"conversation_id\":\"c8\"}\n\n")
		http.NewResponseController(w).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := f.agent(t).Run(ctx, userInput(""))

	var evs []events.Event
	for ev := range ch {
		evs = append(evs, ev)
		if ev.Type() == events.EventTypeTextMessageContent {
			cancel()
			break
		}
	}
	evs = append(evs, collect(t, ch)...)

	for _, ev := range evs {
		assert.NotEqual(t, events.EventTypeRunError, ev.Type())
		assert.NotEqual(t, events.EventTypeRunFinished, ev.Type())
	}
}

func TestRunConcurrentRunsAreIsolated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, rec := range []string{
			fmt.Sprintf(`{"event":"agent_thought","id":"tool-%s","conversation_id":"conv-%s","tool":"echo","tool_input":"{}","message_files":["file-%s"]}`, body.Query, body.Query, body.Query),
			fmt.Sprintf(`{"event":"message_file","id":"file-%s","belongs_to":"assistant","url":"u-%s"}`, body.Query, body.Query),
			`{"event":"message_end"}`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", rec)
		}
	}))
	t.Cleanup(server.Close)

	a, err := New("app-key",
		WithBaseURL(server.URL),
		WithBufferSize(1),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q := fmt.Sprint(i)

			var result *events.ToolCallResultEvent
			for ev := range a.Run(context.Background(), userInput("", agui.NewUserMessage("m", q))) {
				if r, ok := ev.(*events.ToolCallResultEvent); ok && strings.HasPrefix(r.Content, "u-") {
					result = r
				}
			}
			if assert.NotNil(t, result) {
				assert.Equal(t, "tool-"+q, result.ToolCallID)
				assert.Equal(t, "u-"+q, result.Content)
			}
		}()
	}
	wg.Wait()
}
