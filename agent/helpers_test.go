package agent

import (
	"encoding/json"
	"testing"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/difybridge/dify"
)

// wire decodes an event's JSON form without its timestamp.
func wire(t *testing.T, ev events.Event) map[string]any {
	t.Helper()
	data, err := ev.ToJSON()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	delete(m, "timestamp")
	return m
}

func types(evs []events.Event) []events.EventType {
	out := make([]events.EventType, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type())
	}
	return out
}

// record decodes a Dify stream record written as JSON.
func record(t *testing.T, raw string) *dify.StreamEvent {
	t.Helper()
	var ev dify.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	return &ev
}

// translateAll feeds records through tr and concatenates the output.
func translateAll(t *testing.T, tr *Translator, raws ...string) []events.Event {
	t.Helper()
	var out []events.Event
	for _, raw := range raws {
		out = append(out, tr.Translate(record(t, raw)).Events...)
	}
	return out
}
