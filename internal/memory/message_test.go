package memory

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestMessageRoundTrip exercises R1: Deserialize(Serialize(m)) == m for
// every message kind.
func TestMessageRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []Message{
		NewUserMessage("hello there", ts),
		NewSystemMessage("context warning", ts),
		NewAssistantMessage(AssistantContent{
			Emotions: []EmotionScore{{Label: "curious", Intensity: 4}},
			Thoughts: []string{"the user wants X"},
			Call:     FunctionCall{Name: "send_message", Arguments: map[string]any{"text": "hi"}, DoHeartbeat: false},
		}, ts),
		NewFunctionResultMessage(true, json.RawMessage(`{"ok":true}`), ts),
		NewFunctionResultMessage(false, json.RawMessage(`"Function does not exist"`), ts),
	}

	for _, m := range cases {
		raw, err := m.Serialize()
		require.NoError(t, err)

		got, err := DeserializeMessage(raw)
		require.NoError(t, err)

		require.Equal(t, m.Kind, got.Kind)
		require.True(t, m.Timestamp.Equal(got.Timestamp))
		require.Equal(t, m.Content, got.Content)
	}
}

func TestDeserializeMessageUnknownKind(t *testing.T) {
	_, err := DeserializeMessage([]byte(`{"kind":"bogus","timestamp":"2026-01-01T00:00:00Z","content":{}}`))
	require.Error(t, err)
}

func TestPlainTextVariants(t *testing.T) {
	ts := time.Now().UTC()

	require.Equal(t, "hi", NewUserMessage("hi", ts).PlainText())

	withThought := NewAssistantMessage(AssistantContent{
		Thoughts: []string{"first", "last thought"},
		Call:     FunctionCall{Name: "pop_task"},
	}, ts)
	require.Contains(t, withThought.PlainText(), "last thought")

	noThought := NewAssistantMessage(AssistantContent{Call: FunctionCall{Name: "pop_task"}}, ts)
	require.Equal(t, `{"name":"pop_task","arguments":null,"do_heartbeat":false}`, noThought.PlainText())

	fr := NewFunctionResultMessage(true, json.RawMessage(`"done"`), ts)
	require.Equal(t, `"done"`, fr.PlainText())
}
