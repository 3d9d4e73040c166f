package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestExtractYAMLRoundTrip exercises R2: RenderYAML followed by ExtractYAML
// recovers the original AssistantContent.
func TestExtractYAMLRoundTrip(t *testing.T) {
	content := AssistantContent{
		Emotions: []EmotionScore{{Label: "calm", Intensity: 3}},
		Thoughts: []string{"planning the next step"},
		Call:     FunctionCall{Name: "push_task", Arguments: map[string]any{"task": "buy milk"}, DoHeartbeat: true},
	}

	rendered, err := RenderYAML(content)
	require.NoError(t, err)

	got, err := ExtractYAML(rendered)
	require.NoError(t, err)
	require.Equal(t, content.Call.Name, got.Call.Name)
	require.Equal(t, content.Call.DoHeartbeat, got.Call.DoHeartbeat)
	require.Equal(t, content.Thoughts, got.Thoughts)
	require.Equal(t, content.Emotions, got.Emotions)
}

func TestExtractYAMLTolerance(t *testing.T) {
	t.Run("tolerates a leading think block", func(t *testing.T) {
		raw := "<think>the model reasoning about the task</think>\n```yaml\nfunction_call:\n  name: pop_task\n  do_heartbeat: false\n```"
		got, err := ExtractYAML(raw)
		require.NoError(t, err)
		require.Equal(t, "pop_task", got.Call.Name)
	})

	t.Run("prefers the last of several fenced blocks", func(t *testing.T) {
		raw := "```yaml\nfunction_call:\n  name: wrong_tool\n```\nsome commentary\n```yaml\nfunction_call:\n  name: right_tool\n```"
		got, err := ExtractYAML(raw)
		require.NoError(t, err)
		require.Equal(t, "right_tool", got.Call.Name)
	})

	t.Run("strips lone utf-16 surrogates before parsing", func(t *testing.T) {
		raw := "```yaml\nfunction_call:\n  name: send_message\n  arguments:\n    text: \"hi\ud800there\"\n```"
		got, err := ExtractYAML(raw)
		require.NoError(t, err)
		require.Equal(t, "send_message", got.Call.Name)
	})

	t.Run("rejects missing function name", func(t *testing.T) {
		raw := "```yaml\nfunction_call:\n  name: \"\"\n```"
		_, err := ExtractYAML(raw)
		require.Error(t, err)
	})

	t.Run("rejects out-of-range emotion intensity", func(t *testing.T) {
		raw := "```yaml\nemotions:\n  - [\"curious\", 11]\nfunction_call:\n  name: pop_task\n```"
		_, err := ExtractYAML(raw)
		require.Error(t, err)
	})

	t.Run("no fenced block is an error", func(t *testing.T) {
		_, err := ExtractYAML("just plain text, no yaml here")
		require.Error(t, err)
	})
}
