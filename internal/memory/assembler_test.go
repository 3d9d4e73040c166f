package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestBuildContextShape exercises I6: the assembled context begins with
// exactly one system entry and alternates user/assistant thereafter, even
// when a rolling summary is present.
func TestBuildContextShape(t *testing.T) {
	a := NewAssembler("you are a helpful agent", nil)
	ts := time.Now().UTC()

	fifo := []Message{
		NewUserMessage("hi", ts),
		NewSystemMessage("a control notice", ts),
		NewAssistantMessage(AssistantContent{Call: FunctionCall{Name: "send_message"}}, ts),
		NewUserMessage("thanks", ts),
	}

	assembled, err := a.BuildContext(context.Background(), "## Memory Status\n", "the user asked about billing", ts, fifo, 3)
	require.NoError(t, err)
	require.NotEmpty(t, assembled.Messages)

	systemCount := 0
	for i, m := range assembled.Messages {
		if m.Role == "system" {
			systemCount++
			require.Equal(t, 0, i, "the only system entry must be first")
		}
	}
	require.Equal(t, 1, systemCount, "exactly one system entry")

	for i := 1; i < len(assembled.Messages); i++ {
		require.Contains(t, []string{"user", "assistant"}, assembled.Messages[i].Role)
		if i > 1 {
			require.NotEqual(t, assembled.Messages[i-1].Role, assembled.Messages[i].Role, "must alternate user/assistant after the system entry")
		}
	}

	require.Contains(t, assembled.Messages[1].Content, "the user asked about billing", "summary must fold onto the user side")
}

func TestBuildContextShapeNoFIFO(t *testing.T) {
	a := NewAssembler("you are a helpful agent", nil)
	ts := time.Now().UTC()

	assembled, err := a.BuildContext(context.Background(), "status", "prior summary text", ts, nil, 0)
	require.NoError(t, err)
	require.Len(t, assembled.Messages, 2)
	require.Equal(t, "system", assembled.Messages[0].Role)
	require.Equal(t, "user", assembled.Messages[1].Role)
	require.Contains(t, assembled.Messages[1].Content, "prior summary text")
}

func TestBuildContextShapeLeadingAssistant(t *testing.T) {
	a := NewAssembler("you are a helpful agent", nil)
	ts := time.Now().UTC()

	// A FIFO that happens to start with an assistant-kind message (e.g. right
	// after a flush evicted everything preceding it) must still get the
	// summary folded onto a new leading user entry, not a second system one.
	fifo := []Message{
		NewAssistantMessage(AssistantContent{Call: FunctionCall{Name: "send_message"}}, ts),
	}

	assembled, err := a.BuildContext(context.Background(), "status", "summary text", ts, fifo, 0)
	require.NoError(t, err)
	require.Equal(t, "system", assembled.Messages[0].Role)
	require.Equal(t, "user", assembled.Messages[1].Role)
	require.Equal(t, "assistant", assembled.Messages[2].Role)
}
