package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"continuum/internal/llm"
	"continuum/internal/memory"
	"continuum/internal/persistence/databases"
	"continuum/internal/testhelpers"
	"continuum/internal/tools"
)

// fakeEmbedder satisfies memory.Embedder without needing a real backend.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}

// noopTool is a trivial always-succeeding tool used to drive heartbeats in
// tests that don't care about any particular tool's side effects.
type noopTool struct{}

func (noopTool) Name() string { return "noop" }
func (noopTool) JSONSchema() map[string]any {
	return map[string]any{"description": "does nothing", "parameters": map[string]any{}}
}
func (noopTool) Call(context.Context, json.RawMessage) (any, error) {
	return map[string]any{"ok": true}, nil
}

func newTestMemory(t *testing.T) *memory.Manager {
	t.Helper()
	db := databases.Manager{
		Agents:         databases.NewMemoryAgentStore(),
		WorkingContext: databases.NewMemoryWorkingContextStore(),
		FIFOQueue:      databases.NewMemoryFIFOQueueStore(),
		Recall:         databases.NewMemoryRecallStore(),
		ChatLog:        databases.NewMemoryChatLogStore(),
		Vector:         nil,
	}
	_, err := db.Agents.Create(context.Background(), "agent-1", nil)
	require.NoError(t, err)
	return memory.NewManager(db, "agent-1", "you are a helpful agent", nil, &testhelpers.FakeProvider{}, "", fakeEmbedder{}, memory.Config{PersonaMaxWords: 1000})
}

func assistantTurn(t *testing.T, call memory.FunctionCall) string {
	t.Helper()
	rendered, err := memory.RenderYAML(memory.AssistantContent{Call: call})
	require.NoError(t, err)
	return rendered
}

func drain(events chan Event) []Event {
	close(events)
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

// TestEngineSendMessageEmitsToUser exercises the scenario where a
// send_message call surfaces its text as a to_user event.
func TestEngineSendMessageEmitsToUser(t *testing.T) {
	raw := assistantTurn(t, memory.FunctionCall{Name: "send_message", Arguments: map[string]any{"text": "hello there"}, DoHeartbeat: false})
	provider := &testhelpers.FakeProvider{Resp: llm.Message{Content: raw}}

	reg := tools.NewRegistry()
	reg.Register(sendMessageStub{})

	events := make(chan Event, 16)
	eng := &Engine{
		Memory:              newTestMemory(t),
		LLM:                 provider,
		Tools:               reg,
		Model:               "test-model",
		Events:              events,
		ControlPollInterval: time.Millisecond,
	}

	err := eng.Run(context.Background())
	require.NoError(t, err)

	got := drain(events)
	var sawToUser, sawHalt bool
	for _, ev := range got {
		if ev.Type == "to_user" {
			sawToUser = true
			require.Equal(t, "hello there", ev.Text)
		}
		if ev.Type == "halt" {
			sawHalt = true
		}
	}
	require.True(t, sawToUser, "expected a to_user event from send_message")
	require.True(t, sawHalt, "expected the run to halt once do_heartbeat is false")
}

// TestEngineInvalidToolProducesBookkeeping exercises the InvalidTool path:
// naming a tool outside the registry must still append a function-result
// message and force another heartbeat rather than erroring the run.
func TestEngineInvalidToolProducesBookkeeping(t *testing.T) {
	raw := assistantTurn(t, memory.FunctionCall{Name: "not_a_real_tool", DoHeartbeat: false})
	provider := &testhelpers.FakeProvider{Resp: llm.Message{Content: raw}}

	events := make(chan Event, 32)
	eng := &Engine{
		Memory:              newTestMemory(t),
		LLM:                 provider,
		Tools:               tools.NewRegistry(),
		Model:               "test-model",
		Events:              events,
		ControlPollInterval: time.Millisecond,
		MaxSteps:            3,
	}

	err := eng.Run(context.Background())
	require.Error(t, err, "an unknown tool forces do_heartbeat, so MaxSteps must eventually halt the run")
	require.Contains(t, err.Error(), "max steps")

	got := drain(events)
	var sawInvalid bool
	for _, ev := range got {
		if ev.Type == "message" && ev.Message.Kind == memory.KindFunctionResult {
			sawInvalid = true
			require.Equal(t, `"Function does not exist"`, ev.Message.PlainText())
		}
	}
	require.True(t, sawInvalid, "expected a function_does_not_exist bookkeeping message")
}

// TestEngineMaxStepsForcesHalt exercises the MaxSteps safety valve directly:
// a chain that never sets do_heartbeat false is force-halted rather than
// running forever.
func TestEngineMaxStepsForcesHalt(t *testing.T) {
	raw := assistantTurn(t, memory.FunctionCall{Name: "noop", DoHeartbeat: true})
	provider := &testhelpers.FakeProvider{Resp: llm.Message{Content: raw}}

	reg := tools.NewRegistry()
	reg.Register(noopTool{})

	events := make(chan Event, 32)
	eng := &Engine{
		Memory:              newTestMemory(t),
		LLM:                 provider,
		Tools:               reg,
		Model:               "test-model",
		Events:              events,
		ControlPollInterval: time.Millisecond,
		MaxSteps:            4,
	}

	err := eng.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "max steps")

	got := drain(events)
	require.Equal(t, "halt", got[len(got)-1].Type)
}

// TestEngineOverthinkGuardFires exercises I7: after OverthinkN consecutive
// heartbeats without a warning, the guard injects a system notice and
// resets its counter.
func TestEngineOverthinkGuardFires(t *testing.T) {
	raw := assistantTurn(t, memory.FunctionCall{Name: "noop", DoHeartbeat: true})
	provider := &testhelpers.FakeProvider{Resp: llm.Message{Content: raw}}

	reg := tools.NewRegistry()
	reg.Register(noopTool{})

	events := make(chan Event, 64)
	eng := &Engine{
		Memory:              newTestMemory(t),
		LLM:                 provider,
		Tools:               reg,
		Model:               "test-model",
		Events:              events,
		ControlPollInterval: time.Millisecond,
		OverthinkN:          2,
		MaxSteps:            6,
	}

	err := eng.Run(context.Background())
	require.Error(t, err, "the loop never sets do_heartbeat false, so MaxSteps halts it after the guard has had a chance to fire")

	got := drain(events)
	var sawOverthink bool
	for _, ev := range got {
		if ev.Type == "message" && ev.Message.Kind == memory.KindSystem {
			if ev.Message.PlainText() == "reconsider whether this task truly requires another step." {
				sawOverthink = true
			}
		}
	}
	require.True(t, sawOverthink, "expected the overthink guard to fire within MaxSteps heartbeats")
}

// TestEngineControlHaltStopsLoop exercises scenario 5: a pending "halt"
// control command stops the loop on the next ExitOrContinue tick even
// though the model keeps requesting another heartbeat.
func TestEngineControlHaltStopsLoop(t *testing.T) {
	raw := assistantTurn(t, memory.FunctionCall{Name: "noop", DoHeartbeat: true})
	provider := &testhelpers.FakeProvider{Resp: llm.Message{Content: raw}}

	reg := tools.NewRegistry()
	reg.Register(noopTool{})

	control := make(chan string, 1)
	control <- "halt"

	events := make(chan Event, 16)
	eng := &Engine{
		Memory:              newTestMemory(t),
		LLM:                 provider,
		Tools:               reg,
		Model:               "test-model",
		Events:              events,
		Control:             control,
		ControlPollInterval: time.Millisecond,
		MaxSteps:            10,
	}

	err := eng.Run(context.Background())
	require.NoError(t, err, "a halt command must stop the run cleanly, not error it")

	got := drain(events)
	var sawOverride, sawHalt bool
	for _, ev := range got {
		if ev.Type == "message" && ev.Message.Kind == memory.KindSystem && ev.Message.PlainText() == "the user overrode the run." {
			sawOverride = true
		}
		if ev.Type == "halt" {
			sawHalt = true
		}
	}
	require.True(t, sawOverride, "expected the control-override system notice")
	require.True(t, sawHalt)
}

// sendMessageStub mirrors tools/base.SendMessageTool's behavior without an
// import cycle concern, keeping this test self-contained.
type sendMessageStub struct{}

func (sendMessageStub) Name() string { return "send_message" }
func (sendMessageStub) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Send a message directly to the user.",
		"parameters": map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []string{"text"},
		},
	}
}
func (sendMessageStub) Call(_ context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "text": args.Text}, nil
}
