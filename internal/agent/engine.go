// Package agent implements the heartbeat control loop that drives one
// conversational agent's run: CallAgent assembles context and calls the
// model, RunTool/InvalidTool dispatches the requested function, and
// ExitOrContinue decides whether another heartbeat fires or the run halts.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"continuum/internal/llm"
	"continuum/internal/memory"
	"continuum/internal/observability"
	"continuum/internal/tools"
)

// sendMessageTool is the base tool name treated as a user-visible send: its
// function-result turn is mirrored into the Chat Log and surfaced to the
// session as a to_user event.
const sendMessageTool = "send_message"

// Tracer receives span events for each heartbeat state. OTELTracer and
// NullTracer both satisfy this shape without needing to import this package.
type Tracer interface {
	Start(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error))
}

// Event is a single worker-to-supervisor frame, tagged the way the session
// channel's message_type discriminator is: message, debug, error, to_user,
// halt, ping.
type Event struct {
	Type    string
	Message memory.Message
	Text    string
	Err     error
}

// Engine runs one agent's heartbeat loop over its memory manager and tool
// registry until the model's do_heartbeat flag goes false or the run halts
// on an unrecoverable error.
type Engine struct {
	Memory *memory.Manager
	LLM    llm.Provider
	Tools  tools.Registry
	Model  string

	// Tracer receives a span per heartbeat state; defaults to a no-op.
	Tracer Tracer

	// Events, if set, receives every worker-to-supervisor frame in emission
	// order (I1/ordering guarantee in §5).
	Events chan<- Event

	// Control delivers session control commands ("halt", "halt_soon", or
	// anything else, which is a ControlViolation treated as halt) polled
	// once per ExitOrContinue tick.
	Control <-chan string

	// ControlPollInterval bounds how long ExitOrContinue waits for a
	// pending control command before falling through to the overthink
	// guard. Defaults to 250ms.
	ControlPollInterval time.Duration

	// OverthinkN is the number of heartbeats without a warning before the
	// overthink guard fires. Defaults to 50.
	OverthinkN int

	// ValidationRetries bounds CallAgent's schema-validation retry budget
	// (R in the error-handling design). Defaults to 10.
	ValidationRetries int

	// MaxSteps bounds the number of CallAgent iterations a single Run call
	// may take before it is force-halted as a runaway-loop backstop. 0
	// means unbounded.
	MaxSteps int

	// Tokenizer provides accurate token counting when available; nil falls
	// back to heuristic estimation inside the memory package.
	Tokenizer                      llm.Tokenizer
	TokenizationFallbackToHeuristic bool
}

// AttachTokenizer wires an accurate tokenizer into the engine when the
// provider exposes one. Providers that support the OpenAI Responses or
// Anthropic count_tokens endpoints accept an optional cache; cache is
// forwarded to the provider unchanged and may be nil.
func (e *Engine) AttachTokenizer(provider any, cache *llm.TokenCache) {
	if e == nil || provider == nil {
		return
	}

	type tokenizableProvider interface {
		Tokenizer(cache *llm.TokenCache) llm.Tokenizer
	}

	p, ok := provider.(tokenizableProvider)
	if !ok {
		return
	}

	if tok := p.Tokenizer(cache); tok != nil {
		e.Tokenizer = tok
		e.TokenizationFallbackToHeuristic = true
	}
}

func (e *Engine) pollInterval() time.Duration {
	if e.ControlPollInterval <= 0 {
		return 250 * time.Millisecond
	}
	return e.ControlPollInterval
}

func (e *Engine) overthinkN() int {
	if e.OverthinkN <= 0 {
		return 50
	}
	return e.OverthinkN
}

func (e *Engine) validationRetries() int {
	if e.ValidationRetries <= 0 {
		return 10
	}
	return e.ValidationRetries
}

// countTokens returns the token count for text using the engine's
// tokenizer if available, otherwise falls back to heuristic estimation.
func (e *Engine) countTokens(ctx context.Context, text string) int {
	if e.Tokenizer == nil {
		return llm.EstimateTokens(text)
	}
	count, err := e.Tokenizer.CountTokens(ctx, text)
	if err != nil {
		observability.LoggerWithTrace(ctx).Debug().Err(err).Msg("tokenization_failed_using_heuristic")
		return llm.EstimateTokens(text)
	}
	return count
}

func (e *Engine) tracer() Tracer {
	if e.Tracer != nil {
		return e.Tracer
	}
	return &NullTracer{}
}

func (e *Engine) emit(ev Event) {
	if e.Events != nil {
		e.Events <- ev
	}
}

// Run drives the heartbeat loop to completion: CallAgent, then RunTool or
// InvalidTool, then ExitOrContinue, repeating while the heartbeat stays
// true. It returns nil on an ordinary halt and a non-nil error when the
// run halts on an unrecoverable error (ValidationFailure persisting past
// its retry budget, or a memory/tool-dispatch failure that escapes local
// handling), when MaxSteps is exceeded, or when ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	heartbeat := true
	loopsSinceOverthink := 0
	warned := false
	steps := 0

	for {
		steps++
		if e.MaxSteps > 0 && steps > e.MaxSteps {
			e.halt(ctx, "max steps exceeded")
			return fmt.Errorf("heartbeat chain exceeded max steps (%d)", e.MaxSteps)
		}

		call, known, err := e.callAgent(ctx)
		if err != nil {
			e.emit(Event{Type: "error", Err: err})
			e.halt(ctx, "validation failure")
			return err
		}
		heartbeat = call.DoHeartbeat

		if known {
			forced, rerr := e.runTool(ctx, call)
			if rerr != nil {
				e.emit(Event{Type: "error", Err: rerr})
				e.halt(ctx, "tool execution error")
				return rerr
			}
			if forced {
				heartbeat = true
			}
		} else {
			if ierr := e.invalidTool(ctx, call); ierr != nil {
				e.emit(Event{Type: "error", Err: ierr})
				e.halt(ctx, "invalid tool bookkeeping error")
				return ierr
			}
			heartbeat = true
		}

		cont, err := e.exitOrContinue(ctx, &heartbeat, &loopsSinceOverthink, &warned)
		if err != nil {
			e.emit(Event{Type: "error", Err: err})
			e.halt(ctx, "memory error")
			return err
		}
		if !cont {
			e.halt(ctx, "heartbeat false")
			return nil
		}

		select {
		case <-ctx.Done():
			e.halt(ctx, "cancelled")
			return ctx.Err()
		default:
		}
	}
}

// callAgent assembles the LLM-visible context, calls the model, and
// validates its response against the assistant turn wire format, retrying
// up to the validation budget on schema failure.
func (e *Engine) callAgent(ctx context.Context) (call memory.FunctionCall, known bool, err error) {
	ctx, end := e.tracer().Start(ctx, "CallAgent", nil)
	defer func() { end(err) }()

	schemas := e.Tools.Schemas()
	assembled, aerr := e.Memory.BuildContext(ctx, len(schemas))
	if aerr != nil {
		err = fmt.Errorf("assemble context: %w", aerr)
		return
	}
	if len(assembled.Messages) > 0 {
		assembled.Messages[0].Content += "\n\n" + renderToolSchemas(schemas)
	}

	retries := e.validationRetries()
	var parsed memory.AssistantContent
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		resp, cerr := e.LLM.Chat(ctx, assembled.Messages, nil, e.Model)
		if cerr != nil {
			lastErr = fmt.Errorf("llm chat: %w", cerr)
			continue
		}
		parsed, lastErr = parseAssistantTurn(resp.Content)
		if lastErr == nil {
			break
		}
		observability.LoggerWithTrace(ctx).Debug().
			Err(lastErr).
			Int("attempt", attempt).
			Int("response_tokens", e.countTokens(ctx, resp.Content)).
			Msg("assistant_turn_validation_retry")
	}
	if lastErr != nil {
		err = fmt.Errorf("assistant turn validation failed after %d attempts: %w", retries, lastErr)
		return
	}

	now := time.Now().UTC()
	msg := memory.NewAssistantMessage(parsed, now)
	if perr := e.Memory.PushMessage(ctx, msg); perr != nil {
		err = fmt.Errorf("push assistant turn: %w", perr)
		return
	}
	if perr := e.Memory.PushChatLog(ctx, string(memory.KindAssistant), now, msg.PlainText()); perr != nil {
		err = fmt.Errorf("push chat log: %w", perr)
		return
	}
	e.emit(Event{Type: "message", Message: msg})

	call = parsed.Call
	known = e.toolKnown(call.Name)
	return
}

// parseAssistantTurn validates raw model output against the assistant turn
// schema, falling back once to a nested {"content": "..."} shape in case
// the model conformed to the input schema instead of the output schema.
func parseAssistantTurn(raw string) (memory.AssistantContent, error) {
	content, err := memory.ExtractYAML(raw)
	if err == nil {
		return content, nil
	}

	var wrapper struct {
		Content string `json:"content"`
	}
	if jerr := json.Unmarshal([]byte(raw), &wrapper); jerr == nil && wrapper.Content != "" {
		if nested, nerr := memory.ExtractYAML(wrapper.Content); nerr == nil {
			return nested, nil
		}
	}
	return memory.AssistantContent{}, err
}

func (e *Engine) toolKnown(name string) bool {
	for _, s := range e.Tools.Schemas() {
		if s.Name == name {
			return true
		}
	}
	return false
}

// runTool validates and dispatches a known function call, appending its
// function-result turn to FIFO and Recall (and to the Chat Log when the
// tool is a user-visible send). It reports forceHeartbeat=true when the
// tool failed, per the ToolFailure propagation policy.
func (e *Engine) runTool(ctx context.Context, call memory.FunctionCall) (forceHeartbeat bool, err error) {
	ctx, end := e.tracer().Start(ctx, "RunTool", map[string]any{"tool": call.Name})
	defer func() { end(err) }()

	argsJSON, merr := json.Marshal(call.Arguments)
	if merr != nil {
		err = fmt.Errorf("marshal tool arguments: %w", merr)
		return
	}

	payload, derr := e.Tools.Dispatch(ctx, call.Name, argsJSON)
	now := time.Now().UTC()

	success := derr == nil
	result := payload
	if derr != nil {
		success = false
		if b, merr := json.Marshal(derr.Error()); merr == nil {
			result = b
		}
		forceHeartbeat = true
	} else {
		var probe struct {
			OK    *bool  `json:"ok"`
			Error string `json:"error"`
		}
		_ = json.Unmarshal(payload, &probe)
		if probe.OK != nil {
			success = *probe.OK
		}
		if probe.Error != "" {
			success = false
		}
		if !success {
			forceHeartbeat = true
		}
	}

	msg := memory.NewFunctionResultMessage(success, result, now)
	if perr := e.Memory.PushMessage(ctx, msg); perr != nil {
		err = fmt.Errorf("push function result: %w", perr)
		return
	}
	if call.Name == sendMessageTool {
		if perr := e.Memory.PushChatLog(ctx, string(memory.KindFunctionResult), now, msg.PlainText()); perr != nil {
			err = fmt.Errorf("push chat log: %w", perr)
			return
		}
	}
	e.emit(Event{Type: "message", Message: msg})
	if call.Name == sendMessageTool && success {
		e.emit(Event{Type: "to_user", Text: extractSendMessageText(result)})
	}
	return
}

// invalidTool synthesizes the function-does-not-exist result required when
// the model names a tool outside the registry.
func (e *Engine) invalidTool(ctx context.Context, call memory.FunctionCall) (err error) {
	ctx, end := e.tracer().Start(ctx, "InvalidTool", map[string]any{"tool": call.Name})
	defer func() { end(err) }()

	now := time.Now().UTC()
	msg := memory.NewFunctionResultMessage(false, json.RawMessage(`"Function does not exist"`), now)
	if perr := e.Memory.PushMessage(ctx, msg); perr != nil {
		err = fmt.Errorf("push invalid tool result: %w", perr)
		return
	}
	e.emit(Event{Type: "message", Message: msg})
	return nil
}

// exitOrContinue applies the four ExitOrContinue policies in order, each at
// most once per tick, and reports whether the loop should continue.
func (e *Engine) exitOrContinue(ctx context.Context, heartbeat *bool, loopsSinceOverthink *int, warned *bool) (cont bool, err error) {
	ctx, end := e.tracer().Start(ctx, "ExitOrContinue", nil)
	defer func() { end(err) }()

	*loopsSinceOverthink++

	assembled, aerr := e.Memory.BuildContext(ctx, len(e.Tools.Schemas()))
	if aerr != nil {
		err = fmt.Errorf("measure context: %w", aerr)
		return
	}
	warn, flush := e.Memory.FlushThresholds(assembled.InContextToks)

	switch {
	case flush:
		// Policy 1: context overflow.
		e.systemNotice(ctx, "context window pressure crossed the flush threshold; consolidating memory now.")
		*warned = false
		if _, ferr := e.Memory.RunFlush(ctx); ferr != nil {
			err = fmt.Errorf("recursive summarizer: %w", ferr)
			return
		}

	case !*warned && warn:
		// Policy 2: context warning.
		e.systemNotice(ctx, "approaching the context window limit; persist anything important to working context or archival storage.")
		*warned = true
		*loopsSinceOverthink = 0
		*heartbeat = true

	default:
		// Policy 3: user-initiated control, polled for a bounded window.
		select {
		case cmd, ok := <-e.Control:
			if ok {
				switch cmd {
				case "halt_soon":
					e.systemNotice(ctx, "please wind down; the user asked to stop soon.")
					*loopsSinceOverthink = 0
				default:
					// "halt" and any unrecognized command (ControlViolation)
					// are both treated as halt.
					e.systemNotice(ctx, "the user overrode the run.")
					*heartbeat = false
				}
			}

		case <-time.After(e.pollInterval()):
			// No control command pending: policy 4, the overthink guard.
			if *loopsSinceOverthink >= e.overthinkN() && *heartbeat {
				e.systemNotice(ctx, "reconsider whether this task truly requires another step.")
				*loopsSinceOverthink = 0
			}
		}
	}

	cont = *heartbeat
	return
}

// systemNotice appends a system-kind message to FIFO/Recall and emits it to
// the session, used by every ExitOrContinue policy.
func (e *Engine) systemNotice(ctx context.Context, text string) {
	msg := memory.NewSystemMessage(text, time.Now().UTC())
	if err := e.Memory.PushMessage(ctx, msg); err != nil {
		e.emit(Event{Type: "error", Err: fmt.Errorf("push system notice: %w", err)})
		return
	}
	e.emit(Event{Type: "message", Message: msg})
}

// halt emits the terminal halt event; releasing the per-agent lock and
// closing the outbound channel are the supervisor's responsibility.
func (e *Engine) halt(ctx context.Context, cause string) {
	ctx, end := e.tracer().Start(ctx, "Halt", map[string]any{"cause": cause})
	defer end(nil)
	e.emit(Event{Type: "halt", Text: cause})
}

// renderToolSchemas documents the registry's available functions in the
// system entry, since the assistant turn's function_call is driven by the
// model's own judgment rather than provider-native tool-calling.
func renderToolSchemas(schemas []llm.ToolSchema) string {
	if len(schemas) == 0 {
		return "## Available Functions\n(none)"
	}
	var b strings.Builder
	b.WriteString("## Available Functions\n")
	for _, s := range schemas {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
		if len(s.Parameters) > 0 {
			if pj, err := json.Marshal(s.Parameters); err == nil {
				fmt.Fprintf(&b, "  arguments schema: %s\n", string(pj))
			}
		}
	}
	return b.String()
}

func extractSendMessageText(raw json.RawMessage) string {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Text != "" {
		return payload.Text
	}
	return string(raw)
}
