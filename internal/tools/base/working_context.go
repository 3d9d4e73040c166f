// Package base implements the base tool set that is always available to an
// agent, regardless of its optional tool sets: Working Context mutation,
// Archival Storage, Recall Storage, Chat Log search, and send_message.
package base

import (
	"context"
	"encoding/json"
	"fmt"

	"continuum/internal/memory"
	"continuum/internal/persistence"
)

func decodeArgs(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

type personaTarget struct {
	Target string `json:"target"`
	Text   string `json:"text"`
}

// PersonaAppendTool implements persona_append: append text to either the
// Agent Persona or the User Persona, subject to the PERSONA_MAX_WORDS cap.
type PersonaAppendTool struct{ Mem *memory.Manager }

func (t *PersonaAppendTool) Name() string { return "persona_append" }

func (t *PersonaAppendTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Append text to the agent's own persona or the user persona.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target": map[string]any{"type": "string", "enum": []string{"agent", "user"}},
				"text":   map[string]any{"type": "string"},
			},
			"required": []string{"target", "text"},
		},
	}
}

func (t *PersonaAppendTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args personaTarget
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	switch args.Target {
	case "agent":
		if err := t.Mem.Working.AppendAgentPersona(ctx, args.Text); err != nil {
			return nil, err
		}
	case "user":
		if err := t.Mem.Working.AppendUserPersona(ctx, args.Text); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("target must be %q or %q", "agent", "user")
	}
	return map[string]any{"ok": true}, nil
}

// PersonaReplaceTool implements persona_replace: overwrite either persona
// wholesale, subject to the same word cap as persona_append.
type PersonaReplaceTool struct{ Mem *memory.Manager }

func (t *PersonaReplaceTool) Name() string { return "persona_replace" }

func (t *PersonaReplaceTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Replace the agent's own persona or the user persona wholesale.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target": map[string]any{"type": "string", "enum": []string{"agent", "user"}},
				"text":   map[string]any{"type": "string"},
			},
			"required": []string{"target", "text"},
		},
	}
}

func (t *PersonaReplaceTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args personaTarget
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	switch args.Target {
	case "agent":
		if err := t.Mem.Working.SetAgentPersona(ctx, args.Text); err != nil {
			return nil, err
		}
	case "user":
		if err := t.Mem.Working.SetUserPersona(ctx, args.Text); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("target must be %q or %q", "agent", "user")
	}
	return map[string]any{"ok": true}, nil
}

// PushTaskTool implements push_task: enqueue a new task, one per call.
type PushTaskTool struct{ Mem *memory.Manager }

func (t *PushTaskTool) Name() string { return "push_task" }

func (t *PushTaskTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Push a new task onto the agent's task queue.",
		"parameters": map[string]any{
			"type":       "object",
			"properties": map[string]any{"task": map[string]any{"type": "string"}},
			"required":   []string{"task"},
		},
	}
}

func (t *PushTaskTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Task string `json:"task"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := t.Mem.Working.PushTask(ctx, args.Task); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// PopTaskTool implements pop_task: dequeue and return the oldest task.
type PopTaskTool struct{ Mem *memory.Manager }

func (t *PopTaskTool) Name() string { return "pop_task" }

func (t *PopTaskTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Pop the oldest task off the agent's task queue, marking it done.",
		"parameters":  map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func (t *PopTaskTool) Call(ctx context.Context, _ json.RawMessage) (any, error) {
	task, err := t.Mem.Working.PopTask(ctx)
	if err != nil {
		if err == persistence.ErrTaskQueueEmpty {
			return map[string]any{"ok": false, "error": "task queue is empty"}, nil
		}
		return nil, err
	}
	return map[string]any{"ok": true, "task": task}, nil
}
