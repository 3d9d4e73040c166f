package base

import (
	"context"
	"encoding/json"
)

// SendMessageTool implements send_message, the only function whose result
// the heartbeat engine surfaces to the user directly.
type SendMessageTool struct{}

func (t *SendMessageTool) Name() string { return "send_message" }

func (t *SendMessageTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Send a message directly to the user. This is the only function whose output the user can see.",
		"parameters": map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []string{"text"},
		},
	}
}

func (t *SendMessageTool) Call(_ context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "text": args.Text}, nil
}
