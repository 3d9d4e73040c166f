package base

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"continuum/internal/memory"
)

// RecallSearchTool implements recall_search: substring search over the
// agent's entire conversation history, newest first.
type RecallSearchTool struct{ Mem *memory.Manager }

func (t *RecallSearchTool) Name() string { return "recall_search" }

func (t *RecallSearchTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Search the agent's entire conversation history for text, newest first.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":  map[string]any{"type": "string"},
				"offset": map[string]any{"type": "integer"},
				"limit":  map[string]any{"type": "integer"},
			},
			"required": []string{"query"},
		},
	}
}

func (t *RecallSearchTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Query  string `json:"query"`
		Offset int    `json:"offset"`
		Limit  int    `json:"limit"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Limit <= 0 {
		args.Limit = 20
	}
	msgs, err := t.Mem.Recall.TextSearch(ctx, args.Query, args.Offset, args.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "messages": renderMessages(msgs)}, nil
}

// RecallSearchByDateTool implements recall_search_by_date: windowed
// conversation-history lookup by an RFC3339 [start, end] range.
type RecallSearchByDateTool struct{ Mem *memory.Manager }

func (t *RecallSearchByDateTool) Name() string { return "recall_search_by_date" }

func (t *RecallSearchByDateTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Search the agent's conversation history within an RFC3339 date range, newest first.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"start":  map[string]any{"type": "string", "description": "RFC3339 timestamp"},
				"end":    map[string]any{"type": "string", "description": "RFC3339 timestamp"},
				"offset": map[string]any{"type": "integer"},
				"limit":  map[string]any{"type": "integer"},
			},
			"required": []string{"start", "end"},
		},
	}
}

func (t *RecallSearchByDateTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Start  string `json:"start"`
		End    string `json:"end"`
		Offset int    `json:"offset"`
		Limit  int    `json:"limit"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	start, err := time.Parse(time.RFC3339, args.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid start timestamp: %w", err)
	}
	end, err := time.Parse(time.RFC3339, args.End)
	if err != nil {
		return nil, fmt.Errorf("invalid end timestamp: %w", err)
	}
	if args.Limit <= 0 {
		args.Limit = 20
	}
	msgs, err := t.Mem.Recall.DateSearch(ctx, start, end, args.Offset, args.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "messages": renderMessages(msgs)}, nil
}

func renderMessages(msgs []memory.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]any{
			"kind":      m.Kind,
			"timestamp": m.Timestamp.UTC().Format(time.RFC3339),
			"text":      m.PlainText(),
		})
	}
	return out
}
