package base

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"continuum/internal/memory"
	"continuum/internal/persistence"
)

// ChatLogSearchTool implements chat_log_search: substring search over the
// simplified, user-visible transcript, newest-first within a page (higher
// page numbers walk further into the past).
type ChatLogSearchTool struct{ Mem *memory.Manager }

func (t *ChatLogSearchTool) Name() string { return "chat_log_search" }

func (t *ChatLogSearchTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Search the user-visible chat log for text, paginated newest-first.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"page":  map[string]any{"type": "integer", "description": "0-indexed page, higher pages are further into the past"},
			},
			"required": []string{"query"},
		},
	}
}

func (t *ChatLogSearchTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Query string `json:"query"`
		Page  int    `json:"page"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	entries, err := t.Mem.ChatLog.RecentSearch(ctx, args.Query, args.Page*chatLogPageSize, chatLogPageSize)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "entries": renderChatLog(entries)}, nil
}

// ChatLogSearchByDateTool implements chat_log_search_by_date: windowed
// chat-log lookup by an RFC3339 [start, end] range.
type ChatLogSearchByDateTool struct{ Mem *memory.Manager }

func (t *ChatLogSearchByDateTool) Name() string { return "chat_log_search_by_date" }

func (t *ChatLogSearchByDateTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Search the user-visible chat log within an RFC3339 date range, newest first.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"start": map[string]any{"type": "string", "description": "RFC3339 timestamp"},
				"end":   map[string]any{"type": "string", "description": "RFC3339 timestamp"},
				"page":  map[string]any{"type": "integer"},
			},
			"required": []string{"start", "end"},
		},
	}
}

func (t *ChatLogSearchByDateTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Page  int    `json:"page"`
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
	entries, err := t.Mem.ChatLog.DateSearch(ctx, start, end, args.Page*chatLogPageSize, chatLogPageSize)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "entries": renderChatLog(entries)}, nil
}

const chatLogPageSize = 20

func renderChatLog(entries []persistence.ChatLogEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"kind":      e.Kind,
			"timestamp": e.Timestamp.UTC().Format(time.RFC3339),
			"text":      e.Text,
		})
	}
	return out
}
