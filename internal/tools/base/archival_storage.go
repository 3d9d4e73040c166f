package base

import (
	"context"
	"encoding/json"

	"continuum/internal/memory"
)

// ArchivalInsertTool implements archival_insert: chunk and store arbitrary
// text in the agent's archival vector collection under a category label.
type ArchivalInsertTool struct{ Mem *memory.Manager }

func (t *ArchivalInsertTool) Name() string { return "archival_insert" }

func (t *ArchivalInsertTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Insert text into archival storage, chunked and tagged with a category.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text":     map[string]any{"type": "string"},
				"category": map[string]any{"type": "string", "description": "free-form topic label"},
			},
			"required": []string{"text", "category"},
		},
	}
}

func (t *ArchivalInsertTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Text     string `json:"text"`
		Category string `json:"category"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	chunks, err := t.Mem.Archival.Insert(ctx, args.Text, args.Category)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "chunks_inserted": chunks}, nil
}

// ArchivalSearchTool implements archival_search: similarity search over the
// agent's archival collection, optionally filtered by category.
type ArchivalSearchTool struct{ Mem *memory.Manager }

func (t *ArchivalSearchTool) Name() string { return "archival_search" }

func (t *ArchivalSearchTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Search archival storage by similarity to a query, returning a page of hits.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":    map[string]any{"type": "string"},
				"category": map[string]any{"type": "string", "description": "optional category filter"},
				"offset":   map[string]any{"type": "integer"},
				"count":    map[string]any{"type": "integer"},
			},
			"required": []string{"query"},
		},
	}
}

func (t *ArchivalSearchTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Query    string `json:"query"`
		Category string `json:"category"`
		Offset   int    `json:"offset"`
		Count    int    `json:"count"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Count <= 0 {
		args.Count = 10
	}
	hits, err := t.Mem.Archival.Search(ctx, args.Query, args.Offset, args.Count, args.Category)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "hits": hits}, nil
}
