package optional

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"continuum/internal/tools/web"
)

// WebSearchTool implements duckduckgo_instant_answer: a zero-key web search
// that queries the configured SearXNG instance when SearXNGURL is set, and
// DuckDuckGo's Instant Answer API otherwise.
type WebSearchTool struct {
	SearXNGURL string
	HTTPClient *http.Client
}

func (t *WebSearchTool) Name() string { return "duckduckgo_instant_answer" }

func (t *WebSearchTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Search the web for a short factual answer and a few related links.",
		"parameters": map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []string{"query"},
		},
	}
}

func (t *WebSearchTool) client() *http.Client {
	if t.HTTPClient != nil {
		return t.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (t *WebSearchTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(t.SearXNGURL) != "" {
		return t.searchSearXNG(ctx, args.Query)
	}
	return t.searchDuckDuckGo(ctx, args.Query)
}

type duckDuckGoResponse struct {
	Heading       string `json:"Heading"`
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (t *WebSearchTool) searchDuckDuckGo(ctx context.Context, query string) (any, error) {
	u := "https://api.duckduckgo.com/?q=" + url.QueryEscape(query) + "&format=json&no_html=1&skip_disambig=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request: %w", err)
	}
	defer resp.Body.Close()

	var parsed duckDuckGoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode duckduckgo response: %w", err)
	}

	related := make([]map[string]string, 0, len(parsed.RelatedTopics))
	for _, r := range parsed.RelatedTopics {
		if r.FirstURL == "" {
			continue
		}
		related = append(related, map[string]string{"text": r.Text, "url": r.FirstURL})
	}

	return map[string]any{
		"ok":             true,
		"heading":        parsed.Heading,
		"abstract":       parsed.AbstractText,
		"abstract_url":   parsed.AbstractURL,
		"related_topics": related,
	}, nil
}

func (t *WebSearchTool) searchSearXNG(ctx context.Context, query string) (any, error) {
	u := strings.TrimRight(t.SearXNGURL, "/") + "/search?q=" + url.QueryEscape(query) + "&format=json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng request: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode searxng response: %w", err)
	}

	results := make([]map[string]string, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, map[string]string{"title": r.Title, "url": r.URL, "content": r.Content})
	}
	return map[string]any{"ok": true, "results": results}, nil
}

// ScrapeWebpageTool implements scrape_webpage: fetch a URL and return its
// best-effort article Markdown, wrapping the shared web.Fetcher.
type ScrapeWebpageTool struct {
	Fetcher *web.Fetcher
}

func (t *ScrapeWebpageTool) Name() string { return "scrape_webpage" }

func (t *ScrapeWebpageTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Fetch a URL and return its main content as Markdown.",
		"parameters": map[string]any{
			"type":       "object",
			"properties": map[string]any{"url": map[string]any{"type": "string"}},
			"required":   []string{"url"},
		},
	}
}

func (t *ScrapeWebpageTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	fetcher := t.Fetcher
	if fetcher == nil {
		fetcher = web.NewFetcher()
	}
	result, err := fetcher.FetchMarkdown(ctx, args.URL)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"ok":       true,
		"title":    result.Title,
		"markdown": result.Markdown,
		"url":      result.FinalURL,
	}, nil
}
