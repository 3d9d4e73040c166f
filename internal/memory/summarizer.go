package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"continuum/internal/llm"
)

// RecursiveSummaryPrompt is the system prompt sent alongside the eviction
// set when condensing evicted FIFO messages into the rolling summary.
const RecursiveSummaryPrompt = `You are the memory-consolidation subroutine of a long-lived conversational agent.
You will be given the agent's current rolling summary followed by a chronological
batch of messages about to be evicted from its short-term memory. Produce a new,
single rolling summary that preserves every fact, decision, and commitment a
long-running assistant would need to keep acting coherently, written in third
person and organized by topic rather than by turn. Respond with a single fenced
yaml block:

` + "```yaml\nanalysis: <one paragraph reasoning about what matters and what is safe to drop>\nsummary: <the new rolling summary text>\n```"

// SummaryResult carries the outcome of a completed flush.
type SummaryResult struct {
	Analysis        string
	Summary         string
	EvictedCount    int
	RemainingInFIFO int
}

// Flusher drives the recursive summarization flush policy described in the
// spec's recursive summarizer component: it evicts a prefix of the FIFO
// queue into the rolling summary once the assembled context crosses
// FLUSH_FRAC of the context window.
type Flusher struct {
	llmProvider llm.Provider
	model       string
	fmin        int
	flushTgtFrc float64
	ctxWindow   int
	retries     int
}

func NewFlusher(provider llm.Provider, model string, ctxWindow, fmin int, flushTargetFraction float64, retries int) *Flusher {
	if retries <= 0 {
		retries = 10
	}
	return &Flusher{llmProvider: provider, model: model, fmin: fmin, flushTgtFrc: flushTargetFraction, ctxWindow: ctxWindow, retries: retries}
}

// estimateTokens is a local, cheap in-context estimate over serialized
// messages; exact accounting is not required (§4.2).
func estimateTokens(msgs []Message, summary string) int {
	total := llm.EstimateTokens(summary)
	for _, m := range msgs {
		total += llm.EstimateTokens(m.PlainText())
	}
	return total
}

// Flush evicts a prefix of fifo (oldest first) per the flush policy, calls
// the LLM to condense the eviction set into a new summary, and returns the
// result plus the number of leading messages that must be popped from the
// FIFO queue. It does not itself touch the FIFO store — callers pop exactly the
// returned count from the head after a successful summarization call, so a
// failed LLM call leaves the FIFO queue untouched and is safe to retry on
// the next tick.
func (f *Flusher) Flush(ctx context.Context, currentSummary string, summaryUpdatedAt time.Time, fifo []Message) (SummaryResult, int, error) {
	evictCount := f.planEviction(fifo)
	if evictCount == 0 {
		return SummaryResult{}, 0, nil
	}
	evicted := fifo[:evictCount]
	remaining := len(fifo) - evictCount

	prompt := f.renderEvictionPrompt(currentSummary, summaryUpdatedAt, evicted)

	var lastErr error
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < f.retries; attempt++ {
		resp, err := f.llmProvider.Chat(ctx, []llm.Message{
			{Role: "system", Content: RecursiveSummaryPrompt},
			{Role: "user", Content: prompt},
		}, nil, f.model)
		if err == nil {
			analysis, summary, perr := parseSummaryYAML(resp.Content)
			if perr == nil {
				return SummaryResult{Analysis: analysis, Summary: summary, EvictedCount: evictCount, RemainingInFIFO: remaining}, evictCount, nil
			}
			lastErr = perr
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return SummaryResult{}, 0, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return SummaryResult{}, 0, fmt.Errorf("recursive summarizer: exhausted %d retries: %w", f.retries, lastErr)
}

// planEviction decides how many leading FIFO messages to evict, per the
// exact policy in §4.3: keep popping while (in-context pressure remains OR
// the head is non-user) AND (we're above the floor OR the head is
// assistant/function_result).
func (f *Flusher) planEviction(fifo []Message) int {
	target := f.flushTgtFrc * float64(f.ctxWindow)
	i := 0
	for i < len(fifo) {
		remaining := fifo[i:]
		inCtx := estimateTokens(remaining, "")
		head := fifo[i]

		pressureOrNonUser := float64(inCtx) > target || head.Kind != KindUser
		aboveFloorOrDisposable := len(remaining) > f.fmin || head.Kind == KindAssistant || head.Kind == KindFunctionResult
		if !(pressureOrNonUser && aboveFloorOrDisposable) {
			break
		}
		i++
	}
	return i
}

func (f *Flusher) renderEvictionPrompt(summary string, summaryAt time.Time, evicted []Message) string {
	var b strings.Builder
	b.WriteString(renderSummary(summary, summaryAt))
	b.WriteString("\n\n---\nMessages being evicted (oldest first):\n")
	for _, m := range evicted {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.UTC().Format(time.RFC3339), m.Kind, m.PlainText())
	}
	return b.String()
}

type summaryYAML struct {
	Analysis string `yaml:"analysis"`
	Summary  string `yaml:"summary"`
}

func parseSummaryYAML(raw string) (analysis, summary string, err error) {
	cleaned := stripLoneSurrogates(raw)
	matches := yamlFenceRe.FindAllStringSubmatch(cleaned, -1)
	if len(matches) == 0 {
		return "", "", fmt.Errorf("no fenced yaml block found in summarizer output")
	}
	var parsed summaryYAML
	if err := yaml.Unmarshal([]byte(matches[len(matches)-1][1]), &parsed); err != nil {
		return "", "", fmt.Errorf("parse summary yaml: %w", err)
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return "", "", fmt.Errorf("summary field is empty")
	}
	return parsed.Analysis, parsed.Summary, nil
}
