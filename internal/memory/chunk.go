package memory

import (
	"strings"

	"continuum/internal/llm"
)

// ChunkText splits text into chunks of at most maxTokens tokens, using
// llm.EstimateTokens as the tokenizer-aware size heuristic. Splits occur on
// whitespace boundaries so words are never broken mid-token.
func ChunkText(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = 128
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var cur []string
	curTokens := 0
	for _, w := range words {
		wTokens := llm.EstimateTokens(w)
		if curTokens+wTokens > maxTokens && len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, " "))
			cur = nil
			curTokens = 0
		}
		cur = append(cur, w)
		curTokens += wTokens
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, " "))
	}
	return chunks
}
