package memory

import (
	"context"
	"fmt"
	"time"

	"continuum/internal/llm"
)

// Assembler builds the LLM-visible context from system prompt + working
// context render + recursive summary + FIFO messages, and measures token
// occupancy as a best-effort control signal.
type Assembler struct {
	systemPrompt string
	tokenizer    llm.Tokenizer
}

func NewAssembler(systemPrompt string, tokenizer llm.Tokenizer) *Assembler {
	return &Assembler{systemPrompt: systemPrompt, tokenizer: tokenizer}
}

// AssembledContext is the result of BuildContext: the role-tagged entries
// ready to send to the LLM, plus the measured token occupancy.
type AssembledContext struct {
	Messages      []llm.Message
	InContextToks int
}

// BuildContext assembles:
//  1. one system entry: SYSTEM_PROMPT + memory-status block.
//  2. all FIFO messages, role-translated so that runs of consecutive
//     non-assistant messages collapse into a single user entry and each
//     assistant message stays its own entry — satisfying backends that
//     require strict user/assistant alternation without losing the finer
//     internal kinds (those survive in Recall/ChatLog, not in this view).
//  3. the current summary, folded onto the user side of that translation
//     (prepended to the first non-assistant entry, or a new leading user
//     entry if none exists) so the context begins with exactly one system
//     entry and alternates user/assistant thereafter (I6).
func (a *Assembler) BuildContext(ctx context.Context, memoryStatus string, summary string, summaryUpdatedAt time.Time, fifo []Message, toolSchemaCount int) (AssembledContext, error) {
	systemEntry := a.systemPrompt + "\n\n" + memoryStatus
	out := []llm.Message{{Role: "system", Content: systemEntry}}

	translated := roleTranslate(fifo)
	out = append(out, withSummary(renderSummary(summary, summaryUpdatedAt), translated)...)

	toks, err := a.countTokens(ctx, out)
	if err != nil {
		return AssembledContext{}, fmt.Errorf("count context tokens: %w", err)
	}
	return AssembledContext{Messages: out, InContextToks: toks}, nil
}

// withSummary folds summaryText onto the user side of msgs: merged into the
// leading entry if it's a user entry, else inserted as a new leading user
// entry. This keeps the summary in the context without introducing a second
// system entry (I6).
func withSummary(summaryText string, msgs []llm.Message) []llm.Message {
	if len(msgs) > 0 && msgs[0].Role == "user" {
		out := make([]llm.Message, len(msgs))
		copy(out, msgs)
		out[0] = llm.Message{Role: "user", Content: summaryText + "\n\n" + out[0].Content}
		return out
	}
	out := make([]llm.Message, 0, len(msgs)+1)
	out = append(out, llm.Message{Role: "user", Content: summaryText})
	out = append(out, msgs...)
	return out
}

func renderSummary(summary string, at time.Time) string {
	if summary == "" {
		return "No prior summary. This is the start of the recorded conversation."
	}
	return fmt.Sprintf("Conversation summary (as of %s):\n%s", at.UTC().Format(time.RFC3339), summary)
}

// roleTranslate collapses runs of consecutive non-assistant FIFO messages
// into a single user entry; each assistant message becomes its own entry.
func roleTranslate(fifo []Message) []llm.Message {
	var out []llm.Message
	var pending []string
	flush := func() {
		if len(pending) == 0 {
			return
		}
		out = append(out, llm.Message{Role: "user", Content: joinLines(pending)})
		pending = nil
	}
	for _, m := range fifo {
		if m.Kind == KindAssistant {
			flush()
			out = append(out, llm.Message{Role: "assistant", Content: m.PlainText()})
			continue
		}
		pending = append(pending, m.PlainText())
	}
	flush()
	return out
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func (a *Assembler) countTokens(ctx context.Context, msgs []llm.Message) (int, error) {
	if a.tokenizer != nil {
		n, err := a.tokenizer.CountMessagesTokens(ctx, msgs)
		if err == nil {
			return n, nil
		}
	}
	return llm.EstimateTokensForMessages(msgs), nil
}
