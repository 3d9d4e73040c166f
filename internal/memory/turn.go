package memory

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf16"

	"gopkg.in/yaml.v3"
)

// assistantTurnYAML mirrors the wire format documented in the assistant
// turn contract: a fenced ```yaml block with emotions/thoughts/function_call.
type assistantTurnYAML struct {
	Emotions [][2]any `yaml:"emotions"`
	Thoughts []string `yaml:"thoughts"`
	Call     struct {
		Name        string         `yaml:"name"`
		Arguments   map[string]any `yaml:"arguments"`
		DoHeartbeat bool           `yaml:"do_heartbeat"`
	} `yaml:"function_call"`
}

var (
	thinkBlockRe = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)
	yamlFenceRe  = regexp.MustCompile("(?s)```ya?ml\\s*\\n(.*?)```")
)

// ExtractYAML finds the assistant turn's fenced YAML block inside raw model
// output, tolerating a leading <think>...</think> block and picking the
// last fenced yaml block if several appear, then parses it into an
// AssistantContent. It strips lone (unpaired) UTF-16 surrogate code points
// that some backends leak into streamed text before parsing.
func ExtractYAML(raw string) (AssistantContent, error) {
	cleaned := stripLoneSurrogates(raw)
	cleaned = thinkBlockRe.ReplaceAllString(cleaned, "")

	matches := yamlFenceRe.FindAllStringSubmatch(cleaned, -1)
	if len(matches) == 0 {
		return AssistantContent{}, fmt.Errorf("no fenced yaml block found in assistant output")
	}
	block := matches[len(matches)-1][1]

	var parsed assistantTurnYAML
	if err := yaml.Unmarshal([]byte(block), &parsed); err != nil {
		return AssistantContent{}, fmt.Errorf("parse assistant yaml: %w", err)
	}
	return toAssistantContent(parsed)
}

func toAssistantContent(parsed assistantTurnYAML) (AssistantContent, error) {
	if strings.TrimSpace(parsed.Call.Name) == "" {
		return AssistantContent{}, fmt.Errorf("function_call.name is required")
	}
	emotions := make([]EmotionScore, 0, len(parsed.Emotions))
	for _, pair := range parsed.Emotions {
		if len(pair) != 2 {
			continue
		}
		label, _ := pair[0].(string)
		intensity := toInt(pair[1])
		if intensity < 1 || intensity > 10 {
			return AssistantContent{}, fmt.Errorf("emotion intensity %d out of range 1..10", intensity)
		}
		emotions = append(emotions, EmotionScore{Label: label, Intensity: intensity})
	}
	return AssistantContent{
		Emotions: emotions,
		Thoughts: append([]string(nil), parsed.Thoughts...),
		Call: FunctionCall{
			Name:        parsed.Call.Name,
			Arguments:   parsed.Call.Arguments,
			DoHeartbeat: parsed.Call.DoHeartbeat,
		},
	}, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}

// RenderYAML is the inverse of ExtractYAML's parse step: it renders an
// AssistantContent back into a fenced yaml block, used by tests to check
// the round-trip law.
func RenderYAML(c AssistantContent) (string, error) {
	out := assistantTurnYAML{}
	out.Emotions = make([][2]any, len(c.Emotions))
	for i, e := range c.Emotions {
		out.Emotions[i] = [2]any{e.Label, e.Intensity}
	}
	out.Thoughts = c.Thoughts
	out.Call.Name = c.Call.Name
	out.Call.Arguments = c.Call.Arguments
	out.Call.DoHeartbeat = c.Call.DoHeartbeat

	b, err := yaml.Marshal(out)
	if err != nil {
		return "", err
	}
	return "```yaml\n" + string(b) + "```", nil
}

// stripLoneSurrogates removes UTF-16 surrogate code points that survived
// into a Go string without a pairing partner (which utf8 renders as the
// replacement rune's byte sequence in practice, but some streaming backends
// leak raw \uD800-\uDFFF escapes through JSON decoding first).
func stripLoneSurrogates(s string) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		if utf16.IsSurrogate(r) {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
