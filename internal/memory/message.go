// Package memory implements the agent's hierarchical memory: Working
// Context, FIFO Queue, Recall Storage, Chat Log, and Archival Storage, plus
// the context assembler and recursive summarizer that let a conversation
// run unbounded despite the LLM's fixed context window.
package memory

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags the four message variants the system ever produces.
type Kind string

const (
	KindUser           Kind = "user"
	KindSystem         Kind = "system"
	KindAssistant      Kind = "assistant"
	KindFunctionResult Kind = "function_result"
)

// EmotionScore is a single (label, intensity) pair from an assistant turn.
type EmotionScore struct {
	Label     string `json:"label"`
	Intensity int    `json:"intensity"` // 1..10
}

// FunctionCall is the tool invocation an assistant turn requests.
type FunctionCall struct {
	Name        string         `json:"name"`
	Arguments   map[string]any `json:"arguments"`
	DoHeartbeat bool           `json:"do_heartbeat"`
}

// Content is the sum type of the four message content variants. Exactly one
// concrete implementation is stored per Message, selected by Kind.
type Content interface {
	isContent()
}

// TextContent is the content of user and system messages: a single string.
type TextContent struct {
	Text string `json:"text"`
}

func (TextContent) isContent() {}

// AssistantContent is the content of an assistant turn: the emotion/thought
// envelope plus the function call the model selected.
type AssistantContent struct {
	Emotions []EmotionScore `json:"emotions"`
	Thoughts []string       `json:"thoughts"`
	Call     FunctionCall   `json:"function_call"`
}

func (AssistantContent) isContent() {}

// FunctionResultContent is the content of a tool's reply.
type FunctionResultContent struct {
	Success bool `json:"success"`
	// Result is a string or structured value, per spec; stored as json.RawMessage
	// so arbitrary structured results round-trip without lossy stringification.
	Result json.RawMessage `json:"result"`
}

func (FunctionResultContent) isContent() {}

// Message is a single, immutable turn in an agent's conversation. Messages
// are created by the heartbeat loop and never mutated; they are only
// evicted from the FIFO tier (but never from Recall).
type Message struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Content   Content   `json:"content"`
}

// wireMessage is the on-the-wire / on-disk encoding: Content is split into a
// discriminator plus a raw payload so it survives JSON and SQL storage.
type wireMessage struct {
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Content   json.RawMessage `json:"content"`
}

// Serialize renders a Message to its standard wire format (used for DB
// storage, chat-template rendering, and recursive-summary prompts).
func (m Message) Serialize() ([]byte, error) {
	raw, err := json.Marshal(m.Content)
	if err != nil {
		return nil, fmt.Errorf("serialize content: %w", err)
	}
	return json.Marshal(wireMessage{Kind: m.Kind, Timestamp: m.Timestamp, Content: raw})
}

// DeserializeMessage parses the standard wire format back into a Message.
// Deserialize(Serialize(m)) == m for all four kinds (round-trip law R1).
func DeserializeMessage(b []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(b, &w); err != nil {
		return Message{}, fmt.Errorf("deserialize envelope: %w", err)
	}
	content, err := decodeContent(w.Kind, w.Content)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: w.Kind, Timestamp: w.Timestamp, Content: content}, nil
}

func decodeContent(kind Kind, raw json.RawMessage) (Content, error) {
	switch kind {
	case KindUser, KindSystem:
		var c TextContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode text content: %w", err)
		}
		return c, nil
	case KindAssistant:
		var c AssistantContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode assistant content: %w", err)
		}
		return c, nil
	case KindFunctionResult:
		var c FunctionResultContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode function result content: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown message kind %q", kind)
	}
}

// PlainText renders a Message's content as flat text for the chat-template
// view and for recall/chat-log substring search.
func (m Message) PlainText() string {
	switch c := m.Content.(type) {
	case TextContent:
		return c.Text
	case AssistantContent:
		b, _ := json.Marshal(c.Call)
		if len(c.Thoughts) == 0 {
			return string(b)
		}
		return c.Thoughts[len(c.Thoughts)-1] + " " + string(b)
	case FunctionResultContent:
		return string(c.Result)
	default:
		return ""
	}
}

// NewUserMessage builds a user-kind text message.
func NewUserMessage(text string, ts time.Time) Message {
	return Message{Kind: KindUser, Timestamp: ts, Content: TextContent{Text: text}}
}

// NewSystemMessage builds a system-kind text message.
func NewSystemMessage(text string, ts time.Time) Message {
	return Message{Kind: KindSystem, Timestamp: ts, Content: TextContent{Text: text}}
}

// NewAssistantMessage builds an assistant-kind message from a parsed turn.
func NewAssistantMessage(c AssistantContent, ts time.Time) Message {
	return Message{Kind: KindAssistant, Timestamp: ts, Content: c}
}

// NewFunctionResultMessage builds a function_result-kind message.
func NewFunctionResultMessage(success bool, result json.RawMessage, ts time.Time) Message {
	return Message{Kind: KindFunctionResult, Timestamp: ts, Content: FunctionResultContent{Success: success, Result: result}}
}
