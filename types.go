package llmx

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonUnknown       FinishReason = "unknown"
)

type ContentPartType string

const (
	ContentPartText      ContentPartType = "text"
	ContentPartReasoning ContentPartType = "reasoning"
)

// ContentPart is a provider-agnostic "message content segment".
//
// Many vendors represent message content as an array of parts. Keeping this
// a first-class concept makes it easier to map to/from different APIs.
type ContentPart struct {
	Type ContentPartType `json:"type"`
	Text string          `json:"text,omitempty"`
}

func TextPart(text string) ContentPart { return ContentPart{Type: ContentPartText, Text: text} }
func ReasoningPart(text string) ContentPart {
	return ContentPart{Type: ContentPartReasoning, Text: text}
}

// Message is a canonical chat message.
//
// For tool results, use RoleTool with ToolCallID set.
// For assistant tool calls, use ToolCalls.
type Message struct {
	Role Role

	// Name is an optional sender name supported by some providers.
	Name string

	Parts []ContentPart

	ToolCallID string
	ToolCalls  []ToolCall
}

func System(text string) Message {
	return Message{Role: RoleSystem, Parts: []ContentPart{TextPart(text)}}
}
func User(text string) Message { return Message{Role: RoleUser, Parts: []ContentPart{TextPart(text)}} }
func Assistant(text string) Message {
	return Message{Role: RoleAssistant, Parts: []ContentPart{TextPart(text)}}
}
func ToolResult(toolCallID string, text string) Message {
	return Message{Role: RoleTool, ToolCallID: toolCallID, Parts: []ContentPart{TextPart(text)}}
}

func (m Message) Clone() Message {
	out := m
	if m.Parts != nil {
		out.Parts = make([]ContentPart, len(m.Parts))
		copy(out.Parts, m.Parts)
	}
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
		for i := range out.ToolCalls {
			out.ToolCalls[i].Arguments = append(json.RawMessage(nil), out.ToolCalls[i].Arguments...)
		}
	}
	return out
}

func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == ContentPartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func (m Message) Reasoning() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == ContentPartReasoning {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ToolHandler executes one tool call with the raw argument JSON the model
// produced. The returned string is fed back to the model verbatim.
type ToolHandler func(ctx context.Context, args json.RawMessage) (string, error)

// ToolDefinition describes a callable the model may request.
//
// InputSchema is a JSON Schema object. Handler may be nil for request-only
// use (e.g. when the caller executes tools itself); the dispatch package
// requires it.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     ToolHandler
}

type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceFunction ToolChoiceMode = "function"
)

// ToolChoice models the caller's preference for tool usage.
// For ToolChoiceFunction, set FunctionName.
type ToolChoice struct {
	Mode         ToolChoiceMode
	FunctionName string
}

// ToolCall is a canonical representation of a tool/function call.
//
// Some providers stream ArgumentsText in fragments and may not guarantee
// valid JSON at every point. When possible, providers fill Arguments
// (valid JSON bytes).
type ToolCall struct {
	ID            string
	Name          string
	Arguments     json.RawMessage
	ArgumentsText string
}

// Args returns the best available argument JSON for the call.
func (tc ToolCall) Args() json.RawMessage {
	if len(tc.Arguments) > 0 {
		return tc.Arguments
	}
	return json.RawMessage(tc.ArgumentsText)
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the canonical envelope for one completed LLM call.
//
// It is produced by exactly one provider adapter and owned by the call that
// made it; nothing here is shared across calls.
type Response struct {
	Provider string
	ID       string
	Model    string
	Created  time.Time

	Message      Message
	FinishReason FinishReason
	Usage        *Usage

	// Raw preserves the vendor-native payload for debugging.
	Raw json.RawMessage
}

func (r Response) Text() string { return r.Message.Text() }

// ToolCallNames returns the names of requested tool calls, sorted.
func (r Response) ToolCallNames() []string {
	if len(r.Message.ToolCalls) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.Message.ToolCalls))
	for _, tc := range r.Message.ToolCalls {
		names = append(names, tc.Name)
	}
	sort.Strings(names)
	return names
}
