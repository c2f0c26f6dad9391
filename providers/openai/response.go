package openai

import (
	"strings"

	"github.com/lgc202/llmx"
)

func (p *Provider) mapResponse(r chatCompletionResponse) llmx.Response {
	out := llmx.Response{
		Provider: p.name,
		ID:       r.ID,
		Model:    r.Model,
		Created:  r.CreatedTime(),
	}
	if r.Usage != nil {
		out.Usage = &llmx.Usage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		}
	}
	if len(r.Choices) == 0 {
		out.Message = llmx.Message{Role: llmx.RoleAssistant}
		out.FinishReason = llmx.FinishReasonUnknown
		return out
	}

	// The envelope is single-message; OpenAI-compatible vendors return one
	// choice unless n>1 is requested, which this adapter does not expose.
	c := r.Choices[0]
	msg := llmx.Message{Role: llmx.RoleAssistant, Name: c.Message.Name}
	text, reasoning := splitContent(c.Message.Content)
	if c.Message.ReasoningContent != "" {
		reasoning = c.Message.ReasoningContent + reasoning
	}
	if text != "" {
		msg.Parts = append(msg.Parts, llmx.TextPart(text))
	}
	if reasoning != "" {
		msg.Parts = append(msg.Parts, llmx.ReasoningPart(reasoning))
	}
	for _, tc := range c.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, llmx.ToolCall{
			ID:            tc.ID,
			Name:          tc.Function.Name,
			ArgumentsText: tc.Function.Arguments,
		})
	}

	out.Message = msg
	out.FinishReason = mapFinishReason(c.FinishReason)
	return out
}

func mapFinishReason(fr string) llmx.FinishReason {
	switch fr {
	case "stop":
		return llmx.FinishReasonStop
	case "length":
		return llmx.FinishReasonLength
	case "tool_calls", "function_call":
		return llmx.FinishReasonToolCalls
	case "content_filter":
		return llmx.FinishReasonContentFilter
	case "":
		return ""
	default:
		return llmx.FinishReasonUnknown
	}
}

// splitContent handles the three content encodings seen in the wild:
// a plain string, an array of typed parts, or a single typed part object.
func splitContent(v any) (text string, reasoning string) {
	switch x := v.(type) {
	case nil:
		return "", ""
	case string:
		return x, ""
	case []any:
		var b strings.Builder
		var r strings.Builder
		for _, it := range x {
			if m, ok := it.(map[string]any); ok {
				typeStr, _ := m["type"].(string)
				if t, ok := m["text"].(string); ok {
					switch typeStr {
					case "reasoning", "thinking":
						r.WriteString(t)
					default:
						b.WriteString(t)
					}
				}
			}
		}
		return b.String(), r.String()
	case map[string]any:
		typeStr, _ := x["type"].(string)
		if t, ok := x["text"].(string); ok {
			if typeStr == "reasoning" || typeStr == "thinking" {
				return "", t
			}
			return t, ""
		}
		return "", ""
	default:
		return "", ""
	}
}
