package anthropic

import (
	"github.com/lgc202/llmx"
)

func (p *Provider) mapResponse(r messageResponse, outputTool string) llmx.Response {
	out := llmx.Response{
		Provider: p.name,
		ID:       r.ID,
		Model:    r.Model,
	}
	if r.Usage != nil {
		out.Usage = &llmx.Usage{
			PromptTokens:     r.Usage.InputTokens,
			CompletionTokens: r.Usage.OutputTokens,
			TotalTokens:      r.Usage.InputTokens + r.Usage.OutputTokens,
		}
	}

	msg := llmx.Message{Role: llmx.RoleAssistant}
	sawOutputTool := false
	for _, block := range r.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				msg.Parts = append(msg.Parts, llmx.TextPart(block.Text))
			}
		case "thinking":
			if block.Text != "" {
				msg.Parts = append(msg.Parts, llmx.ReasoningPart(block.Text))
			}
		case "tool_use":
			if outputTool != "" && block.Name == outputTool {
				// The forced output tool is an encoding detail: its input is
				// the structured answer itself.
				msg.Parts = append(msg.Parts, llmx.TextPart(string(block.Input)))
				sawOutputTool = true
				continue
			}
			msg.ToolCalls = append(msg.ToolCalls, llmx.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: append([]byte(nil), block.Input...),
			})
		}
	}
	out.Message = msg

	out.FinishReason = mapStopReason(r.StopReason)
	if sawOutputTool && out.FinishReason == llmx.FinishReasonToolCalls && len(msg.ToolCalls) == 0 {
		out.FinishReason = llmx.FinishReasonStop
	}
	return out
}

func mapStopReason(sr string) llmx.FinishReason {
	switch sr {
	case "end_turn", "stop_sequence":
		return llmx.FinishReasonStop
	case "max_tokens":
		return llmx.FinishReasonLength
	case "tool_use":
		return llmx.FinishReasonToolCalls
	case "refusal":
		return llmx.FinishReasonContentFilter
	case "":
		return ""
	default:
		return llmx.FinishReasonUnknown
	}
}
