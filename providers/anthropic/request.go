package anthropic

import (
	"strings"

	"github.com/lgc202/llmx"
)

func (p *Provider) mapRequest(req llmx.Request) (map[string]any, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	var system strings.Builder
	wmessages := make([]anthMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llmx.RoleSystem:
			// The Messages API takes the system prompt as a top-level field.
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(m.Text())
		case llmx.RoleTool:
			// Tool results are user turns carrying tool_result blocks.
			wmessages = append(wmessages, anthMessage{
				Role: "user",
				Content: []anthBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Text(),
				}},
			})
		case llmx.RoleAssistant:
			blocks := make([]anthBlock, 0, len(m.Parts)+len(m.ToolCalls))
			if t := m.Text(); t != "" {
				blocks = append(blocks, anthBlock{Type: "text", Text: t})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Args(),
				})
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthBlock{Type: "text", Text: ""})
			}
			wmessages = append(wmessages, anthMessage{Role: "assistant", Content: blocks})
		default:
			wmessages = append(wmessages, anthMessage{
				Role:    "user",
				Content: []anthBlock{{Type: "text", Text: m.Text()}},
			})
		}
	}

	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	m := map[string]any{
		"model":      model,
		"messages":   wmessages,
		"max_tokens": maxTokens,
	}
	if system.Len() > 0 {
		m["system"] = system.String()
	}
	if req.Temperature != nil {
		m["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		m["top_p"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		m["stop_sequences"] = req.Stop
	}

	wtools := make([]anthTool, 0, len(req.Tools)+1)
	for _, t := range req.Tools {
		wtools = append(wtools, anthTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	// Structured output: advertise the schema as a tool and force the model
	// to call it. The response side maps the tool_use back to JSON text.
	if req.OutputSchema != nil {
		wtools = append(wtools, anthTool{
			Name:        req.OutputSchema.PayloadName(),
			Description: "Record the final answer in the required structure.",
			InputSchema: req.OutputSchema.JSONSchema(),
		})
		m["tool_choice"] = map[string]any{"type": "tool", "name": req.OutputSchema.PayloadName()}
	} else if req.ToolChoice != nil {
		m["tool_choice"] = mapToolChoice(*req.ToolChoice)
	}

	if len(wtools) > 0 {
		m["tools"] = wtools
	}

	for k, v := range req.Extra {
		m[k] = v
	}
	return m, nil
}

func mapToolChoice(tc llmx.ToolChoice) any {
	switch tc.Mode {
	case llmx.ToolChoiceNone:
		return map[string]any{"type": "none"}
	case llmx.ToolChoiceRequired:
		return map[string]any{"type": "any"}
	case llmx.ToolChoiceFunction:
		return map[string]any{"type": "tool", "name": tc.FunctionName}
	default:
		return map[string]any{"type": "auto"}
	}
}
