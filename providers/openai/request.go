package openai

import (
	"github.com/lgc202/llmx"
)

func (p *Provider) mapRequest(req llmx.Request) map[string]any {
	model := req.Model
	if model == "" {
		model = p.model
	}

	wmessages := make([]apiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		wm := apiMessage{Role: string(m.Role), Name: m.Name}
		wm.Content = mapContent(m)
		if m.Role == llmx.RoleTool {
			wm.ToolCallID = m.ToolCallID
		}
		for i, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, apiToolCall{
				Index: i,
				ID:    tc.ID,
				Type:  "function",
				Function: apiFunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Args()),
				},
			})
		}
		wmessages = append(wmessages, wm)
	}

	m := map[string]any{
		"model":    model,
		"messages": wmessages,
	}

	if req.Temperature != nil {
		m["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		m["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		m["max_tokens"] = *req.MaxTokens
	}
	if req.Seed != nil {
		m["seed"] = *req.Seed
	}
	if len(req.Stop) > 0 {
		m["stop"] = req.Stop
	}

	if len(req.Tools) > 0 {
		wtools := make([]apiTool, 0, len(req.Tools))
		for _, t := range req.Tools {
			wtools = append(wtools, apiTool{
				Type: "function",
				Function: apiFunctionDef{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.InputSchema,
				},
			})
		}
		m["tools"] = wtools
	}
	if req.ToolChoice != nil {
		m["tool_choice"] = mapToolChoice(*req.ToolChoice)
	}

	// Structured output maps to the json_schema response format; the final
	// answer then arrives as plain JSON text.
	if req.OutputSchema != nil {
		m["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   req.OutputSchema.PayloadName(),
				"schema": req.OutputSchema.JSONSchema(),
				"strict": true,
			},
		}
	}

	for k, v := range req.Extra {
		m[k] = v
	}
	return m
}

func mapToolChoice(tc llmx.ToolChoice) any {
	switch tc.Mode {
	case llmx.ToolChoiceNone:
		return "none"
	case llmx.ToolChoiceRequired:
		return "required"
	case llmx.ToolChoiceFunction:
		return map[string]any{
			"type": "function",
			"function": map[string]any{
				"name": tc.FunctionName,
			},
		}
	default:
		return "auto"
	}
}

func mapContent(msg llmx.Message) any {
	// Tool outputs are mapped to a plain string.
	if msg.Role == llmx.RoleTool {
		return msg.Text()
	}
	if len(msg.Parts) == 0 {
		return ""
	}
	if len(msg.Parts) == 1 && msg.Parts[0].Type == llmx.ContentPartText {
		return msg.Parts[0].Text
	}

	out := make([]any, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		// Reasoning is a response-side feature; treat it as text when sending.
		out = append(out, map[string]any{"type": "text", "text": p.Text})
	}
	return out
}
