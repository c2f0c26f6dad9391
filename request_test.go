package llmx

import (
	"testing"
)

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		ok   bool
	}{
		{
			name: "minimal",
			req:  Request{Model: "m", Messages: []Message{User("hi")}},
			ok:   true,
		},
		{
			name: "no messages",
			req:  Request{Model: "m"},
		},
		{
			name: "duplicate tool names",
			req: Request{
				Model:    "m",
				Messages: []Message{User("hi")},
				Tools: []ToolDefinition{
					{Name: "lookup"},
					{Name: "lookup"},
				},
			},
		},
		{
			name: "unnamed tool",
			req: Request{
				Model:    "m",
				Messages: []Message{User("hi")},
				Tools:    []ToolDefinition{{}},
			},
		},
		{
			name: "tool choice names unknown tool",
			req: Request{
				Model:      "m",
				Messages:   []Message{User("hi")},
				Tools:      []ToolDefinition{{Name: "lookup"}},
				ToolChoice: &ToolChoice{Mode: ToolChoiceFunction, FunctionName: "other"},
			},
		},
		{
			name: "tool choice names known tool",
			req: Request{
				Model:      "m",
				Messages:   []Message{User("hi")},
				Tools:      []ToolDefinition{{Name: "lookup"}},
				ToolChoice: &ToolChoice{Mode: ToolChoiceFunction, FunctionName: "lookup"},
			},
			ok: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate() err=%v", err)
			}
			if !tc.ok {
				if !IsKind(err, ErrKindBadRequest) {
					t.Fatalf("err=%v, want bad_request", err)
				}
			}
		})
	}
}

func TestRequest_CloneIsolation(t *testing.T) {
	temp := 0.5
	req := Request{
		Model:       "m",
		Messages:    []Message{User("hi")},
		Temperature: &temp,
		Stop:        []string{"END"},
		Extra:       map[string]any{"a": 1},
	}

	cp := req.Clone()
	cp.Messages[0].Parts[0].Text = "changed"
	cp.Stop[0] = "STOP"
	cp.Extra["a"] = 2

	if req.Messages[0].Text() != "hi" {
		t.Fatalf("message mutated through clone: %q", req.Messages[0].Text())
	}
	if req.Stop[0] != "END" {
		t.Fatalf("stop mutated through clone: %q", req.Stop[0])
	}
	if req.Extra["a"] != 1 {
		t.Fatalf("extra mutated through clone: %v", req.Extra["a"])
	}
}

func TestBuildRequest_Options(t *testing.T) {
	req := BuildRequest("m", []Message{System("sys"), User("hi")},
		WithTemperature(0.2),
		WithMaxTokens(256),
		WithStop("END"),
		WithStream(),
		WithExtra("logprobs", true),
		WithHeader("X-Routing", "alpha"),
	)

	if req.Model != "m" || len(req.Messages) != 2 {
		t.Fatalf("req=%+v", req)
	}
	if req.Temperature == nil || *req.Temperature != 0.2 {
		t.Fatalf("temperature=%v", req.Temperature)
	}
	if req.MaxTokens == nil || *req.MaxTokens != 256 {
		t.Fatalf("max_tokens=%v", req.MaxTokens)
	}
	if !req.Stream {
		t.Fatalf("stream=false")
	}
	if req.Extra["logprobs"] != true {
		t.Fatalf("extra=%v", req.Extra)
	}
	if got := req.Transport.Headers.Get("X-Routing"); got != "alpha" {
		t.Fatalf("header=%q", got)
	}
}

func TestMessage_Builders(t *testing.T) {
	m := ToolResult("call_1", "42")
	if m.Role != RoleTool || m.ToolCallID != "call_1" || m.Text() != "42" {
		t.Fatalf("tool result=%+v", m)
	}

	a := Message{Role: RoleAssistant, Parts: []ContentPart{
		ReasoningPart("thinking..."),
		TextPart("answer"),
	}}
	if a.Text() != "answer" || a.Reasoning() != "thinking..." {
		t.Fatalf("text=%q reasoning=%q", a.Text(), a.Reasoning())
	}
}
