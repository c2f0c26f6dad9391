package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/lgc202/llmx"
	"github.com/lgc202/llmx/extract"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: h}
}

func sseResponse(lines ...string) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", "text/event-stream")
	payload := strings.Join(lines, "\n") + "\n"
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(payload)), Header: h}
}

func newTestProvider(t *testing.T, rt roundTripperFunc, opts ...Option) *Provider {
	t.Helper()
	opts = append([]Option{
		WithBaseURL("https://example.test"),
		WithHTTPClient(&http.Client{Transport: rt}),
		WithDefaultModel("m"),
	}, opts...)
	p, err := New("test-key", opts...)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return p
}

func TestChat_MapsRequestAndResponse(t *testing.T) {
	var captured map[string]any
	p := newTestProvider(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/messages" {
			t.Fatalf("path=%q", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Fatalf("api key=%q", got)
		}
		if got := r.Header.Get("Anthropic-Version"); got != "2023-06-01" {
			t.Fatalf("version=%q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Fatalf("body: %v", err)
		}
		return jsonResponse(http.StatusOK, `{
			"id":"msg_1","type":"message","role":"assistant","model":"m",
			"content":[{"type":"text","text":"hi there"}],
			"stop_reason":"end_turn",
			"usage":{"input_tokens":10,"output_tokens":5}
		}`), nil
	})

	resp, err := p.Chat(context.Background(), llmx.Request{
		Messages: []llmx.Message{llmx.System("be brief"), llmx.User("hello")},
	})
	if err != nil {
		t.Fatalf("Chat() err=%v", err)
	}

	if captured["system"] != "be brief" {
		t.Fatalf("system=%v", captured["system"])
	}
	msgs := captured["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages=%d", len(msgs))
	}
	if captured["max_tokens"] != float64(1024) {
		t.Fatalf("max_tokens=%v", captured["max_tokens"])
	}

	if resp.Text() != "hi there" {
		t.Fatalf("text=%q", resp.Text())
	}
	if resp.FinishReason != llmx.FinishReasonStop {
		t.Fatalf("finish=%q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Fatalf("usage=%+v", resp.Usage)
	}
}

func TestChat_ToolResultsBecomeUserTurns(t *testing.T) {
	var captured map[string]any
	p := newTestProvider(t, func(r *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		return jsonResponse(http.StatusOK, `{
			"id":"msg_2","type":"message","role":"assistant","model":"m",
			"content":[{"type":"text","text":"done"}],"stop_reason":"end_turn"
		}`), nil
	})

	_, err := p.Chat(context.Background(), llmx.Request{
		Messages: []llmx.Message{
			llmx.User("weather?"),
			{Role: llmx.RoleAssistant, ToolCalls: []llmx.ToolCall{{ID: "tc_1", Name: "get_weather", Arguments: json.RawMessage(`{"location":"SF"}`)}}},
			llmx.ToolResult("tc_1", "72F"),
		},
	})
	if err != nil {
		t.Fatalf("Chat() err=%v", err)
	}

	msgs := captured["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("messages=%d", len(msgs))
	}
	assistant := msgs[1].(map[string]any)
	blocks := assistant["content"].([]any)
	use := blocks[0].(map[string]any)
	if use["type"] != "tool_use" || use["name"] != "get_weather" {
		t.Fatalf("tool_use=%v", use)
	}
	toolTurn := msgs[2].(map[string]any)
	if toolTurn["role"] != "user" {
		t.Fatalf("tool result role=%v", toolTurn["role"])
	}
	result := toolTurn["content"].([]any)[0].(map[string]any)
	if result["type"] != "tool_result" || result["tool_use_id"] != "tc_1" || result["content"] != "72F" {
		t.Fatalf("tool_result=%v", result)
	}
}

type city struct {
	Name string `json:"name"`
	Pop  int    `json:"pop"`
}

func TestChat_StructuredOutputViaForcedTool(t *testing.T) {
	var captured map[string]any
	p := newTestProvider(t, func(r *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		return jsonResponse(http.StatusOK, `{
			"id":"msg_3","type":"message","role":"assistant","model":"m",
			"content":[{"type":"tool_use","id":"tu_1","name":"city","input":{"name":"Oslo","pop":700000}}],
			"stop_reason":"tool_use"
		}`), nil
	})

	schema := extract.MustSchemaFor[city]()
	resp, err := p.Chat(context.Background(), llmx.Request{
		Messages:     []llmx.Message{llmx.User("biggest city in Norway")},
		OutputSchema: &schema,
	})
	if err != nil {
		t.Fatalf("Chat() err=%v", err)
	}

	choice := captured["tool_choice"].(map[string]any)
	if choice["type"] != "tool" || choice["name"] != "city" {
		t.Fatalf("tool_choice=%v", choice)
	}
	tools := captured["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("tools=%d", len(tools))
	}

	// The forced tool_use is normalized back to plain JSON text and the
	// finish reason reads as a normal stop.
	if resp.FinishReason != llmx.FinishReasonStop {
		t.Fatalf("finish=%q", resp.FinishReason)
	}
	if len(resp.Message.ToolCalls) != 0 {
		t.Fatalf("tool calls=%d", len(resp.Message.ToolCalls))
	}
	got, err := extract.Unmarshal[city]([]byte(resp.Text()))
	if err != nil {
		t.Fatalf("Unmarshal() err=%v", err)
	}
	if got.Name != "Oslo" || got.Pop != 700000 {
		t.Fatalf("got=%+v", got)
	}
}

func TestChat_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		header    http.Header
		kind      llmx.ErrorKind
		retryable bool
		after     time.Duration
	}{
		{
			name:   "auth",
			status: http.StatusUnauthorized,
			body:   `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`,
			kind:   llmx.ErrKindAuth,
		},
		{
			name:      "rate limit",
			status:    http.StatusTooManyRequests,
			body:      `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`,
			header:    http.Header{"Retry-After": []string{"12"}},
			kind:      llmx.ErrKindRateLimit,
			retryable: true,
			after:     12 * time.Second,
		},
		{
			name:      "overloaded",
			status:    529,
			body:      `{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`,
			kind:      llmx.ErrKindServer,
			retryable: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProvider(t, func(r *http.Request) (*http.Response, error) {
				h := make(http.Header)
				for k, vs := range tc.header {
					h[k] = vs
				}
				return &http.Response{StatusCode: tc.status, Body: io.NopCloser(strings.NewReader(tc.body)), Header: h}, nil
			})

			_, err := p.Chat(context.Background(), llmx.Request{Messages: []llmx.Message{llmx.User("hi")}})
			le, ok := llmx.AsError(err)
			if !ok {
				t.Fatalf("err=%v, want *llmx.Error", err)
			}
			if le.Kind != tc.kind || le.Retryable != tc.retryable {
				t.Fatalf("kind=%q retryable=%v", le.Kind, le.Retryable)
			}
			if le.RetryAfter != tc.after {
				t.Fatalf("retry_after=%s", le.RetryAfter)
			}
		})
	}
}

func TestChatStream_TextAndUsage(t *testing.T) {
	p := newTestProvider(t, func(r *http.Request) (*http.Response, error) {
		return sseResponse(
			`event: message_start`,
			`data: {"type":"message_start","message":{"id":"msg_1","usage":{"input_tokens":9}}}`,
			``,
			`event: content_block_start`,
			`data: {"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
			``,
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`,
			``,
			`event: ping`,
			`data: {"type":"ping"}`,
			``,
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`,
			``,
			`event: message_delta`,
			`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":4}}`,
			``,
			`event: message_stop`,
			`data: {"type":"message_stop"}`,
			``,
		), nil
	})

	stream, err := p.ChatStream(context.Background(), llmx.Request{Messages: []llmx.Message{llmx.User("hi")}})
	if err != nil {
		t.Fatalf("ChatStream() err=%v", err)
	}
	resp, err := llmx.DrainStream(stream)
	if err != nil {
		t.Fatalf("DrainStream() err=%v", err)
	}
	if resp.Text() != "Hello" {
		t.Fatalf("text=%q", resp.Text())
	}
	if resp.FinishReason != llmx.FinishReasonStop {
		t.Fatalf("finish=%q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.PromptTokens != 9 || resp.Usage.CompletionTokens != 4 || resp.Usage.TotalTokens != 13 {
		t.Fatalf("usage=%+v", resp.Usage)
	}
}

func TestChatStream_ToolUseFragments(t *testing.T) {
	p := newTestProvider(t, func(r *http.Request) (*http.Response, error) {
		return sseResponse(
			`event: content_block_start`,
			`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tu_1","name":"get_weather"}}`,
			``,
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"location\":\""}}`,
			``,
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"SF\"}"}}`,
			``,
			`event: message_delta`,
			`data: {"type":"message_delta","delta":{"stop_reason":"tool_use"}}`,
			``,
			`event: message_stop`,
			`data: {"type":"message_stop"}`,
			``,
		), nil
	})

	stream, err := p.ChatStream(context.Background(), llmx.Request{Messages: []llmx.Message{llmx.User("hi")}})
	if err != nil {
		t.Fatalf("ChatStream() err=%v", err)
	}
	resp, err := llmx.DrainStream(stream)
	if err != nil {
		t.Fatalf("DrainStream() err=%v", err)
	}
	if resp.FinishReason != llmx.FinishReasonToolCalls {
		t.Fatalf("finish=%q", resp.FinishReason)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls=%d", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "tu_1" || tc.Name != "get_weather" || string(tc.Args()) != `{"location":"SF"}` {
		t.Fatalf("tc=%+v", tc)
	}
}

func TestChatStream_OutputToolNormalizedToText(t *testing.T) {
	schema := extract.MustSchemaFor[city]()
	p := newTestProvider(t, func(r *http.Request) (*http.Response, error) {
		return sseResponse(
			`event: content_block_start`,
			`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tu_1","name":"city"}}`,
			``,
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"name\":\"Oslo\","}}`,
			``,
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"pop\":700000}"}}`,
			``,
			`event: message_delta`,
			`data: {"type":"message_delta","delta":{"stop_reason":"tool_use"}}`,
			``,
			`event: message_stop`,
			`data: {"type":"message_stop"}`,
			``,
		), nil
	})

	stream, err := p.ChatStream(context.Background(), llmx.Request{
		Messages:     []llmx.Message{llmx.User("hi")},
		OutputSchema: &schema,
	})
	if err != nil {
		t.Fatalf("ChatStream() err=%v", err)
	}
	resp, err := llmx.DrainStream(stream)
	if err != nil {
		t.Fatalf("DrainStream() err=%v", err)
	}
	// Output-tool streaming reads exactly like plain text streaming.
	if resp.FinishReason != llmx.FinishReasonStop {
		t.Fatalf("finish=%q", resp.FinishReason)
	}
	if len(resp.Message.ToolCalls) != 0 {
		t.Fatalf("tool calls=%d", len(resp.Message.ToolCalls))
	}
	got, err := extract.Unmarshal[city]([]byte(resp.Text()))
	if err != nil {
		t.Fatalf("Unmarshal() err=%v", err)
	}
	if got.Name != "Oslo" {
		t.Fatalf("got=%+v", got)
	}
}

func TestChatStream_PrematureClose(t *testing.T) {
	p := newTestProvider(t, func(r *http.Request) (*http.Response, error) {
		return sseResponse(
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"par"}}`,
			``,
		), nil
	})

	stream, err := p.ChatStream(context.Background(), llmx.Request{Messages: []llmx.Message{llmx.User("hi")}})
	if err != nil {
		t.Fatalf("ChatStream() err=%v", err)
	}
	_, err = llmx.DrainStream(stream)
	if !llmx.IsKind(err, llmx.ErrKindStreamEarly) {
		t.Fatalf("err=%v, want stream_terminated", err)
	}
}
