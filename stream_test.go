package llmx

import (
	"errors"
	"io"
	"testing"
)

type sliceStream struct {
	events []StreamEvent
	err    error
	closed bool
}

func (s *sliceStream) Recv() (StreamEvent, error) {
	if s.closed {
		return StreamEvent{}, ErrStreamClosed
	}
	if len(s.events) == 0 {
		if s.err != nil {
			return StreamEvent{}, s.err
		}
		return StreamEvent{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

func TestAccumulator_CoalescesToolCallFragments(t *testing.T) {
	var acc Accumulator

	acc.Apply(StreamEvent{Kind: StreamEventToolCallDelta, ToolCallDelta: &ToolCallDelta{Index: 0, ID: "call_1", Name: "get_weather"}})
	acc.Apply(StreamEvent{Kind: StreamEventToolCallDelta, ToolCallDelta: &ToolCallDelta{Index: 0, ArgumentsDelta: `{"location":"`}})
	acc.Apply(StreamEvent{Kind: StreamEventToolCallDelta, ToolCallDelta: &ToolCallDelta{Index: 1, ID: "call_2", Name: "get_time", ArgumentsDelta: `{}`}})
	acc.Apply(StreamEvent{Kind: StreamEventToolCallDelta, ToolCallDelta: &ToolCallDelta{Index: 0, ArgumentsDelta: `SF"}`}})
	acc.Apply(StreamEvent{Kind: StreamEventDone, FinishReason: FinishReasonToolCalls})

	msg := acc.FinalMessage()
	if len(msg.ToolCalls) != 2 {
		t.Fatalf("tool calls=%d", len(msg.ToolCalls))
	}
	if got := string(msg.ToolCalls[0].Args()); got != `{"location":"SF"}` {
		t.Fatalf("args=%s", got)
	}
	if msg.ToolCalls[1].Name != "get_time" {
		t.Fatalf("call1=%+v", msg.ToolCalls[1])
	}
	if !acc.Terminated || acc.FinishReason != FinishReasonToolCalls {
		t.Fatalf("terminated=%v finish=%q", acc.Terminated, acc.FinishReason)
	}
}

func TestDrainStream_BuildsResponse(t *testing.T) {
	s := &sliceStream{events: []StreamEvent{
		{Kind: StreamEventTextDelta, TextDelta: "Hello"},
		{Kind: StreamEventTextDelta, TextDelta: " world"},
		{Kind: StreamEventReasoningDelta, ReasoningDelta: "hm"},
		{Kind: StreamEventUsage, Usage: &Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}},
		{Kind: StreamEventDone, FinishReason: FinishReasonStop},
	}}

	resp, err := DrainStream(s)
	if err != nil {
		t.Fatalf("DrainStream() err=%v", err)
	}
	if resp.Text() != "Hello world" {
		t.Fatalf("text=%q", resp.Text())
	}
	if resp.Message.Reasoning() != "hm" {
		t.Fatalf("reasoning=%q", resp.Message.Reasoning())
	}
	if resp.FinishReason != FinishReasonStop {
		t.Fatalf("finish=%q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 3 {
		t.Fatalf("usage=%+v", resp.Usage)
	}
	if !s.closed {
		t.Fatalf("stream not closed")
	}
}

func TestDrainStream_EarlyTermination(t *testing.T) {
	s := &sliceStream{events: []StreamEvent{
		{Kind: StreamEventTextDelta, TextDelta: "partial"},
	}}

	_, err := DrainStream(s)
	if !IsKind(err, ErrKindStreamEarly) {
		t.Fatalf("err=%v, want stream_terminated", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("early termination should be retryable")
	}
}

func TestDrainStream_PropagatesError(t *testing.T) {
	wantErr := &Error{Kind: ErrKindServer, Message: "boom", Retryable: true}
	s := &sliceStream{
		events: []StreamEvent{{Kind: StreamEventTextDelta, TextDelta: "x"}},
		err:    wantErr,
	}

	_, err := DrainStream(s)
	if !errors.Is(err, wantErr) && !IsKind(err, ErrKindServer) {
		t.Fatalf("err=%v", err)
	}
}

func TestResponse_ToolCallNames(t *testing.T) {
	resp := Response{Message: Message{ToolCalls: []ToolCall{
		{Name: "zeta"},
		{Name: "alpha"},
	}}}
	names := resp.ToolCallNames()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Fatalf("names=%v", names)
	}
}
