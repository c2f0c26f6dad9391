package llmx

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Stream yields StreamEvent values until io.EOF.
//
// A stream is finite and not restartable. Implementations return io.EOF once
// the stream finishes normally, and a classified *Error (ErrKindStreamEarly)
// when the vendor closes the connection before its terminal marker.
type Stream interface {
	Recv() (StreamEvent, error)
	Close() error
}

var ErrStreamClosed = errors.New("llmx: stream closed")

type StreamEventKind string

const (
	StreamEventTextDelta      StreamEventKind = "text_delta"
	StreamEventReasoningDelta StreamEventKind = "reasoning_delta"
	StreamEventToolCallDelta  StreamEventKind = "tool_call_delta"
	StreamEventUsage          StreamEventKind = "usage"
	StreamEventDone           StreamEventKind = "done"
)

// ToolCallDelta is one fragment of a streamed tool call. Index identifies the
// call within the message; argument fragments with the same Index belong
// together and arrive in order.
type ToolCallDelta struct {
	Index int
	ID    string
	Name  string

	ArgumentsDelta string
}

type StreamEvent struct {
	Kind StreamEventKind

	TextDelta      string
	ReasoningDelta string
	ToolCallDelta  *ToolCallDelta
	Usage          *Usage

	FinishReason FinishReason
	Raw          json.RawMessage
}

func (e StreamEvent) Done() bool { return e.Kind == StreamEventDone }

// Accumulator rebuilds the final assistant message from a stream.
//
// It never reorders or drops events: text arrives in order, and tool call
// argument fragments are coalesced by tool-call index before any JSON parse
// is attempted. The aggregate is equivalent to what the non-streaming call
// would have returned for the same logical completion.
type Accumulator struct {
	text      strings.Builder
	reasoning strings.Builder

	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        *Usage

	// Terminated reports whether a done event was observed.
	Terminated bool
}

func (a *Accumulator) Apply(ev StreamEvent) {
	switch ev.Kind {
	case StreamEventTextDelta:
		a.text.WriteString(ev.TextDelta)
	case StreamEventReasoningDelta:
		a.reasoning.WriteString(ev.ReasoningDelta)
	case StreamEventToolCallDelta:
		if ev.ToolCallDelta == nil {
			return
		}
		idx := ev.ToolCallDelta.Index
		for len(a.ToolCalls) <= idx {
			a.ToolCalls = append(a.ToolCalls, ToolCall{})
		}
		tc := &a.ToolCalls[idx]
		if ev.ToolCallDelta.ID != "" {
			tc.ID = ev.ToolCallDelta.ID
		}
		if ev.ToolCallDelta.Name != "" {
			tc.Name = ev.ToolCallDelta.Name
		}
		tc.ArgumentsText += ev.ToolCallDelta.ArgumentsDelta
	case StreamEventUsage:
		if ev.Usage != nil {
			cpy := *ev.Usage
			a.Usage = &cpy
		}
	case StreamEventDone:
		a.Terminated = true
		if ev.FinishReason != "" {
			a.FinishReason = ev.FinishReason
		}
		if ev.Usage != nil {
			cpy := *ev.Usage
			a.Usage = &cpy
		}
	}
}

func (a *Accumulator) FinalMessage() Message {
	msg := Message{Role: RoleAssistant}
	if t := a.text.String(); t != "" {
		msg.Parts = append(msg.Parts, TextPart(t))
	}
	if r := a.reasoning.String(); r != "" {
		msg.Parts = append(msg.Parts, ReasoningPart(r))
	}
	if len(a.ToolCalls) > 0 {
		msg.ToolCalls = append([]ToolCall(nil), a.ToolCalls...)
		// Best-effort: promote coalesced argument text to JSON bytes.
		for i := range msg.ToolCalls {
			if len(msg.ToolCalls[i].Arguments) == 0 && msg.ToolCalls[i].ArgumentsText != "" {
				if json.Valid([]byte(msg.ToolCalls[i].ArgumentsText)) {
					msg.ToolCalls[i].Arguments = json.RawMessage(msg.ToolCalls[i].ArgumentsText)
				}
			}
		}
	}
	return msg
}

// Response assembles the aggregate envelope from whatever has been applied so
// far. Callers that need the stream-complete guarantee should check
// Terminated first.
func (a *Accumulator) Response() Response {
	fr := a.FinishReason
	if fr == "" {
		fr = FinishReasonStop
	}
	return Response{
		Message:      a.FinalMessage(),
		FinishReason: fr,
		Usage:        a.Usage,
	}
}

// DrainStream consumes stream to completion and returns the aggregate
// Response. A stream that ends without a terminal marker yields a classified
// ErrKindStreamEarly error rather than a partially valid envelope.
func DrainStream(stream Stream) (Response, error) {
	defer stream.Close()

	var acc Accumulator
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Response{}, err
		}
		acc.Apply(ev)
		if ev.Done() {
			break
		}
	}
	if !acc.Terminated {
		return Response{}, &Error{
			Kind:      ErrKindStreamEarly,
			Message:   "stream ended before terminal marker",
			Retryable: true,
		}
	}
	return acc.Response(), nil
}
