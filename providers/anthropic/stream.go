package anthropic

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/lgc202/llmx"
)

type blockState struct {
	isTool   bool
	isOutput bool
	toolIdx  int
}

type stream struct {
	provider   string
	outputTool string
	resp       *http.Response
	dec        *sseDecoder

	closed bool
	done   bool

	blocks        map[int]blockState
	toolCount     int
	sawOutputTool bool

	finishReason llmx.FinishReason
	inputTokens  int
	usage        *llmx.Usage
	pending      []llmx.StreamEvent
}

func newStream(provider string, resp *http.Response, outputTool string) *stream {
	return &stream{
		provider:   provider,
		outputTool: outputTool,
		resp:       resp,
		dec:        newSSEDecoder(resp.Body),
		blocks:     make(map[int]blockState),
	}
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.resp != nil && s.resp.Body != nil {
		return s.resp.Body.Close()
	}
	return nil
}

func (s *stream) Recv() (llmx.StreamEvent, error) {
	if s.closed {
		return llmx.StreamEvent{}, llmx.ErrStreamClosed
	}
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.done {
			return llmx.StreamEvent{}, io.EOF
		}

		raw, err := s.dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return llmx.StreamEvent{}, &llmx.Error{
					Provider:  s.provider,
					Kind:      llmx.ErrKindStreamEarly,
					Message:   "stream closed before message_stop",
					Retryable: true,
				}
			}
			return llmx.StreamEvent{}, &llmx.Error{
				Provider:  s.provider,
				Kind:      llmx.ErrKindStreamEarly,
				Message:   "stream read failed",
				Retryable: true,
				Cause:     err,
			}
		}
		if raw.Name == "ping" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal(raw.Data, &ev); err != nil {
			return llmx.StreamEvent{}, &llmx.Error{Provider: s.provider, Kind: llmx.ErrKindParse, Message: "failed to decode stream event", Raw: append([]byte(nil), raw.Data...), Cause: err}
		}
		if err := s.apply(ev, raw.Data); err != nil {
			return llmx.StreamEvent{}, err
		}
	}
}

func (s *stream) apply(ev streamEvent, raw []byte) error {
	switch ev.Type {
	case "error":
		msg := "stream error"
		if ev.Error != nil {
			msg = ev.Error.Message
		}
		return &llmx.Error{Provider: s.provider, Kind: llmx.ErrKindServer, Message: msg, Retryable: true, Raw: append([]byte(nil), raw...)}

	case "message_start":
		if ev.Message != nil && ev.Message.Usage != nil {
			s.inputTokens = ev.Message.Usage.InputTokens
		}

	case "content_block_start":
		if ev.ContentBlock == nil {
			return nil
		}
		switch ev.ContentBlock.Type {
		case "tool_use":
			if s.outputTool != "" && ev.ContentBlock.Name == s.outputTool {
				// Forced output tool: its argument stream IS the answer text.
				s.blocks[ev.Index] = blockState{isOutput: true}
				s.sawOutputTool = true
				return nil
			}
			st := blockState{isTool: true, toolIdx: s.toolCount}
			s.toolCount++
			s.blocks[ev.Index] = st
			s.pending = append(s.pending, llmx.StreamEvent{
				Kind: llmx.StreamEventToolCallDelta,
				ToolCallDelta: &llmx.ToolCallDelta{
					Index: st.toolIdx,
					ID:    ev.ContentBlock.ID,
					Name:  ev.ContentBlock.Name,
				},
			})
		default:
			s.blocks[ev.Index] = blockState{}
		}

	case "content_block_delta":
		if ev.Delta == nil {
			return nil
		}
		st := s.blocks[ev.Index]
		switch ev.Delta.Type {
		case "text_delta":
			if ev.Delta.Text != "" {
				s.pending = append(s.pending, llmx.StreamEvent{Kind: llmx.StreamEventTextDelta, TextDelta: ev.Delta.Text})
			}
		case "thinking_delta":
			if ev.Delta.Thinking != "" {
				s.pending = append(s.pending, llmx.StreamEvent{Kind: llmx.StreamEventReasoningDelta, ReasoningDelta: ev.Delta.Thinking})
			}
		case "input_json_delta":
			if ev.Delta.PartialJSON == "" {
				return nil
			}
			if st.isOutput {
				s.pending = append(s.pending, llmx.StreamEvent{Kind: llmx.StreamEventTextDelta, TextDelta: ev.Delta.PartialJSON})
				return nil
			}
			if st.isTool {
				s.pending = append(s.pending, llmx.StreamEvent{
					Kind: llmx.StreamEventToolCallDelta,
					ToolCallDelta: &llmx.ToolCallDelta{
						Index:          st.toolIdx,
						ArgumentsDelta: ev.Delta.PartialJSON,
					},
				})
			}
		}

	case "message_delta":
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			s.finishReason = mapStopReason(ev.Delta.StopReason)
			if s.finishReason == llmx.FinishReasonToolCalls && s.sawOutputTool && s.toolCount == 0 {
				s.finishReason = llmx.FinishReasonStop
			}
		}
		if ev.Usage != nil {
			s.usage = &llmx.Usage{
				PromptTokens:     s.inputTokens,
				CompletionTokens: ev.Usage.OutputTokens,
				TotalTokens:      s.inputTokens + ev.Usage.OutputTokens,
			}
			s.pending = append(s.pending, llmx.StreamEvent{Kind: llmx.StreamEventUsage, Usage: s.usage})
		}

	case "message_stop":
		s.done = true
		s.pending = append(s.pending, llmx.StreamEvent{
			Kind:         llmx.StreamEventDone,
			FinishReason: s.finishReason,
			Usage:        s.usage,
		})
	}
	return nil
}
