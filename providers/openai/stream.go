package openai

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/lgc202/llmx"
)

type stream struct {
	provider string
	resp     *http.Response
	dec      *sseDecoder

	closed bool
	done   bool

	finishReason llmx.FinishReason
	usage        *llmx.Usage
	pending      []llmx.StreamEvent
}

func newStream(provider string, resp *http.Response) *stream {
	return &stream{
		provider: provider,
		resp:     resp,
		dec:      newSSEDecoder(resp.Body),
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

		data, err := s.dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// The connection died before [DONE]: surface a classified
				// error instead of pretending the completion finished.
				return llmx.StreamEvent{}, &llmx.Error{
					Provider:  s.provider,
					Kind:      llmx.ErrKindStreamEarly,
					Message:   "stream closed before [DONE] marker",
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

		data = bytes.TrimSpace(data)
		if bytes.Equal(data, []byte("[DONE]")) {
			s.done = true
			return llmx.StreamEvent{
				Kind:         llmx.StreamEventDone,
				FinishReason: s.finishReason,
				Usage:        s.usage,
			}, nil
		}

		if err := s.decodeChunk(data); err != nil {
			return llmx.StreamEvent{}, err
		}
	}
}

func (s *stream) decodeChunk(data []byte) error {
	var chunk chatCompletionChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return &llmx.Error{Provider: s.provider, Kind: llmx.ErrKindParse, Message: "failed to decode stream chunk", Raw: append([]byte(nil), data...), Cause: err}
	}
	if chunk.Error != nil {
		return &llmx.Error{Provider: s.provider, Kind: llmx.ErrKindServer, Message: chunk.Error.Message, Retryable: true, Raw: append([]byte(nil), data...)}
	}

	if chunk.Usage != nil {
		s.usage = &llmx.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
		s.pending = append(s.pending, llmx.StreamEvent{Kind: llmx.StreamEventUsage, Usage: s.usage})
	}

	for _, choice := range chunk.Choices {
		// Single-message envelope: only the first choice streams deltas.
		if choice.Index != 0 {
			continue
		}
		if choice.FinishReason != "" {
			s.finishReason = mapFinishReason(choice.FinishReason)
		}
		if choice.Delta.ReasoningContent != "" {
			s.pending = append(s.pending, llmx.StreamEvent{
				Kind:           llmx.StreamEventReasoningDelta,
				ReasoningDelta: choice.Delta.ReasoningContent,
			})
		}
		text, reasoning := splitContent(choice.Delta.Content)
		if text != "" {
			s.pending = append(s.pending, llmx.StreamEvent{
				Kind:      llmx.StreamEventTextDelta,
				TextDelta: text,
			})
		}
		if reasoning != "" {
			s.pending = append(s.pending, llmx.StreamEvent{
				Kind:           llmx.StreamEventReasoningDelta,
				ReasoningDelta: reasoning,
			})
		}
		for _, tc := range choice.Delta.ToolCalls {
			s.pending = append(s.pending, llmx.StreamEvent{
				Kind: llmx.StreamEventToolCallDelta,
				ToolCallDelta: &llmx.ToolCallDelta{
					Index:          tc.Index,
					ID:             tc.ID,
					Name:           tc.Function.Name,
					ArgumentsDelta: tc.Function.Arguments,
				},
			})
		}
	}
	return nil
}
