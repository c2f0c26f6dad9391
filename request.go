package llmx

import (
	"fmt"
	"net/http"

	"github.com/lgc202/llmx/extract"
)

type TransportOptions struct {
	// Headers contains per-request header overrides/additions.
	//
	// This is an escape hatch for vendors that require request-scoped headers
	// (e.g. vendor routing, beta flags). Providers may ignore unsupported headers.
	Headers http.Header
}

// Request is the vendor-neutral description of one LLM invocation.
//
// A Request is treated as read-only once built: the dispatcher clones it for
// every retry and follow-up tool round instead of mutating in place. Provider
// adapters must not modify it either.
type Request struct {
	Model    string
	Messages []Message

	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Seed        *int64
	Stop        []string

	// OutputSchema enables structured-output mode: the provider advertises the
	// schema in its native dialect and the dispatch package validates the final
	// payload against it.
	OutputSchema *extract.Schema

	Tools      []ToolDefinition
	ToolChoice *ToolChoice

	// Stream requests incremental delivery. The dispatcher still produces a
	// final Response equivalent to the non-streaming form.
	Stream bool

	Transport *TransportOptions

	// Extra carries provider-specific JSON fields. Keys should be top-level
	// wire fields; values must be JSON-marshalable.
	Extra map[string]any
}

func (r Request) Clone() Request {
	out := r
	out.Messages = append([]Message(nil), r.Messages...)
	for i := range out.Messages {
		out.Messages[i] = out.Messages[i].Clone()
	}
	if r.Stop != nil {
		out.Stop = append([]string(nil), r.Stop...)
	}
	if r.OutputSchema != nil {
		v := *r.OutputSchema
		out.OutputSchema = &v
	}
	if r.Tools != nil {
		out.Tools = append([]ToolDefinition(nil), r.Tools...)
	}
	if r.ToolChoice != nil {
		v := *r.ToolChoice
		out.ToolChoice = &v
	}
	if r.Transport != nil {
		v := *r.Transport
		v.Headers = r.Transport.Headers.Clone()
		out.Transport = &v
	}
	if r.Extra != nil {
		out.Extra = make(map[string]any, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Validate checks the invariants every provider relies on: at least one
// message, and tool names unique within the request.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return &Error{Kind: ErrKindBadRequest, Message: "messages is required"}
	}
	seen := make(map[string]bool, len(r.Tools))
	for _, t := range r.Tools {
		if t.Name == "" {
			return &Error{Kind: ErrKindBadRequest, Message: "tool name is required"}
		}
		if seen[t.Name] {
			return &Error{Kind: ErrKindBadRequest, Message: fmt.Sprintf("duplicate tool name %q", t.Name)}
		}
		seen[t.Name] = true
	}
	if r.ToolChoice != nil && r.ToolChoice.Mode == ToolChoiceFunction {
		if !seen[r.ToolChoice.FunctionName] {
			return &Error{Kind: ErrKindBadRequest, Message: fmt.Sprintf("tool choice names unknown tool %q", r.ToolChoice.FunctionName)}
		}
	}
	return nil
}

// RequestOption mutates a Request during construction.
type RequestOption func(*Request)

// BuildRequest creates a request from model + messages and applies opts.
func BuildRequest(model string, messages []Message, opts ...RequestOption) Request {
	req := Request{Model: model, Messages: cloneMessages(messages)}
	for _, opt := range opts {
		if opt != nil {
			opt(&req)
		}
	}
	return req
}

func WithTemperature(v float64) RequestOption {
	return func(r *Request) { r.Temperature = &v }
}

func WithTopP(v float64) RequestOption {
	return func(r *Request) { r.TopP = &v }
}

func WithMaxTokens(v int) RequestOption {
	return func(r *Request) { r.MaxTokens = &v }
}

func WithSeed(v int64) RequestOption {
	return func(r *Request) { r.Seed = &v }
}

func WithStop(stop ...string) RequestOption {
	return func(r *Request) { r.Stop = append([]string(nil), stop...) }
}

func WithOutputSchema(s extract.Schema) RequestOption {
	return func(r *Request) { r.OutputSchema = &s }
}

func WithTools(tools ...ToolDefinition) RequestOption {
	return func(r *Request) { r.Tools = append([]ToolDefinition(nil), tools...) }
}

func WithToolChoice(choice ToolChoice) RequestOption {
	return func(r *Request) { r.ToolChoice = &choice }
}

func WithStream() RequestOption {
	return func(r *Request) { r.Stream = true }
}

func WithExtra(key string, value any) RequestOption {
	return func(r *Request) {
		if r.Extra == nil {
			r.Extra = make(map[string]any)
		}
		r.Extra[key] = value
	}
}

func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Transport == nil {
			r.Transport = &TransportOptions{}
		}
		if r.Transport.Headers == nil {
			r.Transport.Headers = make(http.Header)
		}
		r.Transport.Headers.Set(key, value)
	}
}

func cloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	for i := range messages {
		out[i] = messages[i].Clone()
	}
	return out
}
