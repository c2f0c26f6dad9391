// Package openai implements the llmx.Provider contract for the OpenAI
// Chat Completions API and compatible vendors (DeepSeek, Kimi, Qwen,
// Ollama's OpenAI endpoint, ...).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lgc202/llmx"
	"github.com/lgc202/llmx/internal/transport"
)

type Provider struct {
	name string

	apiKey string
	model  string
	path   string

	tr *transport.Client
}

var _ llmx.Provider = (*Provider)(nil)

type Option func(*Provider) error

func New(apiKey string, opts ...Option) (*Provider, error) {
	tr, err := transport.New("https://api.openai.com", nil)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		name:   "openai",
		apiKey: apiKey,
		path:   "/v1/chat/completions",
		tr:     tr,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.tr.Logger == nil {
		p.tr.Logger = slog.Default()
	}
	return p, nil
}

// WithName overrides the provider tag used in responses and errors, for
// OpenAI-compatible vendors served through this adapter.
func WithName(name string) Option {
	return func(p *Provider) error {
		p.name = name
		return nil
	}
}

func WithBaseURL(baseURL string) Option {
	return func(p *Provider) error {
		tr, err := transport.New(baseURL, p.tr.HTTPClient)
		if err != nil {
			return err
		}
		tr.DefaultHeaders = p.tr.DefaultHeaders.Clone()
		tr.UserAgent = p.tr.UserAgent
		tr.Logger = p.tr.Logger
		p.tr = tr
		return nil
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) error {
		p.tr.HTTPClient = c
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) error {
		if logger != nil {
			p.tr.Logger = logger
		}
		return nil
	}
}

func WithDefaultModel(model string) Option {
	return func(p *Provider) error {
		p.model = model
		return nil
	}
}

func WithDefaultHeader(key, value string) Option {
	return func(p *Provider) error {
		p.tr.DefaultHeaders.Add(key, value)
		return nil
	}
}

func WithChatCompletionsPath(path string) Option {
	return func(p *Provider) error {
		p.path = path
		return nil
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Chat(ctx context.Context, req llmx.Request) (llmx.Response, error) {
	if err := p.validateRequest(req); err != nil {
		return llmx.Response{}, err
	}

	wreq := p.mapRequest(req)
	raw, err := p.tr.DoJSON(ctx, http.MethodPost, p.path, p.headers(req, "application/json"), wreq)
	if err != nil {
		return llmx.Response{}, p.mapError(err)
	}

	var wresp chatCompletionResponse
	if err := json.Unmarshal(raw, &wresp); err != nil {
		return llmx.Response{}, &llmx.Error{Provider: p.name, Kind: llmx.ErrKindParse, Message: "failed to decode response", Raw: raw, Cause: err}
	}

	out := p.mapResponse(wresp)
	out.Raw = append(json.RawMessage(nil), raw...)
	return out, nil
}

func (p *Provider) ChatStream(ctx context.Context, req llmx.Request) (llmx.Stream, error) {
	if err := p.validateRequest(req); err != nil {
		return nil, err
	}

	wreq := p.mapRequest(req)
	wreq["stream"] = true

	resp, err := p.tr.DoStream(ctx, http.MethodPost, p.path, p.headers(req, "text/event-stream"), wreq)
	if err != nil {
		return nil, p.mapError(err)
	}
	return newStream(p.name, resp), nil
}

func (p *Provider) headers(req llmx.Request, accept string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	if accept != "" {
		h.Set("Accept", accept)
	}
	if p.apiKey != "" {
		h.Set("Authorization", "Bearer "+p.apiKey)
	}
	if req.Transport != nil {
		for k, vs := range req.Transport.Headers {
			for _, v := range vs {
				h.Set(k, v)
			}
		}
	}
	return h
}

func (p *Provider) validateRequest(req llmx.Request) error {
	if req.Model == "" && p.model == "" {
		return &llmx.Error{Provider: p.name, Kind: llmx.ErrKindBadRequest, Message: "model is required"}
	}
	if err := req.Validate(); err != nil {
		var le *llmx.Error
		if errors.As(err, &le) && le.Provider == "" {
			le.Provider = p.name
		}
		return err
	}
	return nil
}
