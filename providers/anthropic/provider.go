// Package anthropic implements the llmx.Provider contract for the Anthropic
// Messages API.
//
// Structured output has no native response-format knob on this API: the
// adapter advertises the output schema as a forced tool and normalizes the
// resulting tool_use block back into plain JSON text, so nothing outside
// this package ever branches on the vendor.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lgc202/llmx"
	"github.com/lgc202/llmx/internal/transport"
)

const (
	defaultVersion   = "2023-06-01"
	defaultMaxTokens = 1024
)

type Provider struct {
	name string

	apiKey  string
	model   string
	version string

	tr *transport.Client
}

var _ llmx.Provider = (*Provider)(nil)

type Option func(*Provider) error

func New(apiKey string, opts ...Option) (*Provider, error) {
	tr, err := transport.New("https://api.anthropic.com", nil)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		name:    "anthropic",
		apiKey:  apiKey,
		version: defaultVersion,
		tr:      tr,
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

func WithVersion(version string) Option {
	return func(p *Provider) error {
		p.version = version
		return nil
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Chat(ctx context.Context, req llmx.Request) (llmx.Response, error) {
	if err := p.validateRequest(req); err != nil {
		return llmx.Response{}, err
	}

	wreq, err := p.mapRequest(req)
	if err != nil {
		return llmx.Response{}, err
	}
	raw, err := p.tr.DoJSON(ctx, http.MethodPost, "/v1/messages", p.headers(req, "application/json"), wreq)
	if err != nil {
		return llmx.Response{}, p.mapError(err)
	}

	var wresp messageResponse
	if err := json.Unmarshal(raw, &wresp); err != nil {
		return llmx.Response{}, &llmx.Error{Provider: p.name, Kind: llmx.ErrKindParse, Message: "failed to decode response", Raw: raw, Cause: err}
	}

	out := p.mapResponse(wresp, outputToolName(req))
	out.Raw = append(json.RawMessage(nil), raw...)
	return out, nil
}

func (p *Provider) ChatStream(ctx context.Context, req llmx.Request) (llmx.Stream, error) {
	if err := p.validateRequest(req); err != nil {
		return nil, err
	}

	wreq, err := p.mapRequest(req)
	if err != nil {
		return nil, err
	}
	wreq["stream"] = true

	resp, err := p.tr.DoStream(ctx, http.MethodPost, "/v1/messages", p.headers(req, "text/event-stream"), wreq)
	if err != nil {
		return nil, p.mapError(err)
	}
	return newStream(p.name, resp, outputToolName(req)), nil
}

func outputToolName(req llmx.Request) string {
	if req.OutputSchema == nil {
		return ""
	}
	return req.OutputSchema.PayloadName()
}

func (p *Provider) headers(req llmx.Request, accept string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	if accept != "" {
		h.Set("Accept", accept)
	}
	if p.apiKey != "" {
		h.Set("X-Api-Key", p.apiKey)
	}
	h.Set("Anthropic-Version", p.version)
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
