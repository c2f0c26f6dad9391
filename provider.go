package llmx

import "context"

// Provider is the interface an LLM vendor adapter must implement.
//
// Implementations are expected to:
//   - treat Request as read-only
//   - return an *Error (or wrap one) for every vendor/HTTP failure
//   - honor ctx cancellation at every blocking point
//
// Adapters own vendor-specific mapping only: role names, tool-schema dialect,
// streaming chunk shape and error payload shape. Retry, extraction and stream
// reassembly live outside so adding a vendor never touches shared logic.
type Provider interface {
	Chat(ctx context.Context, req Request) (Response, error)
	ChatStream(ctx context.Context, req Request) (Stream, error)
}

// Namer is an optional interface for discovering which vendor a Provider
// is backed by.
type Namer interface {
	Name() string
}

func ProviderName(p Provider) string {
	if n, ok := p.(Namer); ok {
		return n.Name()
	}
	return "unknown"
}
