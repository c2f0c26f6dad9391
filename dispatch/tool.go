package dispatch

import (
	"context"
	"encoding/json"

	"github.com/lgc202/llmx"
	"github.com/lgc202/llmx/extract"
)

// NewTool builds a ToolDefinition whose input schema is derived from T and
// whose handler receives decoded arguments instead of raw JSON.
func NewTool[T any](name, description string, fn func(ctx context.Context, args T) (string, error)) (llmx.ToolDefinition, error) {
	schema, err := extract.SchemaFor[T]()
	if err != nil {
		return llmx.ToolDefinition{}, err
	}
	return llmx.ToolDefinition{
		Name:        name,
		Description: description,
		InputSchema: schema.JSONSchema(),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var decoded T
			if len(args) > 0 {
				if err := json.Unmarshal(args, &decoded); err != nil {
					return "", err
				}
			}
			return fn(ctx, decoded)
		},
	}, nil
}

// MustTool is NewTool for static tool tables; it panics on schema errors.
func MustTool[T any](name, description string, fn func(ctx context.Context, args T) (string, error)) llmx.ToolDefinition {
	td, err := NewTool(name, description, fn)
	if err != nil {
		panic(err)
	}
	return td
}

// Extract executes req with the schema of T attached and decodes the
// validated payload into T.
func Extract[T any](ctx context.Context, d *Dispatcher, req llmx.Request) (T, error) {
	var zero T
	schema, err := extract.SchemaFor[T]()
	if err != nil {
		return zero, err
	}
	r := req.Clone()
	r.OutputSchema = &schema

	resp, err := d.Execute(ctx, r)
	if err != nil {
		return zero, err
	}
	return extract.Unmarshal[T]([]byte(resp.Message.Text()))
}
