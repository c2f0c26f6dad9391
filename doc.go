// Package llmx provides a provider-agnostic LLM call abstraction.
//
// Design goals:
//   - Stable domain model: callers describe one invocation with canonical types
//     (Request, Message, ToolDefinition) and get back a canonical Response,
//     regardless of which vendor served it.
//   - Explicit streaming: providers emit StreamEvent values (text/tool deltas,
//     usage, done) and callers can reconstruct final responses using
//     Accumulator or DrainStream.
//   - Uniform failure model: every vendor error is classified into an Error
//     with a stable ErrorKind at the provider boundary and never leaks past it.
//
// Provider implementations live under providers/ and are responsible for
// mapping between the canonical model and each vendor's wire format. Retry,
// structured extraction and tool-call orchestration live in the dispatch
// package and never touch vendor specifics.
package llmx
