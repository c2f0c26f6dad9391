// Package obs defines the one-way observation boundary for call lifecycle
// events. Sinks receive copies of events for telemetry; they never influence
// control flow and the dispatcher never blocks on them.
package obs

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lgc202/llmx"
)

type EventType string

const (
	CallStarted   EventType = "call_started"
	ChunkReceived EventType = "chunk_received"
	ToolInvoked   EventType = "tool_invoked"
	CallCompleted EventType = "call_completed"
	CallFailed    EventType = "call_failed"
)

// Event is one lifecycle notification for a logical call.
//
// Attempt counts from 1 and increments on every retry; Round counts
// tool-call rounds. Usage is set on completion when the vendor reported it.
type Event struct {
	Type   EventType
	CallID string

	Provider string
	Model    string

	Attempt int
	Round   int
	Tool    string

	Time  time.Time
	Usage *llmx.Usage
	Err   string
}

// NewCallID returns a fresh identifier for one logical call.
func NewCallID() string { return uuid.NewString() }

// Sink receives lifecycle events. Emit must not block; implementations that
// forward to slow backends should buffer and drop rather than stall a call.
type Sink interface {
	Emit(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// LogSink writes events to a slog logger at debug level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ev Event) {
	if s.Logger == nil {
		return
	}
	attrs := []any{
		"call_id", ev.CallID,
		"provider", ev.Provider,
		"model", ev.Model,
		"attempt", ev.Attempt,
	}
	if ev.Round > 0 {
		attrs = append(attrs, "round", ev.Round)
	}
	if ev.Tool != "" {
		attrs = append(attrs, "tool", ev.Tool)
	}
	if ev.Err != "" {
		attrs = append(attrs, "err", ev.Err)
	}
	if ev.Usage != nil {
		attrs = append(attrs, "total_tokens", ev.Usage.TotalTokens)
	}
	s.Logger.Debug(string(ev.Type), attrs...)
}

// Multi fans an event out to several sinks.
type Multi []Sink

func (m Multi) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}
