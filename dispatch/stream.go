package dispatch

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/lgc202/llmx"
	"github.com/lgc202/llmx/obs"
)

// Stream opens a streaming call and hands the caller the live stream.
//
// Only the initial connect is retried; once deltas are flowing they cannot be
// replayed, so mid-stream failures surface to the caller as classified errors
// (retryable ErrKindStreamEarly for truncation). Tool rounds and output
// validation do not apply here; callers who want those use Execute with
// Request.Stream set.
func (d *Dispatcher) Stream(ctx context.Context, req llmx.Request) (llmx.Stream, error) {
	callID := obs.NewCallID()

	if err := req.Validate(); err != nil {
		d.emit(obs.Event{Type: obs.CallFailed, CallID: callID, Provider: llmx.ProviderName(d.provider), Model: req.Model, Err: err.Error()})
		return nil, err
	}

	r := req.Clone()
	r.Stream = true

	st := &callState{start: time.Now()}
	for {
		if err := ctx.Err(); err != nil {
			cerr := contextError(err)
			d.emit(obs.Event{Type: obs.CallFailed, CallID: callID, Provider: llmx.ProviderName(d.provider), Model: r.Model, Err: cerr.Error()})
			return nil, cerr
		}

		st.attempts++
		d.emit(obs.Event{
			Type:     obs.CallStarted,
			CallID:   callID,
			Provider: llmx.ProviderName(d.provider),
			Model:    r.Model,
			Attempt:  st.attempts,
		})

		s, err := d.provider.ChatStream(ctx, r)
		if err == nil {
			return &observedStream{
				inner:   s,
				d:       d,
				callID:  callID,
				model:   r.Model,
				attempt: st.attempts,
			}, nil
		}

		if !llmx.IsRetryable(err) || st.attempts >= d.policy.maxAttempts() {
			if llmx.IsRetryable(err) {
				err = &ExhaustedError{Attempts: st.attempts, Elapsed: time.Since(st.start), LastErr: err}
			}
			d.emit(obs.Event{Type: obs.CallFailed, CallID: callID, Provider: llmx.ProviderName(d.provider), Model: r.Model, Err: err.Error()})
			return nil, err
		}

		delay := d.retryDelay(st.attempts, err)
		if serr := sleepCtx(ctx, delay); serr != nil {
			cerr := contextError(serr)
			d.emit(obs.Event{Type: obs.CallFailed, CallID: callID, Provider: llmx.ProviderName(d.provider), Model: r.Model, Err: cerr.Error()})
			return nil, cerr
		}
	}
}

// observedStream wraps a provider stream to emit chunk and terminal events.
type observedStream struct {
	inner   llmx.Stream
	d       *Dispatcher
	callID  string
	model   string
	attempt int

	terminal bool
}

func (s *observedStream) Recv() (llmx.StreamEvent, error) {
	ev, err := s.inner.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, llmx.ErrStreamClosed) {
			return llmx.StreamEvent{}, err
		}
		if !s.terminal {
			s.terminal = true
			s.d.emit(obs.Event{
				Type:     obs.CallFailed,
				CallID:   s.callID,
				Provider: llmx.ProviderName(s.d.provider),
				Model:    s.model,
				Attempt:  s.attempt,
				Err:      err.Error(),
			})
		}
		return llmx.StreamEvent{}, err
	}

	s.d.emit(obs.Event{
		Type:     obs.ChunkReceived,
		CallID:   s.callID,
		Provider: llmx.ProviderName(s.d.provider),
		Model:    s.model,
		Attempt:  s.attempt,
	})
	if ev.Done() && !s.terminal {
		s.terminal = true
		s.d.emit(obs.Event{
			Type:     obs.CallCompleted,
			CallID:   s.callID,
			Provider: llmx.ProviderName(s.d.provider),
			Model:    s.model,
			Attempt:  s.attempt,
			Usage:    ev.Usage,
		})
	}
	return ev, nil
}

func (s *observedStream) Close() error { return s.inner.Close() }
