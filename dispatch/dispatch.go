// Package dispatch executes logical LLM calls against a provider: it owns
// retry with backoff, tool-call round trips, structured-output validation
// with corrective re-prompts, and lifecycle event emission. Provider adapters
// stay single-shot; every policy decision lives here.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lgc202/llmx"
	"github.com/lgc202/llmx/obs"
)

type Dispatcher struct {
	provider llmx.Provider
	policy   Policy
	sink     obs.Sink
	logger   *slog.Logger
}

type Option func(*Dispatcher)

func WithPolicy(p Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

func WithSink(s obs.Sink) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.sink = s
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func New(provider llmx.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		provider: provider,
		policy:   DefaultPolicy(),
		sink:     obs.NopSink{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Execute runs one logical call to completion: retries transient failures,
// resolves tool-call rounds, and validates structured output when the request
// carries a schema. The returned Response always represents a finished call;
// partial state never escapes.
func (d *Dispatcher) Execute(ctx context.Context, req llmx.Request) (llmx.Response, error) {
	callID := obs.NewCallID()
	resp, err := d.run(ctx, callID, req)
	if err != nil {
		d.emit(obs.Event{Type: obs.CallFailed, CallID: callID, Provider: llmx.ProviderName(d.provider), Model: req.Model, Err: err.Error()})
		return llmx.Response{}, err
	}
	d.emit(obs.Event{Type: obs.CallCompleted, CallID: callID, Model: resp.Model, Provider: resp.Provider, Usage: resp.Usage})
	return resp, nil
}

func (d *Dispatcher) run(ctx context.Context, callID string, req llmx.Request) (llmx.Response, error) {
	if err := req.Validate(); err != nil {
		return llmx.Response{}, err
	}

	st := &callState{start: time.Now()}
	cur := req.Clone()
	rounds := 0
	reprompts := 0

	for {
		resp, err := d.attempt(ctx, callID, st, cur)
		if err != nil {
			return llmx.Response{}, err
		}

		if len(resp.Message.ToolCalls) > 0 {
			if rounds >= d.policy.MaxToolRounds {
				return llmx.Response{}, &ToolRoundsError{Rounds: rounds}
			}
			rounds++
			results, terr := d.runTools(ctx, callID, rounds, cur, resp)
			if terr != nil {
				return llmx.Response{}, terr
			}
			next := cur.Clone()
			next.Messages = append(next.Messages, resp.Message.Clone())
			next.Messages = append(next.Messages, results...)
			cur = next
			continue
		}

		if cur.OutputSchema != nil {
			if verr := cur.OutputSchema.Validate([]byte(resp.Message.Text())); verr != nil {
				if reprompts >= d.policy.MaxReprompts {
					return llmx.Response{}, verr
				}
				reprompts++
				d.logger.Debug("output validation failed, re-prompting",
					"call_id", callID, "reprompt", reprompts, "err", verr)
				next := cur.Clone()
				next.Messages = append(next.Messages,
					resp.Message.Clone(),
					llmx.User(correctionPrompt(verr)))
				cur = next
				continue
			}
		}

		return resp, nil
	}
}

type callState struct {
	start    time.Time
	attempts int
}

// attempt runs one vendor round trip with the retry policy applied. The
// retry budget is per round trip; st.attempts numbers every attempt across
// the whole logical call for event reporting. MaxElapsed spans the call.
func (d *Dispatcher) attempt(ctx context.Context, callID string, st *callState, req llmx.Request) (llmx.Response, error) {
	tries := 0
	for {
		if err := ctx.Err(); err != nil {
			return llmx.Response{}, contextError(err)
		}

		st.attempts++
		tries++
		d.emit(obs.Event{
			Type:     obs.CallStarted,
			CallID:   callID,
			Provider: llmx.ProviderName(d.provider),
			Model:    req.Model,
			Attempt:  st.attempts,
		})

		resp, err := d.doOnce(ctx, callID, st.attempts, req)
		if err == nil {
			return resp, nil
		}

		if !llmx.IsRetryable(err) {
			return llmx.Response{}, err
		}
		if tries >= d.policy.maxAttempts() {
			return llmx.Response{}, &ExhaustedError{
				Attempts: tries,
				Elapsed:  time.Since(st.start),
				LastErr:  err,
			}
		}

		delay := d.retryDelay(tries, err)
		if d.policy.MaxElapsed > 0 && time.Since(st.start)+delay > d.policy.MaxElapsed {
			return llmx.Response{}, &ExhaustedError{
				Attempts: tries,
				Elapsed:  time.Since(st.start),
				LastErr:  err,
			}
		}
		d.logger.Debug("retrying after transient failure",
			"call_id", callID, "attempt", st.attempts, "delay", delay, "err", err)
		if serr := sleepCtx(ctx, delay); serr != nil {
			return llmx.Response{}, contextError(serr)
		}
	}
}

func (d *Dispatcher) retryDelay(attempt int, err error) time.Duration {
	delay := d.policy.backoff().Next(attempt)
	if !d.policy.RespectRetryAfter {
		return delay
	}
	e, ok := llmx.AsError(err)
	if !ok || e.RetryAfter <= 0 {
		return delay
	}
	hint := e.RetryAfter
	if d.policy.MaxRetryAfter > 0 && hint > d.policy.MaxRetryAfter {
		hint = d.policy.MaxRetryAfter
	}
	if hint > delay {
		return hint
	}
	return delay
}

// doOnce performs exactly one vendor round trip. Streaming requests are
// drained here so the caller always sees a complete envelope; chunk events
// are emitted as deltas arrive.
func (d *Dispatcher) doOnce(ctx context.Context, callID string, attempt int, req llmx.Request) (llmx.Response, error) {
	if d.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.policy.AttemptTimeout)
		defer cancel()
	}

	if !req.Stream {
		return d.provider.Chat(ctx, req)
	}

	s, err := d.provider.ChatStream(ctx, req)
	if err != nil {
		return llmx.Response{}, err
	}
	defer s.Close()

	var acc llmx.Accumulator
	for {
		ev, rerr := s.Recv()
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			if llmx.IsKind(rerr, llmx.ErrKindStreamEarly) && req.OutputSchema != nil {
				// A truncated stream that already carries a schema-valid payload
				// is accepted instead of retried.
				partial := acc.Response()
				if req.OutputSchema.Validate([]byte(partial.Message.Text())) == nil {
					partial.Provider = llmx.ProviderName(d.provider)
					partial.Model = req.Model
					return partial, nil
				}
			}
			return llmx.Response{}, rerr
		}

		d.emit(obs.Event{
			Type:     obs.ChunkReceived,
			CallID:   callID,
			Provider: llmx.ProviderName(d.provider),
			Model:    req.Model,
			Attempt:  attempt,
		})
		acc.Apply(ev)
		if ev.Done() {
			break
		}
	}

	if !acc.Terminated {
		return llmx.Response{}, &llmx.Error{
			Provider:  llmx.ProviderName(d.provider),
			Kind:      llmx.ErrKindStreamEarly,
			Message:   "stream ended before terminal marker",
			Retryable: true,
		}
	}
	resp := acc.Response()
	resp.Provider = llmx.ProviderName(d.provider)
	resp.Model = req.Model
	return resp, nil
}

// runTools executes every tool call in resp and returns the tool-result
// messages for the follow-up turn. Handler failures become tool results the
// model can react to; only FatalToolError and context cancellation abort.
func (d *Dispatcher) runTools(ctx context.Context, callID string, round int, req llmx.Request, resp llmx.Response) ([]llmx.Message, error) {
	byName := make(map[string]llmx.ToolDefinition, len(req.Tools))
	for _, t := range req.Tools {
		byName[t.Name] = t
	}

	var out []llmx.Message
	for _, tc := range resp.Message.ToolCalls {
		d.emit(obs.Event{
			Type:     obs.ToolInvoked,
			CallID:   callID,
			Provider: resp.Provider,
			Model:    resp.Model,
			Round:    round,
			Tool:     tc.Name,
		})

		def, ok := byName[tc.Name]
		if !ok || def.Handler == nil {
			// Report the miss back to the model; it can recover by picking
			// a declared tool on the next turn.
			out = append(out, llmx.ToolResult(tc.ID, fmt.Sprintf("error: unknown tool %q", tc.Name)))
			continue
		}

		result, herr := def.Handler(ctx, tc.Args())
		if herr != nil {
			var fatal *FatalToolError
			if errors.As(herr, &fatal) {
				if fatal.Tool == "" {
					fatal = &FatalToolError{Tool: tc.Name, Err: fatal.Err}
				}
				return nil, fatal
			}
			if ctx.Err() != nil {
				return nil, contextError(ctx.Err())
			}
			d.logger.Debug("tool handler failed", "call_id", callID, "tool", tc.Name, "err", herr)
			out = append(out, llmx.ToolResult(tc.ID, "error: "+herr.Error()))
			continue
		}
		out = append(out, llmx.ToolResult(tc.ID, result))
	}
	return out, nil
}

func correctionPrompt(verr error) string {
	return fmt.Sprintf(
		"The previous response did not match the required JSON schema: %v. "+
			"Respond again with only a JSON object that satisfies the schema. "+
			"No prose, no markdown fences.", verr)
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &llmx.Error{Kind: llmx.ErrKindTimeout, Message: "deadline exceeded", Retryable: true, Cause: err}
	}
	return &llmx.Error{Kind: llmx.ErrKindCanceled, Message: "call canceled", Cause: err}
}

func (d *Dispatcher) emit(ev obs.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	d.sink.Emit(ev)
}
