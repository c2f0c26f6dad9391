package dispatch

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
	"time"
)

// Policy is the caller-configurable budget for one logical call: how hard to
// retry, how long to wait per attempt, and how many tool-call rounds and
// extraction re-prompts to allow before giving up.
type Policy struct {
	// MaxAttempts includes the initial attempt. If <= 1, retries are disabled.
	MaxAttempts int

	// MaxElapsed is the max total time spent across attempts (including
	// backoff sleeps). If zero, only the request context applies.
	MaxElapsed time.Duration

	// Backoff computes the sleep duration before the next retry.
	// If nil, DefaultBackoff() is used.
	Backoff Backoff

	// RespectRetryAfter uses the vendor's retry-after hint as the backoff for
	// rate-limit errors when present.
	RespectRetryAfter bool

	// MaxRetryAfter caps the vendor hint. If zero, no cap is applied.
	MaxRetryAfter time.Duration

	// AttemptTimeout bounds each individual vendor round trip. It is
	// independent from MaxElapsed. Zero disables it.
	AttemptTimeout time.Duration

	// MaxToolRounds bounds tool-call round trips within one logical call.
	MaxToolRounds int

	// MaxReprompts bounds corrective re-prompts after a failed extraction.
	MaxReprompts int
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		MaxElapsed:        0,
		Backoff:           DefaultBackoff(),
		RespectRetryAfter: true,
		MaxRetryAfter:     30 * time.Second,
		AttemptTimeout:    0,
		MaxToolRounds:     8,
		MaxReprompts:      1,
	}
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) backoff() Backoff {
	if p.Backoff != nil {
		return p.Backoff
	}
	return DefaultBackoff()
}

type Backoff interface {
	// Next returns how long to sleep before retrying attempt+1.
	// attempt starts at 1 for the first retry (i.e. after the first failure).
	Next(attempt int) time.Duration
}

type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // 0..1
}

func DefaultBackoff() Backoff {
	return ExponentialBackoff{
		Base:   200 * time.Millisecond,
		Max:    3 * time.Second,
		Jitter: 0.2,
	}
}

var (
	jitterMu  sync.Mutex
	jitterRng = rand.New(rand.NewPCG(seed64(), seed64()))
)

func seed64() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err == nil {
		return binary.LittleEndian.Uint64(b[:])
	}
	// Fallback: time-based seed (still better than deterministic).
	return uint64(time.Now().UnixNano())
}

func jitterFloat64() float64 {
	jitterMu.Lock()
	defer jitterMu.Unlock()
	return jitterRng.Float64()
}

func (b ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	max := b.Max
	if max <= 0 {
		max = 3 * time.Second
	}

	// base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		if d >= max/2 {
			d = max
			break
		}
		d *= 2
	}
	if d > max {
		d = max
	}

	j := b.Jitter
	if j <= 0 {
		return d
	}
	if j > 1 {
		j = 1
	}

	// +/- jitter%
	f := 1 + (jitterFloat64()*2-1)*j
	if f < 0 {
		f = 0
	}
	return time.Duration(float64(d) * f)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
