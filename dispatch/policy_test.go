package dispatch

import (
	"context"
	"testing"
	"time"
)

func TestExponentialBackoff_Growth(t *testing.T) {
	b := ExponentialBackoff{Base: 100 * time.Millisecond, Max: time.Second}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		if got := b.Next(i + 1); got != w {
			t.Fatalf("Next(%d)=%s, want %s", i+1, got, w)
		}
	}
}

func TestExponentialBackoff_JitterBounds(t *testing.T) {
	b := ExponentialBackoff{Base: 100 * time.Millisecond, Max: time.Second, Jitter: 0.5}

	lo := 50 * time.Millisecond
	hi := 150 * time.Millisecond
	for i := 0; i < 100; i++ {
		got := b.Next(1)
		if got < lo || got > hi {
			t.Fatalf("Next(1)=%s, want within [%s, %s]", got, lo, hi)
		}
	}
}

func TestExponentialBackoff_ZeroValuesGetDefaults(t *testing.T) {
	var b ExponentialBackoff
	if got := b.Next(1); got <= 0 {
		t.Fatalf("Next(1)=%s", got)
	}
	if got := b.Next(100); got > 3*time.Second {
		t.Fatalf("Next(100)=%s exceeds default cap", got)
	}
}

func TestPolicy_Defaults(t *testing.T) {
	p := DefaultPolicy()
	if p.MaxAttempts != 3 || p.MaxToolRounds != 8 || p.MaxReprompts != 1 {
		t.Fatalf("policy=%+v", p)
	}
	if !p.RespectRetryAfter || p.MaxRetryAfter != 30*time.Second {
		t.Fatalf("policy=%+v", p)
	}

	var zero Policy
	if zero.maxAttempts() != 1 {
		t.Fatalf("maxAttempts()=%d", zero.maxAttempts())
	}
	if zero.backoff() == nil {
		t.Fatalf("backoff()=nil")
	}
}

func TestSleepCtx_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Second); err == nil {
		t.Fatalf("expected context error")
	}
	if err := sleepCtx(ctx, 0); err != nil {
		t.Fatalf("zero sleep err=%v", err)
	}
}
