package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := limiter.Wait(ctx, "https://p3-sign.douyinpic.com/a.jpeg"); err != nil {
			t.Fatalf("wait failed: %v", err)
		}
	}
	if time.Since(start) > time.Second {
		t.Errorf("unlimited limiter blocked")
	}
}

func TestLimiter_PerHost(t *testing.T) {
	// 1 rps, burst 1
	limiter := NewLimiter(1, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "https://cdn-a.example.com/1.jpg"); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}
	// Another host has its own bucket
	start := time.Now()
	if err := limiter.Wait(ctx, "https://cdn-b.example.com/1.jpg"); err != nil {
		t.Fatalf("other host wait failed: %v", err)
	}
	if time.Since(start) > 200*time.Millisecond {
		t.Errorf("other host was throttled")
	}

	// Same host must wait for the next token
	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, "https://cdn-a.example.com/2.jpg"); err == nil {
		t.Error("expected same-host wait to exceed a 100ms deadline")
	}
}

func TestLimiter_BadURL(t *testing.T) {
	if err := NewLimiter(1, 1).Wait(context.Background(), "://bad"); err == nil {
		t.Error("expected parse error")
	}
}
