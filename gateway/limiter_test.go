package gateway

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketLimiter(t *testing.T) {
	l := NewTokenBucketLimiter(1000, 2)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("wait err: %v", err)
		}
	}
	if time.Since(start) > time.Second {
		t.Fatalf("limiter too slow")
	}
}

func TestTokenBucketLimiterHonoursContext(t *testing.T) {
	l := NewTokenBucketLimiter(0.001, 1)
	if !l.Allow() {
		t.Fatalf("first token should be available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestSignPayload(t *testing.T) {
	sig := SignPayload("secret", 1700000000000, []byte(`{"a":1}`))
	if len(sig) != 64 {
		t.Fatalf("expected hex sha256, got %q", sig)
	}
	if !VerifyPayload("secret", 1700000000000, []byte(`{"a":1}`), sig) {
		t.Fatalf("signature should verify")
	}
	if VerifyPayload("other", 1700000000000, []byte(`{"a":1}`), sig) {
		t.Fatalf("wrong secret must not verify")
	}
}
