package gateway

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter 控制请求速率，避免触发 relayer/RPC 限流。
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// TokenBucketLimiter 令牌桶限流，基于 x/time/rate。
type TokenBucketLimiter struct {
	l *rate.Limiter
}

func NewTokenBucketLimiter(perSecond float64, burst int) *TokenBucketLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketLimiter{l: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait 阻塞直到拿到令牌或 ctx 结束。
func (t *TokenBucketLimiter) Wait(ctx context.Context) error {
	return t.l.Wait(ctx)
}

// Allow 非阻塞尝试。
func (t *TokenBucketLimiter) Allow() bool {
	return t.l.Allow()
}

type noLimit struct{}

func (noLimit) Wait(context.Context) error { return nil }
