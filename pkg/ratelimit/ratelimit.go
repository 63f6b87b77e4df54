package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	Delay() time.Duration
}

// TokenBucket 令牌桶速率限制器（基于 x/time/rate）
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket 创建令牌桶：每秒补充 perSecond 个令牌，桶容量 burst。
// perSecond <= 0 表示不限速。
func NewTokenBucket(perSecond, burst int) *TokenBucket {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(limit, burst)}
}

// Allow 检查是否允许请求（不阻塞）
func (tb *TokenBucket) Allow() bool {
	return tb.limiter.Allow()
}

// Wait 等待直到允许请求，或 ctx 取消
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter.Wait(ctx)
}

// Delay 当前取一个令牌需要等待的时间（不消耗令牌）
func (tb *TokenBucket) Delay() time.Duration {
	r := tb.limiter.Reserve()
	defer r.Cancel()
	return r.Delay()
}
