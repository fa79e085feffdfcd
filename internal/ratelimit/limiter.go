package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter 控制对下游服务的请求速率，避免触发对端限流。
type Limiter interface {
	Wait(ctx context.Context) error
}

// TokenBucketLimiter 是一个简单的令牌桶实现。
type TokenBucketLimiter struct {
	rate   float64
	burst  int
	tokens float64
	last   time.Time
	mu     sync.Mutex
}

func NewTokenBucketLimiter(rate float64, burst int) *TokenBucketLimiter {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketLimiter{
		rate:   rate,
		burst:  burst,
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// reserve 取一个令牌；不足时返回需要等待的时长并预扣
func (l *TokenBucketLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	l.last = now
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}
	l.tokens--
	if l.tokens >= 0 {
		return 0
	}
	return time.Duration(-l.tokens / l.rate * float64(time.Second))
}

// cancel 归还预扣的令牌
func (l *TokenBucketLimiter) cancel() {
	l.mu.Lock()
	l.tokens++
	l.mu.Unlock()
}

func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	wait := l.reserve()
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		l.cancel()
		return ctx.Err()
	}
}

// CompositeLimiter 组合限速器：令牌桶 + 双窗硬上限（10s/60s）
type CompositeLimiter struct {
	tb           *TokenBucketLimiter
	window10sMax int
	window60sMax int
	mu           sync.Mutex
	recent       []time.Time
}

func NewCompositeLimiter(rate float64, burst int, max10s, max60s int) *CompositeLimiter {
	return &CompositeLimiter{
		tb:           NewTokenBucketLimiter(rate, burst),
		window10sMax: max10s,
		window60sMax: max60s,
		recent:       make([]time.Time, 0, 1024),
	}
}

func (l *CompositeLimiter) Wait(ctx context.Context) error {
	for {
		now := time.Now()
		// 维护滑动窗口计数
		l.mu.Lock()
		cut10 := now.Add(-10 * time.Second)
		cut60 := now.Add(-60 * time.Second)
		pruned := l.recent[:0]
		cnt10 := 0
		cnt60 := 0
		for _, t := range l.recent {
			if t.After(cut60) {
				pruned = append(pruned, t)
				if t.After(cut10) {
					cnt10++
				}
				cnt60++
			}
		}
		l.recent = pruned
		over := (l.window10sMax > 0 && cnt10 >= l.window10sMax) || (l.window60sMax > 0 && cnt60 >= l.window60sMax)
		l.mu.Unlock()
		if over {
			select {
			case <-time.After(50 * time.Millisecond):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		// 令牌桶限速
		if err := l.tb.Wait(ctx); err != nil {
			return err
		}
		// 记录本次请求
		l.mu.Lock()
		l.recent = append(l.recent, time.Now())
		l.mu.Unlock()
		return nil
	}
}
