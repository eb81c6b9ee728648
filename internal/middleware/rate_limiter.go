package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter 按限流分组保证两次放行之间的最小间隔。
// 同一分组的请求按到达顺序依次放行，不同分组互不阻塞。
type RateLimiter struct {
	mu        sync.Mutex
	intervals map[string]time.Duration
	limiters  map[string]*rate.Limiter
	granted   map[string]int64
}

// NewRateLimiter 创建限流器，intervals为分组到最小间隔的映射，未配置的分组不限流
func NewRateLimiter(intervals map[string]time.Duration) *RateLimiter {
	copied := make(map[string]time.Duration, len(intervals))
	for class, interval := range intervals {
		copied[class] = interval
	}
	return &RateLimiter{
		intervals: copied,
		limiters:  make(map[string]*rate.Limiter),
		granted:   make(map[string]int64),
	}
}

// Acquire 阻塞直到该分组距上次放行已过最小间隔。
// 只有ctx结束时才返回错误，此时预约的时间片会被归还。
func (rl *RateLimiter) Acquire(ctx context.Context, class string) error {
	limiter := rl.limiterFor(class)
	if limiter == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		rl.record(class)
		return nil
	}

	// Reserve在限流器内部加锁，预约顺序即放行顺序
	reservation := limiter.Reserve()
	delay := reservation.Delay()
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			reservation.Cancel()
			return ctx.Err()
		}
	}

	rl.record(class)
	return nil
}

func (rl *RateLimiter) limiterFor(class string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	interval := rl.intervals[class]
	if interval <= 0 {
		return nil
	}
	limiter, ok := rl.limiters[class]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
		rl.limiters[class] = limiter
	}
	return limiter
}

func (rl *RateLimiter) record(class string) {
	rl.mu.Lock()
	rl.granted[class]++
	rl.mu.Unlock()
}

// Interval 返回分组的最小间隔
func (rl *RateLimiter) Interval(class string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.intervals[class]
}

// GetStatus 获取各分组已放行次数
func (rl *RateLimiter) GetStatus() map[string]int64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	status := make(map[string]int64, len(rl.granted))
	for class, count := range rl.granted {
		status[class] = count
	}
	return status
}
