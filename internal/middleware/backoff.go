package middleware

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// ExponentialBackoff 指数退避计算：第retry次重试（从0开始）等待 base * 2^retry，
// 加上最多jitter比例的随机抖动，不超过max
func ExponentialBackoff(retry int, base, max time.Duration, jitter float64) time.Duration {
	if base <= 0 {
		return 0
	}
	if retry < 0 {
		retry = 0
	}
	if retry > 30 {
		retry = 30
	}

	delay := base << uint(retry)
	if delay <= 0 {
		delay = max
	}

	if jitter > 0 {
		maxJitter := int64(float64(delay) * jitter)
		if maxJitter > 0 {
			if n, err := rand.Int(rand.Reader, big.NewInt(maxJitter)); err == nil {
				delay += time.Duration(n.Int64())
			}
		}
	}

	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

// RetryWithBackoff 带退避重试的辅助函数。
// fn最多执行attempts次；shouldRetry为false时立即返回该错误。
func RetryWithBackoff(ctx context.Context, attempts int, delay func(retry int) time.Duration, shouldRetry func(error) bool, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := delay(i - 1)
			if wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return fmt.Errorf("等待重试时被取消: %w", ctx.Err())
				case <-timer.C:
				}
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !shouldRetry(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
