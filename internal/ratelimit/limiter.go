package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ollama/ollama/api"
	"golang.org/x/time/rate"
)

const defaultQPM = 30

// Limiter 按每分钟请求数限流，并对可重试错误做有界的指数退避
type Limiter struct {
	limiter    *rate.Limiter
	retryWait  time.Duration // 首次重试等待时间，之后每次翻倍
	maxRetries int
}

// NewLimiter 创建限流器，burst<=0 时取QPM的一半
func NewLimiter(qpm int, burst int) *Limiter {
	if qpm <= 0 {
		qpm = defaultQPM
	}
	if burst <= 0 {
		burst = qpm / 2
		if burst <= 0 {
			burst = 1
		}
	}
	return &Limiter{
		limiter:    rate.NewLimiter(rate.Limit(float64(qpm)/60.0), burst),
		retryWait:  time.Second,
		maxRetries: 3,
	}
}

// WithRetryPolicy 设置重试策略
func (l *Limiter) WithRetryPolicy(waitTime time.Duration, maxRetries int) *Limiter {
	if waitTime > 0 {
		l.retryWait = waitTime
	}
	if maxRetries >= 0 {
		l.maxRetries = maxRetries
	}
	return l
}

// QPM 当前的每分钟请求数
func (l *Limiter) QPM() float64 {
	return float64(l.limiter.Limit()) * 60
}

// Allow 立即尝试获取一个令牌
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Wait 阻塞直到获得令牌或 ctx 结束
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Do 限流执行 fn，仅对可重试错误重试，最多 maxRetries 次
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.retryWait
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(l.maxRetries)), ctx)
	return backoff.Retry(func() error {
		if err := l.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := fn()
		if err != nil && !IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// IsRetryableError 判断错误是否可重试：网络抖动、超时、限流与服务端5xx
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429 || statusErr.StatusCode >= 500
	}

	msg := err.Error()
	for _, s := range []string{
		"timeout",
		"deadline exceeded",
		"connection reset",
		"EOF",
		"connection refused",
		"429",
		"rate limit",
		"status 500",
		"status 502",
		"status 503",
		"status 504",
		"Too Many Requests",
		"Service Unavailable",
		"Bad Gateway",
		"Gateway Timeout",
		"server busy",
		"服务器繁忙",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
