// Package retry 对外部调用中的瞬时故障做有限次数的指数退避重试。
package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go/v2"

	"medimate-go/internal/config"
)

// Policy 描述一次重试的上限与退避区间。
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// FromConfig 从配置构造重试策略，未配置时使用默认值。
func FromConfig(cfg config.RetryConfig) Policy {
	p := Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 200 * time.Millisecond
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 5 * time.Second
	}
	return p
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient 将错误标记为可重试。
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient 判断错误是否属于可重试的瞬时故障：超时、网络超时、429 与 5xx。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// Do 执行 op，仅在瞬时故障时重试，最多 MaxAttempts 次。
// 非瞬时错误立即返回；父 context 取消时停止重试。
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)
	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
