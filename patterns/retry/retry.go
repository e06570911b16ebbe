// Package retry 带指数退避的重试
//
// 修订通知发布失败时使用；输入类错误（校验失败、参数错误）不重试。
package retry

import (
	"context"
	"time"

	"revtrail/errors"
)

// Operation 可重试的操作，attempt 从 1 开始
type Operation func(ctx context.Context, attempt int) error

// Config 重试配置
type Config struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`  // 最大尝试次数（包括首次）
	InitialDelay  time.Duration `mapstructure:"initial_delay"` // 初始退避延迟
	BackoffFactor float64       `mapstructure:"backoff_factor"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`

	// Retryable 判断错误是否值得重试，默认 Retryable
	Retryable func(err error) bool
}

// DefaultConfig 默认 3 次尝试，10ms 起步，最多等待 1s
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      time.Second,
	}
}

// Retryable 校验与参数错误不重试，其余错误重试
func Retryable(err error) bool {
	switch errors.GetErrorCode(err) {
	case errors.ErrCodeValidation, errors.ErrCodeInvalidInput:
		return false
	}
	return true
}

// Do 执行操作直到成功、遇到不可重试错误、次数用尽或 ctx 结束，返回最后一次的错误
func Do(ctx context.Context, op Operation, cfg Config) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Retryable == nil {
		cfg.Retryable = Retryable
	}

	var lastErr error
	delay := cfg.InitialDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts || !cfg.Retryable(lastErr) {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = nextDelay(delay, cfg)
	}
	return lastErr
}

func nextDelay(current time.Duration, cfg Config) time.Duration {
	factor := cfg.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	next := time.Duration(float64(current) * factor)
	if cfg.MaxDelay > 0 && next > cfg.MaxDelay {
		next = cfg.MaxDelay
	}
	return next
}
