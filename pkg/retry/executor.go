// Package retry 带指数退避和抖动的重试执行器。
package retry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"equisense/pkg/limiter"
	"equisense/pkg/logger"

	"github.com/sirupsen/logrus"
)

// Config 重试配置
type Config struct {
	MaxRetries int           `mapstructure:"max_retries"` // 首次调用之外的最多重试次数
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	Multiplier float64       `mapstructure:"multiplier"`
	Jitter     float64       `mapstructure:"jitter"` // 0.1 表示 ±10%
}

// DefaultConfig 默认重试配置
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

// Retryable 判断错误是否值得重试
type Retryable func(error) bool

var defaultClassifier = limiter.NewErrorClassifier()

// DefaultRetryable 只重试网络级错误；熔断、限流、校验和上下文错误立即返回
func DefaultRetryable(err error) bool {
	return defaultClassifier.IsRetryable(err)
}

// Executor 重试执行器，无状态，可并发使用
type Executor struct {
	config Config
	log    *logrus.Entry

	sleep func(ctx context.Context, d time.Duration) error

	randMu sync.Mutex
	rand   *rand.Rand
}

// NewExecutor 创建重试执行器
func NewExecutor(config Config) *Executor {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 10 * time.Second
	}
	if config.Multiplier < 1 {
		config.Multiplier = 2
	}
	if config.Jitter < 0 {
		config.Jitter = 0
	}

	return &Executor{
		config: config,
		log:    logger.WithComponent("RetryExecutor"),
		sleep:  sleepCtx,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Config 返回重试配置
func (e *Executor) Config() Config {
	return e.config
}

// Run 执行 op，遇到可重试错误按退避重试，耗尽后原样返回最后一次错误。
// 不可重试错误立即返回，不消耗重试次数。isRetryable 为 nil 时使用 DefaultRetryable。
func (e *Executor) Run(ctx context.Context, op func() error, isRetryable Retryable) error {
	if isRetryable == nil {
		isRetryable = DefaultRetryable
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt >= e.config.MaxRetries {
			return lastErr
		}

		delay := e.jittered(e.Delay(attempt))
		e.log.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"backoff": delay.String(),
		}).WithError(lastErr).Debug("可重试错误，等待后重试")

		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Do 泛型版本的 Run，返回 fn 的结果
func Do[T any](ctx context.Context, e *Executor, fn func() (T, error), isRetryable Retryable) (T, error) {
	var result T
	err := e.Run(ctx, func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	}, isRetryable)
	return result, err
}

// Delay 第 attempt 次重试（从 0 开始）前的未抖动等待时长：min(base*multiplier^attempt, max)
func (e *Executor) Delay(attempt int) time.Duration {
	d := float64(e.config.BaseDelay) * math.Pow(e.config.Multiplier, float64(attempt))
	if d > float64(e.config.MaxDelay) || math.IsInf(d, 0) {
		return e.config.MaxDelay
	}
	return time.Duration(d)
}

// jittered 叠加 [-jitter, +jitter] 比例的随机偏移
func (e *Executor) jittered(d time.Duration) time.Duration {
	if e.config.Jitter == 0 {
		return d
	}
	e.randMu.Lock()
	r := e.rand.Float64()
	e.randMu.Unlock()

	offset := (r*2 - 1) * e.config.Jitter * float64(d)
	out := time.Duration(float64(d) + offset)
	if out < 0 {
		return 0
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
