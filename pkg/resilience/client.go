// Package resilience 把限流、熔断和重试组合成每次外部调用统一使用的调用约定。
package resilience

import (
	"context"
	"net/http"
	"time"

	"equisense/pkg/breaker"
	"equisense/pkg/limiter"
	"equisense/pkg/logger"
	"equisense/pkg/retry"

	"github.com/sirupsen/logrus"
)

// Config 单个外部端点的弹性调用配置
type Config struct {
	Name           string         `mapstructure:"name"`
	RateLimit      limiter.Config `mapstructure:"rate_limit"`
	Breaker        breaker.Config `mapstructure:"breaker"`
	Retry          retry.Config   `mapstructure:"retry"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
	UserAgent      string         `mapstructure:"user_agent"`
}

// DefaultConfig 默认弹性调用配置
func DefaultConfig(name string) Config {
	return Config{
		Name:           name,
		RateLimit:      limiter.DefaultConfig(name),
		Breaker:        breaker.DefaultConfig(name),
		Retry:          retry.DefaultConfig(),
		RequestTimeout: 15 * time.Second,
		UserAgent:      "Equisense/1.0",
	}
}

// Client 弹性调用客户端。顺序固定为
// 限流获取 → 熔断保护(重试(实际 I/O)) → 归还槽位。
// 同一端点的所有调用方共享一个实例。
type Client struct {
	name      string
	limiter   *limiter.RateLimiter
	breaker   *breaker.CircuitBreaker
	retry     *retry.Executor
	retryable retry.Retryable

	httpClient *http.Client
	userAgent  string
	log        *logrus.Entry
}

// New 按配置创建客户端
func New(config Config) *Client {
	if config.RateLimit.Name == "" {
		config.RateLimit.Name = config.Name
	}
	if config.Breaker.Name == "" {
		config.Breaker.Name = config.Name
	}
	c := NewWith(config.Name,
		limiter.NewRateLimiter(config.RateLimit),
		breaker.New(config.Breaker),
		retry.NewExecutor(config.Retry),
	)
	if config.RequestTimeout > 0 {
		c.httpClient.Timeout = config.RequestTimeout
	}
	if config.UserAgent != "" {
		c.userAgent = config.UserAgent
	}
	return c
}

// NewWith 用已有组件组装客户端
func NewWith(name string, rl *limiter.RateLimiter, cb *breaker.CircuitBreaker, re *retry.Executor) *Client {
	return &Client{
		name:      name,
		limiter:   rl,
		breaker:   cb,
		retry:     re,
		retryable: retry.DefaultRetryable,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
				MaxConnsPerHost:     10,
			},
			Timeout: 15 * time.Second,
		},
		userAgent: "Equisense/1.0",
		log:       logger.WithComponent("ResilientClient").WithField("endpoint", name),
	}
}

// SetRetryable 替换重试判定函数
func (c *Client) SetRetryable(fn retry.Retryable) {
	if fn == nil {
		fn = retry.DefaultRetryable
	}
	c.retryable = fn
}

// SetHTTPClient 替换底层 HTTP 客户端
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Name 返回端点名称
func (c *Client) Name() string {
	return c.name
}

// Limiter 返回限流器
func (c *Client) Limiter() *limiter.RateLimiter {
	return c.limiter
}

// Breaker 返回熔断器
func (c *Client) Breaker() *breaker.CircuitBreaker {
	return c.breaker
}

// Execute 执行一次逻辑调用。
// 熔断器把重试后的最终结果视为一次调用；首次之后的每次重试都再取一个速率许可，
// 重试不会绕过限流。任何返回路径上并发槽位都会被归还。
func (c *Client) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		c.log.WithError(err).Debug("未能获取限流许可")
		return err
	}
	defer c.limiter.Release()

	return c.breaker.Call(func() error {
		attempt := 0
		return c.retry.Run(ctx, func() error {
			if attempt > 0 {
				if err := c.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			attempt++
			return op(ctx)
		}, c.retryable)
	})
}

// Call 泛型版本的 Execute
func Call[T any](ctx context.Context, c *Client, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := c.Execute(ctx, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}

// Status 限流与熔断的状态快照
func (c *Client) Status() map[string]interface{} {
	return map[string]interface{}{
		"endpoint": c.name,
		"limiter":  c.limiter.Stats(),
		"breaker":  c.breaker.Status(),
	}
}
