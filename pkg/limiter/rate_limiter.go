package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	xerr "equisense/pkg/error"
)

// Strategy 限流策略
type Strategy string

const (
	// StrategyTokenBucket 令牌桶：容量为 burst，按 rpm/60 每秒匀速补充
	StrategyTokenBucket Strategy = "token_bucket"
	// StrategyFixedWindow 固定窗口：窗口从上一窗口过期后的首次授予开始，持续一分钟，期间最多 rpm 次
	StrategyFixedWindow Strategy = "fixed_window"
	// StrategySlidingWindow 滑动窗口：任意最近一分钟内最多 rpm 次
	StrategySlidingWindow Strategy = "sliding_window"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

// ErrRateLimitExceeded 等待许可超过了 MaxWait
var ErrRateLimitExceeded = xerr.NewError(xerr.CodeRateLimitExceeded, "rate limit exceeded")

// Config 单个外部端点的限流配置
type Config struct {
	Name              string        `mapstructure:"name"`
	Strategy          Strategy      `mapstructure:"strategy"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	RequestsPerHour   int           `mapstructure:"requests_per_hour"` // 0 表示不限制
	BurstLimit        int           `mapstructure:"burst_limit"`
	MaxConcurrent     int           `mapstructure:"max_concurrent"` // 0 表示不限制并发
	MaxWait           time.Duration `mapstructure:"max_wait"`       // 0 表示无限等待（仍受 ctx 约束）
}

// DefaultConfig 默认限流配置
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		Strategy:          StrategyTokenBucket,
		RequestsPerMinute: 60,
		BurstLimit:        5,
		MaxConcurrent:     4,
	}
}

// Stats 限流器统计
type Stats struct {
	Granted  int64 `json:"granted"`
	Rejected int64 `json:"rejected"`
	Waited   int64 `json:"waited"`
	InFlight int   `json:"in_flight"`
}

// RateLimiter 端点级限流器，同时约束吞吐（rpm/rph）与同时在途请求数。
// 同一端点的所有并发调用方共享一个实例。
type RateLimiter struct {
	config Config
	now    func() time.Time

	mu sync.Mutex

	// 令牌桶状态
	tokens     float64
	lastRefill time.Time

	// 固定窗口状态
	windowStart time.Time
	windowCount int

	// 滑动窗口授予记录
	minuteLog []time.Time
	hourLog   []time.Time

	stats Stats

	// 并发槽位，nil 表示不限制
	slots chan struct{}
}

// NewRateLimiter 创建限流器
func NewRateLimiter(config Config) *RateLimiter {
	if config.Strategy == "" {
		config.Strategy = StrategyTokenBucket
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.BurstLimit <= 0 {
		config.BurstLimit = 1
	}

	rl := &RateLimiter{
		config: config,
		now:    time.Now,
	}
	rl.tokens = float64(config.BurstLimit)
	rl.lastRefill = rl.now()
	if config.MaxConcurrent > 0 {
		rl.slots = make(chan struct{}, config.MaxConcurrent)
	}
	return rl
}

// Name 返回端点名称
func (rl *RateLimiter) Name() string {
	return rl.config.Name
}

// Config 返回限流配置副本
func (rl *RateLimiter) Config() Config {
	return rl.config
}

// Acquire 阻塞直到同时拿到速率许可和并发槽位。
// 超过 MaxWait 返回 ErrRateLimitExceeded，ctx 结束返回 ctx.Err()。
// 成功返回后调用方必须调用 Release。
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	var deadline time.Time
	if rl.config.MaxWait > 0 {
		deadline = rl.now().Add(rl.config.MaxWait)
	}

	// 先占槽位再取许可，排队超时的调用方不消耗速率许可
	if err := rl.acquireSlot(ctx, deadline); err != nil {
		return err
	}
	if err := rl.acquirePermit(ctx, deadline); err != nil {
		rl.Release()
		return err
	}
	return nil
}

// Wait 只等待一个速率许可，不占用并发槽位。
// 已持有槽位的调用方在重试前用它继续受速率约束。
func (rl *RateLimiter) Wait(ctx context.Context) error {
	var deadline time.Time
	if rl.config.MaxWait > 0 {
		deadline = rl.now().Add(rl.config.MaxWait)
	}
	return rl.acquirePermit(ctx, deadline)
}

// Release 归还并发槽位；未启用并发约束时为空操作
func (rl *RateLimiter) Release() {
	if rl.slots == nil {
		return
	}
	select {
	case <-rl.slots:
	default:
	}
}

// Do 在持有许可期间执行 fn，无论 fn 结果如何都会归还槽位
func (rl *RateLimiter) Do(ctx context.Context, fn func() error) error {
	if err := rl.Acquire(ctx); err != nil {
		return err
	}
	defer rl.Release()
	return fn()
}

// Stats 获取统计信息
func (rl *RateLimiter) Stats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	s := rl.stats
	if rl.slots != nil {
		s.InFlight = len(rl.slots)
	}
	return s
}

// acquirePermit 循环：加锁计算缺口，有许可则授予，否则解锁睡眠缺口时长后重试
func (rl *RateLimiter) acquirePermit(ctx context.Context, deadline time.Time) error {
	waited := false
	for {
		rl.mu.Lock()
		wait := rl.tryGrant()
		if wait <= 0 {
			rl.stats.Granted++
			if waited {
				rl.stats.Waited++
			}
			rl.mu.Unlock()
			return nil
		}
		if !deadline.IsZero() && rl.now().Add(wait).After(deadline) {
			rl.stats.Rejected++
			rl.mu.Unlock()
			return rl.exceeded(wait)
		}
		rl.mu.Unlock()

		waited = true
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// tryGrant 在持锁状态下尝试授予一次许可，返回 0 表示已授予，否则返回需要等待的时长
func (rl *RateLimiter) tryGrant() time.Duration {
	now := rl.now()

	if rl.config.RequestsPerHour > 0 {
		rl.hourLog = trim(rl.hourLog, now.Add(-hourWindow))
		if len(rl.hourLog) >= rl.config.RequestsPerHour {
			return rl.hourLog[0].Add(hourWindow).Sub(now)
		}
	}

	var wait time.Duration
	switch rl.config.Strategy {
	case StrategyFixedWindow:
		wait = rl.fixedWindow(now)
	case StrategySlidingWindow:
		wait = rl.slidingWindow(now)
	default:
		wait = rl.tokenBucket(now)
	}
	if wait > 0 {
		return wait
	}

	if rl.config.RequestsPerHour > 0 {
		rl.hourLog = append(rl.hourLog, now)
	}
	return 0
}

// tokenBucket 惰性补充令牌，不足 1 个时返回精确的缺口时长，令牌数不会为负
func (rl *RateLimiter) tokenBucket(now time.Time) time.Duration {
	ratePerSec := float64(rl.config.RequestsPerMinute) / 60.0

	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed > 0 {
		rl.tokens += elapsed * ratePerSec
		rl.lastRefill = now
	}
	if capacity := float64(rl.config.BurstLimit); rl.tokens > capacity {
		rl.tokens = capacity
	}

	if rl.tokens >= 1 {
		rl.tokens--
		return 0
	}
	if rl.tokens < 0 {
		rl.tokens = 0
	}

	deficit := (1 - rl.tokens) / ratePerSec
	wait := time.Duration(deficit * float64(time.Second))
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

func (rl *RateLimiter) fixedWindow(now time.Time) time.Duration {
	if rl.windowStart.IsZero() || !now.Before(rl.windowStart.Add(minuteWindow)) {
		rl.windowStart = now
		rl.windowCount = 0
	}
	if rl.windowCount >= rl.config.RequestsPerMinute {
		return rl.windowStart.Add(minuteWindow).Sub(now)
	}
	rl.windowCount++
	return 0
}

func (rl *RateLimiter) slidingWindow(now time.Time) time.Duration {
	rl.minuteLog = trim(rl.minuteLog, now.Add(-minuteWindow))
	if len(rl.minuteLog) >= rl.config.RequestsPerMinute {
		return rl.minuteLog[0].Add(minuteWindow).Sub(now)
	}
	rl.minuteLog = append(rl.minuteLog, now)
	return 0
}

func (rl *RateLimiter) acquireSlot(ctx context.Context, deadline time.Time) error {
	if rl.slots == nil {
		return nil
	}

	select {
	case rl.slots <- struct{}{}:
		return nil
	default:
	}

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		remaining := deadline.Sub(rl.now())
		if remaining <= 0 {
			rl.reject()
			return rl.exceeded(0)
		}
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case rl.slots <- struct{}{}:
		return nil
	case <-timeout:
		rl.reject()
		return rl.exceeded(0)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rl *RateLimiter) reject() {
	rl.mu.Lock()
	rl.stats.Rejected++
	rl.mu.Unlock()
}

func (rl *RateLimiter) exceeded(wait time.Duration) error {
	msg := fmt.Sprintf("%s: max wait %v exceeded", rl.config.Name, rl.config.MaxWait)
	return xerr.WrapError(xerr.CodeRateLimitExceeded, msg, nil).
		WithContext("endpoint", rl.config.Name).
		WithContext("required_wait", wait.String())
}

// trim 丢弃早于 cutoff 的记录，log 按时间递增
func trim(log []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return log
	}
	return append(log[:0], log[i:]...)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
