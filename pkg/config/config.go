package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"equisense/pkg/breaker"
	"equisense/pkg/cache"
	xerr "equisense/pkg/error"
	"equisense/pkg/federator"
	"equisense/pkg/limiter"
	"equisense/pkg/logger"
	"equisense/pkg/reconcile"
	"equisense/pkg/reliability"
	"equisense/pkg/resilience"
	"equisense/pkg/retry"
	"equisense/pkg/scheduler"
	"equisense/pkg/server"
)

// 数据源类型
const (
	SourceTypeQuoteAPI = "quoteapi"
	SourceTypeTencent  = "tencent"
	SourceTypeSina     = "sina"
)

// Config 主配置结构
type Config struct {
	Logger     logger.Config    `mapstructure:"logger"`
	Cache      cache.Config     `mapstructure:"cache"`
	Federator  federator.Config `mapstructure:"federator"`
	Reconciler reconcile.Config `mapstructure:"reconciler"`
	Sources    []SourceConfig   `mapstructure:"sources"`
	Server     server.Config    `mapstructure:"server"`
	Reporter   ReporterConfig   `mapstructure:"reporter"`
	Prefetch   PrefetchConfig   `mapstructure:"prefetch"`
}

// SourceConfig 单个数据源配置
type SourceConfig struct {
	Name             string          `mapstructure:"name"`
	Type             string          `mapstructure:"type"` // quoteapi | tencent | sina
	Enabled          bool            `mapstructure:"enabled"`
	BaseURL          string          `mapstructure:"base_url"`
	APIKey           string          `mapstructure:"api_key"`
	APIKeyEnv        string          `mapstructure:"api_key_env"` // APIKey 为空时从该环境变量读取
	Priority         int             `mapstructure:"priority"`    // 越小越优先，用于质量分相同时排序
	QualityCeiling   float64         `mapstructure:"quality_ceiling"`
	CacheTTL         time.Duration   `mapstructure:"cache_ttl"`
	OffHoursCacheTTL time.Duration   `mapstructure:"off_hours_cache_ttl"` // 非交易时段的缓存时间，0 表示沿用 cache_ttl
	RequestTimeout   time.Duration   `mapstructure:"request_timeout"`
	UserAgent        string          `mapstructure:"user_agent"`
	RateLimit        RateLimitConfig `mapstructure:"rate_limit"`
	Breaker          BreakerConfig   `mapstructure:"breaker"`
}

// RateLimitConfig 端点限流与退避配置，构造后不再修改
type RateLimitConfig struct {
	Strategy          limiter.Strategy `mapstructure:"strategy"`
	RequestsPerMinute int              `mapstructure:"requests_per_minute"`
	RequestsPerHour   int              `mapstructure:"requests_per_hour"`
	BurstLimit        int              `mapstructure:"burst_limit"`
	MaxConcurrent     int              `mapstructure:"max_concurrent"`
	MaxWait           time.Duration    `mapstructure:"max_wait"`
	MaxRetries        int              `mapstructure:"max_retries"`
	BaseDelay         time.Duration    `mapstructure:"base_delay"`
	MaxDelay          time.Duration    `mapstructure:"max_delay"`
	Multiplier        float64          `mapstructure:"multiplier"`
	Jitter            float64          `mapstructure:"jitter"`
}

// BreakerConfig 熔断配置
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
}

// ReporterConfig 可靠性快照上报配置
type ReporterConfig struct {
	Enabled  bool                     `mapstructure:"enabled"`
	Schedule string                   `mapstructure:"schedule"` // cron 表达式，支持秒字段
	Influx   reliability.InfluxConfig `mapstructure:"influx"`
}

// PrefetchConfig 定时预取关注列表，用于预热缓存和积累可靠性样本
type PrefetchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	Keys     []string      `mapstructure:"keys"`
	Timeout  time.Duration `mapstructure:"timeout"` // 单个键的联合查询超时，0 时取 federator.timeout
}

// DefaultRateLimit 默认限流与退避配置
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Strategy:          limiter.StrategyTokenBucket,
		RequestsPerMinute: 60,
		BurstLimit:        5,
		MaxConcurrent:     4,
		MaxWait:           10 * time.Second,
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		Multiplier:        2,
		Jitter:            0.1,
	}
}

// DefaultBreaker 默认熔断配置
func DefaultBreaker() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, RecoveryTimeout: 30 * time.Second}
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Logger: logger.Config{Level: "info", Format: "text", Output: "stdout"},
		Cache: cache.Config{
			Backend: "memory",
			Memory:  cache.MemoryConfig{MaxSize: 10000, DefaultTTL: time.Minute, CleanupInterval: time.Minute},
			Redis:   cache.RedisConfig{Addr: "localhost:6379", KeyPrefix: "equisense:", DefaultTTL: time.Minute},
		},
		Federator:  federator.DefaultConfig(),
		Reconciler: reconcile.DefaultConfig(),
		Sources: []SourceConfig{
			{
				Name:             SourceTypeQuoteAPI,
				Type:             SourceTypeQuoteAPI,
				Enabled:          true,
				APIKeyEnv:        "EQUISENSE_QUOTEAPI_KEY",
				Priority:         1,
				QualityCeiling:   1.0,
				CacheTTL:         time.Minute,
				OffHoursCacheTTL: 10 * time.Minute,
				RequestTimeout:   10 * time.Second,
				RateLimit:        DefaultRateLimit(),
				Breaker:          DefaultBreaker(),
			},
			{
				Name:             SourceTypeTencent,
				Type:             SourceTypeTencent,
				Enabled:          true,
				Priority:         2,
				QualityCeiling:   0.95,
				CacheTTL:         30 * time.Second,
				OffHoursCacheTTL: 30 * time.Minute,
				RequestTimeout:   10 * time.Second,
				RateLimit:        DefaultRateLimit(),
				Breaker:          DefaultBreaker(),
			},
			{
				Name:             SourceTypeSina,
				Type:             SourceTypeSina,
				Enabled:          true,
				Priority:         3,
				QualityCeiling:   0.8,
				CacheTTL:         30 * time.Second,
				OffHoursCacheTTL: 30 * time.Minute,
				RequestTimeout:   10 * time.Second,
				RateLimit:        DefaultRateLimit(),
				Breaker:          DefaultBreaker(),
			},
		},
		Server: server.DefaultConfig(),
		Reporter: ReporterConfig{
			Enabled:  false,
			Schedule: "0 * * * * *",
			Influx: reliability.InfluxConfig{
				URL:         "http://localhost:8086",
				Org:         "equisense",
				Bucket:      "source_health",
				Measurement: "source_reliability",
			},
		},
		Prefetch: PrefetchConfig{
			Enabled:  false,
			Schedule: "*/30 * 9-15 * * 1-5",
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return invalid("at least one source must be configured")
	}

	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return invalid(fmt.Sprintf("duplicate source name %q", s.Name))
		}
		seen[s.Name] = true
	}

	if c.Federator.Timeout <= 0 {
		return invalid("federator timeout must be positive")
	}
	if c.Federator.MaxSources < 0 {
		return invalid("federator max_sources cannot be negative")
	}
	if c.Federator.MaxParallelKeys <= 0 {
		return invalid("federator max_parallel_keys must be positive")
	}

	r := c.Reconciler
	if r.ConflictThreshold <= 0 || r.ConflictThreshold > 1 {
		return invalid("reconciler conflict_threshold must be in (0,1]")
	}
	if r.ConflictPenalty < 0 || r.MaxConflictPenalty < 0 || r.CorroborationBonus < 0 || r.MaxCorroborationBonus < 0 {
		return invalid("reconciler penalties and bonuses cannot be negative")
	}

	if c.Reporter.Enabled {
		if err := scheduler.ValidateSchedule(c.Reporter.Schedule); err != nil {
			return xerr.WrapError(xerr.CodeConfigInvalid, "reporter schedule", err)
		}
		if c.Reporter.Influx.URL == "" || c.Reporter.Influx.Bucket == "" {
			return invalid("reporter influx url and bucket are required when enabled")
		}
	}

	if c.Prefetch.Enabled {
		if err := scheduler.ValidateSchedule(c.Prefetch.Schedule); err != nil {
			return xerr.WrapError(xerr.CodeConfigInvalid, "prefetch schedule", err)
		}
		if len(c.Prefetch.Keys) == 0 {
			return invalid("prefetch keys cannot be empty when enabled")
		}
	}
	return nil
}

// Validate 验证单个数据源配置
func (s *SourceConfig) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return invalid("source name cannot be empty")
	}
	switch s.Type {
	case SourceTypeQuoteAPI, SourceTypeTencent, SourceTypeSina:
	default:
		return invalid(fmt.Sprintf("source %s: unsupported type %q", s.Name, s.Type))
	}
	if s.Priority < 0 {
		return invalid(fmt.Sprintf("source %s: priority cannot be negative", s.Name))
	}
	if s.CacheTTL < 0 || s.OffHoursCacheTTL < 0 {
		return invalid(fmt.Sprintf("source %s: cache ttl cannot be negative", s.Name))
	}
	if s.QualityCeiling < 0 || s.QualityCeiling > 1 {
		return invalid(fmt.Sprintf("source %s: quality_ceiling must be in [0,1]", s.Name))
	}

	rl := s.RateLimit
	switch rl.Strategy {
	case "", limiter.StrategyTokenBucket, limiter.StrategyFixedWindow, limiter.StrategySlidingWindow:
	default:
		return invalid(fmt.Sprintf("source %s: unknown rate limit strategy %q", s.Name, rl.Strategy))
	}
	if rl.RequestsPerMinute <= 0 {
		return invalid(fmt.Sprintf("source %s: requests_per_minute must be positive", s.Name))
	}
	if rl.RequestsPerHour < 0 || rl.BurstLimit < 0 || rl.MaxConcurrent < 0 || rl.MaxWait < 0 {
		return invalid(fmt.Sprintf("source %s: rate limit values cannot be negative", s.Name))
	}
	if rl.MaxRetries < 0 {
		return invalid(fmt.Sprintf("source %s: max_retries cannot be negative", s.Name))
	}
	if rl.MaxDelay > 0 && rl.BaseDelay > rl.MaxDelay {
		return invalid(fmt.Sprintf("source %s: base_delay cannot exceed max_delay", s.Name))
	}
	if s.Breaker.FailureThreshold == 0 {
		return invalid(fmt.Sprintf("source %s: breaker failure_threshold must be positive", s.Name))
	}
	return nil
}

// ResolvedAPIKey 返回 APIKey，为空时读取 APIKeyEnv 指定的环境变量
func (s SourceConfig) ResolvedAPIKey() string {
	if s.APIKey != "" {
		return s.APIKey
	}
	if s.APIKeyEnv != "" {
		return strings.TrimSpace(os.Getenv(s.APIKeyEnv))
	}
	return ""
}

// Resilience 转换为弹性调用配置
func (s SourceConfig) Resilience() resilience.Config {
	rl := s.RateLimit
	return resilience.Config{
		Name: s.Name,
		RateLimit: limiter.Config{
			Name:              s.Name,
			Strategy:          rl.Strategy,
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			BurstLimit:        rl.BurstLimit,
			MaxConcurrent:     rl.MaxConcurrent,
			MaxWait:           rl.MaxWait,
		},
		Breaker: breaker.Config{
			Name:             s.Name,
			FailureThreshold: s.Breaker.FailureThreshold,
			RecoveryTimeout:  s.Breaker.RecoveryTimeout,
		},
		Retry: retry.Config{
			MaxRetries: rl.MaxRetries,
			BaseDelay:  rl.BaseDelay,
			MaxDelay:   rl.MaxDelay,
			Multiplier: rl.Multiplier,
			Jitter:     rl.Jitter,
		},
		RequestTimeout: s.RequestTimeout,
		UserAgent:      s.UserAgent,
	}
}

// EnabledSources 返回启用的数据源
func (c *Config) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Priorities 数据源名到优先级的映射，供对账排序
func (c *Config) Priorities() map[string]int {
	out := make(map[string]int, len(c.Sources))
	for _, s := range c.Sources {
		out[s.Name] = s.Priority
	}
	return out
}

func invalid(msg string) error {
	return xerr.NewError(xerr.CodeConfigInvalid, msg)
}
