package config

import (
	"errors"
	"fmt"
	"strings"

	xerr "equisense/pkg/error"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，如 EQUISENSE_FEDERATOR_TIMEOUT=3s
const EnvPrefix = "EQUISENSE"

// Load 读取配置。path 为空时在 ./config 和当前目录查找 equisense.yaml，找不到文件时使用默认值。
// 环境变量优先于文件。
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("equisense")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	cfg := Default()
	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, xerr.WrapError(xerr.CodeConfigInvalid, "failed to read config file", err)
		}
	}

	// 文件中给出 sources 时整体替换默认列表，避免按下标合并
	if v.InConfig("sources") {
		cfg.Sources = nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, xerr.WrapError(xerr.CodeConfigInvalid, "failed to unmarshal config", err)
	}

	raw := rawSources(v)
	for i := range cfg.Sources {
		fillSourceDefaults(&cfg.Sources[i])
		if i < len(raw) {
			fillUnsetRetry(&cfg.Sources[i].RateLimit, raw[i])
		}
		cfg.Sources[i].APIKey = cfg.Sources[i].ResolvedAPIKey()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults 注册标量默认值，使 AutomaticEnv 能覆盖这些键
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("logger.level", cfg.Logger.Level)
	v.SetDefault("logger.format", cfg.Logger.Format)
	v.SetDefault("logger.output", cfg.Logger.Output)

	v.SetDefault("cache.backend", cfg.Cache.Backend)
	v.SetDefault("cache.memory.max_size", cfg.Cache.Memory.MaxSize)
	v.SetDefault("cache.memory.default_ttl", cfg.Cache.Memory.DefaultTTL)
	v.SetDefault("cache.memory.cleanup_interval", cfg.Cache.Memory.CleanupInterval)
	v.SetDefault("cache.redis.addr", cfg.Cache.Redis.Addr)
	v.SetDefault("cache.redis.password", cfg.Cache.Redis.Password)
	v.SetDefault("cache.redis.db", cfg.Cache.Redis.DB)
	v.SetDefault("cache.redis.key_prefix", cfg.Cache.Redis.KeyPrefix)
	v.SetDefault("cache.redis.default_ttl", cfg.Cache.Redis.DefaultTTL)

	v.SetDefault("federator.max_sources", cfg.Federator.MaxSources)
	v.SetDefault("federator.timeout", cfg.Federator.Timeout)
	v.SetDefault("federator.max_parallel_keys", cfg.Federator.MaxParallelKeys)

	v.SetDefault("reconciler.conflict_threshold", cfg.Reconciler.ConflictThreshold)
	v.SetDefault("reconciler.conflict_penalty", cfg.Reconciler.ConflictPenalty)
	v.SetDefault("reconciler.max_conflict_penalty", cfg.Reconciler.MaxConflictPenalty)
	v.SetDefault("reconciler.corroboration_bonus", cfg.Reconciler.CorroborationBonus)
	v.SetDefault("reconciler.max_corroboration_bonus", cfg.Reconciler.MaxCorroborationBonus)
	v.SetDefault("reconciler.fallback_source", cfg.Reconciler.FallbackSource)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.mode", cfg.Server.Mode)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	v.SetDefault("reporter.enabled", cfg.Reporter.Enabled)
	v.SetDefault("reporter.schedule", cfg.Reporter.Schedule)
	v.SetDefault("reporter.influx.url", cfg.Reporter.Influx.URL)
	v.SetDefault("reporter.influx.token", cfg.Reporter.Influx.Token)
	v.SetDefault("reporter.influx.org", cfg.Reporter.Influx.Org)
	v.SetDefault("reporter.influx.bucket", cfg.Reporter.Influx.Bucket)
	v.SetDefault("reporter.influx.measurement", cfg.Reporter.Influx.Measurement)

	v.SetDefault("prefetch.enabled", cfg.Prefetch.Enabled)
	v.SetDefault("prefetch.schedule", cfg.Prefetch.Schedule)
	v.SetDefault("prefetch.timeout", cfg.Prefetch.Timeout)
}

// fillSourceDefaults 文件中的数据源只写了部分字段时，未写的限流与熔断参数取默认值
func fillSourceDefaults(s *SourceConfig) {
	def := DefaultRateLimit()
	rl := &s.RateLimit
	if rl.Strategy == "" {
		rl.Strategy = def.Strategy
	}
	if rl.RequestsPerMinute == 0 {
		rl.RequestsPerMinute = def.RequestsPerMinute
	}
	if rl.BurstLimit == 0 {
		rl.BurstLimit = def.BurstLimit
	}
	if rl.MaxConcurrent == 0 {
		rl.MaxConcurrent = def.MaxConcurrent
	}
	if rl.MaxWait == 0 {
		rl.MaxWait = def.MaxWait
	}
	if rl.BaseDelay == 0 {
		rl.BaseDelay = def.BaseDelay
	}
	if rl.MaxDelay == 0 {
		rl.MaxDelay = def.MaxDelay
	}
	if rl.Multiplier == 0 {
		rl.Multiplier = def.Multiplier
	}

	if s.Breaker.FailureThreshold == 0 {
		s.Breaker.FailureThreshold = DefaultBreaker().FailureThreshold
	}
	if s.Breaker.RecoveryTimeout == 0 {
		s.Breaker.RecoveryTimeout = DefaultBreaker().RecoveryTimeout
	}
	if s.Type == "" {
		s.Type = s.Name
	}
}

// rawSources 返回文件中 sources 列表的原始条目，用于区分未写与显式写 0 的字段
func rawSources(v *viper.Viper) []map[string]interface{} {
	if !v.InConfig("sources") {
		return nil
	}
	list, ok := v.Get("sources").([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, len(list))
	for i, item := range list {
		out[i] = asMap(item)
	}
	return out
}

// fillUnsetRetry max_retries 与 jitter 的 0 是合法取值，只有文件中未写时才取默认值
func fillUnsetRetry(rl *RateLimitConfig, raw map[string]interface{}) {
	def := DefaultRateLimit()
	set := asMap(lookup(raw, "rate_limit"))
	if lookup(set, "max_retries") == nil {
		rl.MaxRetries = def.MaxRetries
	}
	if lookup(set, "jitter") == nil {
		rl.Jitter = def.Jitter
	}
}

func lookup(m map[string]interface{}, key string) interface{} {
	for k, val := range m {
		if strings.EqualFold(k, key) {
			return val
		}
	}
	return nil
}

func asMap(item interface{}) map[string]interface{} {
	switch m := item.(type) {
	case map[string]interface{}:
		return m
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out
	}
	return nil
}
