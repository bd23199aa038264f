package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	xerr "equisense/pkg/error"
	"equisense/pkg/limiter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefault 默认配置的关键取值
func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate(), "默认配置应该是有效的")

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Second, cfg.Federator.Timeout)
	assert.Equal(t, 0.10, cfg.Reconciler.ConflictThreshold)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Reporter.Enabled)

	require.Len(t, cfg.Sources, 3)
	assert.Equal(t, map[string]int{"quoteapi": 1, "tencent": 2, "sina": 3}, cfg.Priorities())
	assert.Equal(t, 0.8, cfg.Sources[2].QualityCeiling)

	rl := cfg.Sources[0].RateLimit
	assert.Equal(t, limiter.StrategyTokenBucket, rl.Strategy)
	assert.Equal(t, 3, rl.MaxRetries)
	assert.Equal(t, time.Second, rl.BaseDelay)
	assert.Equal(t, 10*time.Second, rl.MaxDelay)
	assert.Equal(t, 2.0, rl.Multiplier)
}

// TestValidate 各类非法配置
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no sources", func(c *Config) { c.Sources = nil }},
		{"duplicate name", func(c *Config) { c.Sources[1].Name = c.Sources[0].Name }},
		{"empty name", func(c *Config) { c.Sources[0].Name = " " }},
		{"unknown type", func(c *Config) { c.Sources[0].Type = "bloomberg" }},
		{"negative priority", func(c *Config) { c.Sources[0].Priority = -1 }},
		{"ceiling above one", func(c *Config) { c.Sources[0].QualityCeiling = 1.5 }},
		{"unknown strategy", func(c *Config) { c.Sources[0].RateLimit.Strategy = "leaky" }},
		{"zero rpm", func(c *Config) { c.Sources[0].RateLimit.RequestsPerMinute = 0 }},
		{"negative burst", func(c *Config) { c.Sources[0].RateLimit.BurstLimit = -1 }},
		{"negative retries", func(c *Config) { c.Sources[0].RateLimit.MaxRetries = -1 }},
		{"base above max delay", func(c *Config) { c.Sources[0].RateLimit.BaseDelay = time.Minute }},
		{"zero breaker threshold", func(c *Config) { c.Sources[0].Breaker.FailureThreshold = 0 }},
		{"zero federator timeout", func(c *Config) { c.Federator.Timeout = 0 }},
		{"negative max sources", func(c *Config) { c.Federator.MaxSources = -1 }},
		{"zero parallel keys", func(c *Config) { c.Federator.MaxParallelKeys = 0 }},
		{"threshold out of range", func(c *Config) { c.Reconciler.ConflictThreshold = 0 }},
		{"negative penalty", func(c *Config) { c.Reconciler.ConflictPenalty = -0.1 }},
		{"reporter without bucket", func(c *Config) {
			c.Reporter.Enabled = true
			c.Reporter.Influx.Bucket = ""
		}},
		{"reporter without schedule", func(c *Config) {
			c.Reporter.Enabled = true
			c.Reporter.Schedule = ""
		}},
		{"reporter bad schedule", func(c *Config) {
			c.Reporter.Enabled = true
			c.Reporter.Schedule = "hourly"
		}},
		{"prefetch without keys", func(c *Config) { c.Prefetch.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, xerr.CodeConfigInvalid, xerr.CodeOf(err))
		})
	}
}

func TestResolvedAPIKey(t *testing.T) {
	t.Setenv("TEST_EQUISENSE_KEY", " secret ")

	s := SourceConfig{APIKeyEnv: "TEST_EQUISENSE_KEY"}
	assert.Equal(t, "secret", s.ResolvedAPIKey())

	s.APIKey = "inline"
	assert.Equal(t, "inline", s.ResolvedAPIKey(), "显式配置优先于环境变量")

	assert.Empty(t, SourceConfig{}.ResolvedAPIKey())
}

func TestResilience(t *testing.T) {
	s := Default().Sources[1]
	rc := s.Resilience()
	assert.Equal(t, "tencent", rc.Name)
	assert.Equal(t, "tencent", rc.RateLimit.Name)
	assert.Equal(t, 60, rc.RateLimit.RequestsPerMinute)
	assert.Equal(t, uint32(5), rc.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, rc.Breaker.RecoveryTimeout)
	assert.Equal(t, 3, rc.Retry.MaxRetries)
	assert.Equal(t, 0.1, rc.Retry.Jitter)
}

func TestEnabledSources(t *testing.T) {
	cfg := Default()
	cfg.Sources[2].Enabled = false
	enabled := cfg.EnabledSources()
	require.Len(t, enabled, 2)
	assert.Equal(t, "quoteapi", enabled[0].Name)
	assert.Equal(t, "tencent", enabled[1].Name)
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "equisense.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	t.Setenv("TEST_TENCENT_KEY", "k-123")
	path := writeFile(t, `
logger:
  level: debug
federator:
  timeout: 2s
  max_sources: 2
reconciler:
  conflict_threshold: 0.2
sources:
  - name: tencent
    type: tencent
    enabled: true
    priority: 1
    api_key_env: TEST_TENCENT_KEY
    rate_limit:
      requests_per_minute: 120
  - name: sina
    enabled: true
    priority: 2
    quality_ceiling: 0.7
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 2*time.Second, cfg.Federator.Timeout)
	assert.Equal(t, 2, cfg.Federator.MaxSources)
	assert.Equal(t, 4, cfg.Federator.MaxParallelKeys, "未写的键保留默认值")
	assert.Equal(t, 0.2, cfg.Reconciler.ConflictThreshold)
	assert.Equal(t, 0.05, cfg.Reconciler.ConflictPenalty)

	require.Len(t, cfg.Sources, 2, "文件中的数据源列表整体替换默认值")
	tencent := cfg.Sources[0]
	assert.Equal(t, "k-123", tencent.APIKey)
	assert.Equal(t, 120, tencent.RateLimit.RequestsPerMinute)
	assert.Equal(t, 5, tencent.RateLimit.BurstLimit, "未写的限流参数取默认值")
	assert.Equal(t, uint32(5), tencent.Breaker.FailureThreshold)

	sina := cfg.Sources[1]
	assert.Equal(t, SourceTypeSina, sina.Type, "type 缺省时取 name")
	assert.Equal(t, 0.7, sina.QualityCeiling)
}

func TestLoad_FileSourceRetryDefaults(t *testing.T) {
	path := writeFile(t, `
sources:
  - name: tencent
    enabled: true
  - name: sina
    enabled: true
    rate_limit:
      max_retries: 0
      jitter: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 2)

	def := DefaultRateLimit()
	tencent := cfg.Sources[0].RateLimit
	assert.Equal(t, def.MaxRetries, tencent.MaxRetries, "未写 max_retries 时取默认值")
	assert.Equal(t, def.Jitter, tencent.Jitter, "未写 jitter 时取默认值")
	assert.Equal(t, 3, cfg.Sources[0].Resilience().Retry.MaxRetries)

	sina := cfg.Sources[1].RateLimit
	assert.Zero(t, sina.MaxRetries, "显式写 0 表示不重试")
	assert.Zero(t, sina.Jitter)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeFile(t, "federator:\n  timeout: 2s\n")
	t.Setenv("EQUISENSE_FEDERATOR_TIMEOUT", "750ms")
	t.Setenv("EQUISENSE_CACHE_BACKEND", "none")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Federator.Timeout)
	assert.Equal(t, "none", cfg.Cache.Backend)
	assert.Len(t, cfg.Sources, 3)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeFile(t, "reconciler:\n  conflict_threshold: 2\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, xerr.CodeConfigInvalid, xerr.CodeOf(err))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "显式指定的文件不存在时报错")
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Len(t, cfg.Sources, 3)
}
