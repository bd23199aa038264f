package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"equisense/pkg/cache"
	xerr "equisense/pkg/error"
	"equisense/pkg/logger"
	"equisense/pkg/resilience"
	"equisense/pkg/timing"

	"github.com/sirupsen/logrus"
)

// BaseConfig 数据源公共配置
type BaseConfig struct {
	Name                string
	Priority            int
	RequiresCredentials bool
	APIKey              string
	CacheTTL            time.Duration
	OffHoursCacheTTL    time.Duration // 非交易时段行情不变，可用更长的缓存时间；0 表示始终用 CacheTTL
}

// FetchFunc 执行一次原始抓取并解析出载荷。实现应通过 Base.Client() 发起网络请求。
type FetchFunc func(ctx context.Context, key string) (Payload, error)

// Base 数据源公共抓取流程：凭证检查 → 缓存 → 受保护的网络抓取 → 校验 → 写缓存。
// 具体数据源嵌入 Base，只负责请求构造与字段解析。
type Base struct {
	config BaseConfig
	client *resilience.Client
	cache  cache.Cache
	market *timing.MarketTime
	log    *logrus.Entry
}

// NewBase 创建公共抓取流程；cache 可为 nil
func NewBase(config BaseConfig, client *resilience.Client, c cache.Cache) *Base {
	return &Base{
		config: config,
		client: client,
		cache:  c,
		market: timing.DefaultMarketTime(),
		log:    logger.WithSource("DataSource", config.Name),
	}
}

// SetMarketTime 替换交易时段判断，用于测试
func (b *Base) SetMarketTime(m *timing.MarketTime) {
	b.market = m
}

// Name 返回数据源名称
func (b *Base) Name() string {
	return b.config.Name
}

// Priority 返回配置优先级
func (b *Base) Priority() int {
	return b.config.Priority
}

// IsConfigured 需要凭证的数据源只有配置了 API Key 才可用
func (b *Base) IsConfigured() bool {
	return !b.config.RequiresCredentials || strings.TrimSpace(b.config.APIKey) != ""
}

// APIKey 返回 API Key
func (b *Base) APIKey() string {
	return b.config.APIKey
}

// Client 返回弹性调用客户端
func (b *Base) Client() *resilience.Client {
	return b.client
}

// Log 返回数据源日志
func (b *Base) Log() *logrus.Entry {
	return b.log
}

// Fetch 执行完整抓取流程，任何错误或 panic 都被转换为失败结果
func (b *Base) Fetch(ctx context.Context, key string, fetch FetchFunc, v Validator) (result DataSourceResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.log.WithField("key", key).Errorf("抓取过程发生 panic: %v", r)
			result = NewFailure(b.config.Name,
				xerr.NewError(xerr.CodeValidationFailed, fmt.Sprintf("%s: panic during fetch: %v", b.config.Name, r)))
		}
		result = result.WithLatency(time.Since(start))
	}()

	if !b.IsConfigured() {
		return NewFailure(b.config.Name, xerr.WrapError(xerr.CodeMissingCredentials,
			fmt.Sprintf("%s: api key not configured", b.config.Name), ErrMissingCredentials))
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return NewFailure(b.config.Name, ErrEmptyKey)
	}

	if cached, ok := b.fromCache(ctx, key); ok {
		return cached
	}

	payload, err := fetch(ctx, key)
	if err != nil {
		b.log.WithField("key", key).WithError(err).Debug("抓取失败")
		return NewFailure(b.config.Name, err)
	}

	valid, quality, fields := v.Validate(payload)
	if !valid {
		err := v.ValidationError(b.config.Name, payload)
		b.log.WithField("key", key).WithError(err).Warn("数据校验失败")
		return NewFailure(b.config.Name, err)
	}

	result = NewSuccess(b.config.Name, payload, quality, fields)
	b.toCache(ctx, key, result)
	return result
}

func (b *Base) cacheKey(key string) string {
	return "source:" + b.config.Name + ":" + key
}

// fromCache 缓存未命中或不可用都只意味着走网络
func (b *Base) fromCache(ctx context.Context, key string) (DataSourceResult, bool) {
	if b.cache == nil {
		return DataSourceResult{}, false
	}
	data, err := b.cache.Get(ctx, b.cacheKey(key))
	if err != nil {
		if !cache.IsMiss(err) {
			b.log.WithError(err).Debug("缓存读取失败，改为网络抓取")
		}
		return DataSourceResult{}, false
	}

	var cached DataSourceResult
	if err := json.Unmarshal(data, &cached); err != nil || !cached.OK() {
		b.log.WithError(err).Debug("缓存条目无法解析，忽略")
		return DataSourceResult{}, false
	}
	return cached.WithCacheHit(), true
}

func (b *Base) toCache(ctx context.Context, key string, result DataSourceResult) {
	if b.cache == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		b.log.WithError(err).Debug("结果序列化失败，跳过缓存")
		return
	}
	if err := b.cache.Set(ctx, b.cacheKey(key), data, b.cacheTTL()); err != nil {
		b.log.WithError(err).Debug("缓存写入失败")
	}
}

func (b *Base) cacheTTL() time.Duration {
	if b.config.OffHoursCacheTTL > 0 && !b.market.IsTradingTime() {
		return b.config.OffHoursCacheTTL
	}
	return b.config.CacheTTL
}
