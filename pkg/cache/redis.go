package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig Redis 缓存配置
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	Timeout    time.Duration `mapstructure:"timeout"` // 单次操作超时
}

// RedisCache 基于 Redis 的共享缓存，多个进程可共用抓取结果
type RedisCache struct {
	client     *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
	timeout    time.Duration
	hitCount   int64
	missCount  int64
}

// NewRedisCache 创建 Redis 缓存。不在构造时探测连通性，后端故障在每次操作时以 ErrUnavailable 返回。
func NewRedisCache(config RedisConfig) *RedisCache {
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "equisense:"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = 500 * time.Millisecond
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.Timeout,
		ReadTimeout:  config.Timeout,
		WriteTimeout: config.Timeout,
		// 缓存故障直接降级为网络抓取，不在这里重试
		MaxRetries: -1,
	})
	return NewRedisCacheWithClient(client, config.KeyPrefix, config.DefaultTTL, config.Timeout)
}

// NewRedisCacheWithClient 使用已有客户端创建缓存
func NewRedisCacheWithClient(client *redis.Client, keyPrefix string, defaultTTL, timeout time.Duration) *RedisCache {
	return &RedisCache{
		client:     client,
		keyPrefix:  keyPrefix,
		defaultTTL: defaultTTL,
		timeout:    timeout,
	}
}

// Ping 检查 Redis 连通性
func (rc *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	if err := rc.client.Ping(ctx).Err(); err != nil {
		return unavailable("redis ping", err)
	}
	return nil
}

// Get 获取缓存值
func (rc *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()

	val, err := rc.client.Get(ctx, rc.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		atomic.AddInt64(&rc.missCount, 1)
		return nil, ErrMiss
	}
	if err != nil {
		atomic.AddInt64(&rc.missCount, 1)
		return nil, unavailable("redis get", err)
	}
	atomic.AddInt64(&rc.hitCount, 1)
	return val, nil
}

// Set 设置缓存值
func (rc *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = rc.defaultTTL
	}
	ctx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()

	if err := rc.client.Set(ctx, rc.keyPrefix+key, value, ttl).Err(); err != nil {
		return unavailable("redis set", err)
	}
	return nil
}

// Delete 删除缓存值
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()

	if err := rc.client.Del(ctx, rc.keyPrefix+key).Err(); err != nil {
		return unavailable("redis del", err)
	}
	return nil
}

// Stats 获取缓存统计信息。Size 不查询 Redis，恒为 0。
func (rc *RedisCache) Stats() Stats {
	hits := atomic.LoadInt64(&rc.hitCount)
	misses := atomic.LoadInt64(&rc.missCount)
	return Stats{
		Backend:   "redis",
		HitCount:  hits,
		MissCount: misses,
		HitRate:   hitRate(hits, misses),
	}
}

// Close 关闭 Redis 连接
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

var _ Cache = (*RedisCache)(nil)
