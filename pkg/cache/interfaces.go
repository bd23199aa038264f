package cache

import (
	"context"
	"time"
)

// Cache 数据源结果的键值缓存。值为已序列化的字节，编码由调用方决定。
// 未命中返回 ErrMiss，后端故障返回错误码为 CACHE_UNAVAILABLE 的错误；
// 两者都不应被视为抓取失败。
type Cache interface {
	// Get 从缓存中获取一个值。
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 向缓存中设置一个值，ttl 小于等于 0 时使用默认 TTL。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete 从缓存中删除一个值。
	Delete(ctx context.Context, key string) error
	// Stats 获取缓存的统计信息。
	Stats() Stats
}

// Stats 缓存统计信息
type Stats struct {
	Backend   string  `json:"backend"`
	Size      int64   `json:"size"`
	MaxSize   int64   `json:"max_size"`
	HitCount  int64   `json:"hit_count"`
	MissCount int64   `json:"miss_count"`
	HitRate   float64 `json:"hit_rate"`
}

func hitRate(hits, misses int64) float64 {
	if total := hits + misses; total > 0 {
		return float64(hits) / float64(total)
	}
	return 0
}
