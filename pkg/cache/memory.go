package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryConfig 内存缓存配置
type MemoryConfig struct {
	MaxSize         int64         `mapstructure:"max_size"`         // 最大条目数量
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`      // 默认TTL
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"` // 清理间隔，0 表示不后台清理
}

type memoryEntry struct {
	value      []byte
	expireTime time.Time
	createTime time.Time
}

// MemoryCache 线程安全的进程内 TTL 缓存
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry
	maxSize    int64
	defaultTTL time.Duration
	hitCount   int64
	missCount  int64

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache(config MemoryConfig) *MemoryCache {
	if config.MaxSize <= 0 {
		config.MaxSize = 10000
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = time.Minute
	}

	mc := &MemoryCache{
		entries:     make(map[string]*memoryEntry),
		maxSize:     config.MaxSize,
		defaultTTL:  config.DefaultTTL,
		stopCleanup: make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		mc.cleanupTicker = time.NewTicker(config.CleanupInterval)
		go mc.startCleanup()
	}
	return mc
}

// Get 获取缓存值
func (mc *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	mc.mu.RLock()
	entry, exists := mc.entries[key]
	mc.mu.RUnlock()

	if !exists {
		atomic.AddInt64(&mc.missCount, 1)
		return nil, ErrMiss
	}

	if !entry.expireTime.After(time.Now()) {
		mc.mu.Lock()
		if cur, ok := mc.entries[key]; ok && cur == entry {
			delete(mc.entries, key)
		}
		mc.mu.Unlock()
		atomic.AddInt64(&mc.missCount, 1)
		return nil, ErrMiss
	}

	atomic.AddInt64(&mc.hitCount, 1)
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set 设置缓存值
func (mc *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = mc.defaultTTL
	}

	now := time.Now()
	stored := make([]byte, len(value))
	copy(stored, value)
	entry := &memoryEntry{
		value:      stored,
		expireTime: now.Add(ttl),
		createTime: now,
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.entries[key]; !exists && int64(len(mc.entries)) >= mc.maxSize {
		mc.evictOldest()
	}
	mc.entries[key] = entry
	return nil
}

// Delete 删除缓存值
func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.entries, key)
	return nil
}

// Stats 获取缓存统计信息
func (mc *MemoryCache) Stats() Stats {
	mc.mu.RLock()
	size := int64(len(mc.entries))
	mc.mu.RUnlock()

	hits := atomic.LoadInt64(&mc.hitCount)
	misses := atomic.LoadInt64(&mc.missCount)
	return Stats{
		Backend:   "memory",
		Size:      size,
		MaxSize:   mc.maxSize,
		HitCount:  hits,
		MissCount: misses,
		HitRate:   hitRate(hits, misses),
	}
}

// Close 停止后台清理
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() {
		if mc.cleanupTicker != nil {
			mc.cleanupTicker.Stop()
		}
		close(mc.stopCleanup)
	})
	return nil
}

func (mc *MemoryCache) startCleanup() {
	for {
		select {
		case <-mc.cleanupTicker.C:
			mc.cleanup()
		case <-mc.stopCleanup:
			return
		}
	}
}

// cleanup 清理过期条目
func (mc *MemoryCache) cleanup() {
	now := time.Now()

	mc.mu.Lock()
	defer mc.mu.Unlock()
	for key, entry := range mc.entries {
		if !entry.expireTime.After(now) {
			delete(mc.entries, key)
		}
	}
}

// evictOldest 淘汰创建时间最早的条目，调用方持有写锁
func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range mc.entries {
		if oldestKey == "" || entry.createTime.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.createTime
		}
	}
	if oldestKey != "" {
		delete(mc.entries, oldestKey)
	}
}

var _ Cache = (*MemoryCache)(nil)
