package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	xerr "equisense/pkg/error"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	mc := NewMemoryCache(MemoryConfig{MaxSize: 10, DefaultTTL: time.Minute})
	defer mc.Close()
	ctx := context.Background()

	_, err := mc.Get(ctx, "600000")
	assert.True(t, IsMiss(err))

	require.NoError(t, mc.Set(ctx, "600000", []byte(`{"price":10}`), 0))
	val, err := mc.Get(ctx, "600000")
	require.NoError(t, err)
	assert.Equal(t, `{"price":10}`, string(val))

	stats := mc.Stats()
	assert.Equal(t, int64(1), stats.HitCount)
	assert.Equal(t, int64(1), stats.MissCount)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestMemoryCache_Expiry(t *testing.T) {
	mc := NewMemoryCache(MemoryConfig{MaxSize: 10})
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", []byte("v"), 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	_, err := mc.Get(ctx, "k")
	assert.True(t, IsMiss(err), "过期条目应视为未命中")
	assert.Equal(t, int64(0), mc.Stats().Size)
}

func TestMemoryCache_EvictsOldestWhenFull(t *testing.T) {
	mc := NewMemoryCache(MemoryConfig{MaxSize: 3, DefaultTTL: time.Minute})
	defer mc.Close()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, mc.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 0))
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, int64(3), mc.Stats().Size)
	_, err := mc.Get(ctx, "k0")
	assert.True(t, IsMiss(err), "最早写入的条目应被淘汰")
	_, err = mc.Get(ctx, "k3")
	assert.NoError(t, err)
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	mc := NewMemoryCache(MemoryConfig{})
	defer mc.Close()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, mc.Set(ctx, "k", buf, 0))
	buf[0] = 'x'

	val, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(val))
}

func TestMemoryCache_BackgroundCleanup(t *testing.T) {
	mc := NewMemoryCache(MemoryConfig{CleanupInterval: 10 * time.Millisecond})
	defer mc.Close()

	require.NoError(t, mc.Set(context.Background(), "k", []byte("v"), 5*time.Millisecond))
	assert.Eventually(t, func() bool { return mc.Stats().Size == 0 }, time.Second, 10*time.Millisecond)
	assert.NotPanics(t, func() { _ = mc.Close() }, "重复关闭不应 panic")
}

func TestNew_Backends(t *testing.T) {
	c, err := New(Config{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(Config{Backend: "memory"})
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Stats().Backend)

	_, err = New(Config{Backend: "memcached"})
	assert.Equal(t, xerr.CodeConfigInvalid, xerr.CodeOf(err))
}
