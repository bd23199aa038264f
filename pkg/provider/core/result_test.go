package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	xerr "equisense/pkg/error"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_Setters(t *testing.T) {
	p := Payload{}
	p.SetFloat("price", " 10.52 ")
	p.SetFloat("pe_ratio", "")
	p.SetFloat("volume", "n/a")
	p.SetString("name", "浦发银行")
	p.SetString("industry", "   ")

	assert.Equal(t, 10.52, p["price"])
	assert.Equal(t, []string{"name", "price"}, p.Fields())
	assert.True(t, p.Has("name"))
	assert.False(t, p.Has("volume"))
}

func TestPayload_NonFiniteDropped(t *testing.T) {
	p := Payload{}
	p.SetFloat("price", "NaN")
	p.SetFloat("pe_ratio", "+Inf")
	p.SetFloat("pb_ratio", "-inf")
	p.SetFloat("volume", "100")

	assert.Equal(t, []string{"volume"}, p.Fields(), "NaN 与 Inf 不应写入载荷")
}

func TestDataSourceResult_IsImmutable(t *testing.T) {
	payload := Payload{"price": 10.0}
	r := NewSuccess("a", payload, 0.9, []string{"price"})

	payload["price"] = 99.0
	got := r.Payload()
	got["price"] = 42.0
	fields := r.Fields()
	fields[0] = "mutated"

	v, ok := r.Value("price")
	require.True(t, ok)
	assert.Equal(t, 10.0, v)
	assert.Equal(t, []string{"price"}, r.Fields())

	hit := r.WithCacheHit()
	assert.True(t, hit.CacheHit())
	assert.False(t, r.CacheHit(), "副本不应影响原值")
}

func TestDataSourceResult_Failure(t *testing.T) {
	err := xerr.WrapError(xerr.CodeTransientNetwork, "tencent: request failed", errors.New("reset"))
	r := NewFailure("tencent", err)

	assert.False(t, r.OK())
	assert.Nil(t, r.Payload())
	assert.Zero(t, r.Quality())
	assert.Equal(t, xerr.CodeTransientNetwork, r.Code())
	assert.Contains(t, r.Reason(), "request failed")
}

func TestDataSourceResult_QualityClamped(t *testing.T) {
	assert.Equal(t, 1.0, NewSuccess("a", Payload{}, 1.7, nil).Quality())
	assert.Equal(t, 0.0, NewSuccess("a", Payload{}, -0.2, nil).Quality())
}

func TestDataSourceResult_JSONRestoresCachedResult(t *testing.T) {
	r := NewSuccess("sina", Payload{"price": 10.5, "name": "平安银行"}, 0.8, []string{"name", "price"}).
		WithLatency(120 * time.Millisecond)

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var back DataSourceResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "sina", back.Source())
	assert.True(t, back.OK())
	assert.Equal(t, 0.8, back.Quality())
	assert.Equal(t, Payload{"price": 10.5, "name": "平安银行"}, back.Payload())
	assert.Equal(t, 120*time.Millisecond, back.Latency())
	assert.WithinDuration(t, r.Timestamp(), back.Timestamp(), time.Millisecond)
}
