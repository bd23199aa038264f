// Package reliability 按数据源统计成功率并推导信任权重。
package reliability

import (
	"sort"
	"sync"
	"sync/atomic"

	"equisense/pkg/provider/core"
)

// MinAttempts 样本少于该值时权重取中性先验
const MinAttempts = 10

// NeutralWeight 样本不足时的权重
const NeutralWeight = 0.5

// SourceReliability 单个数据源的计数快照
type SourceReliability struct {
	Source        string  `json:"source"`
	Successes     int64   `json:"successes"`
	Failures      int64   `json:"failures"`
	TotalAttempts int64   `json:"total_attempts"`
	SuccessRate   float64 `json:"success_rate"`
	Weight        float64 `json:"weight"`
}

// counters 单一数据源的计数器，只通过原子操作修改
type counters struct {
	successes atomic.Int64
	failures  atomic.Int64
}

func (c *counters) snapshot(name string) SourceReliability {
	s := c.successes.Load()
	f := c.failures.Load()
	r := SourceReliability{
		Source:        name,
		Successes:     s,
		Failures:      f,
		TotalAttempts: s + f,
		Weight:        WeightFor(s, f),
	}
	if r.TotalAttempts > 0 {
		r.SuccessRate = float64(s) / float64(r.TotalAttempts)
	}
	return r
}

// Tracker 进程内的数据源可靠性统计，重启后清零。并发安全。
type Tracker struct {
	mu      sync.RWMutex
	sources map[string]*counters
}

// NewTracker 创建统计器并预先登记数据源
func NewTracker(names ...string) *Tracker {
	t := &Tracker{sources: make(map[string]*counters, len(names))}
	for _, n := range names {
		t.Register(n)
	}
	return t
}

// Register 登记数据源，已存在时保留原计数
func (t *Tracker) Register(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sources[name]; !ok {
		t.sources[name] = &counters{}
	}
}

func (t *Tracker) get(name string) *counters {
	t.mu.RLock()
	c, ok := t.sources[name]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok = t.sources[name]; !ok {
		c = &counters{}
		t.sources[name] = c
	}
	return c
}

// Record 记录一次已完成的抓取尝试
func (t *Tracker) Record(name string, success bool) {
	c := t.get(name)
	if success {
		c.successes.Add(1)
	} else {
		c.failures.Add(1)
	}
}

// RecordResult 按结果的成功标志记录。
// 缓存命中不计入：本次没有访问端点，结果不代表数据源的可用性，
// 因此联合查询中命中缓存的数据源不会增加尝试次数。
func (t *Tracker) RecordResult(r core.DataSourceResult) {
	if r.CacheHit() {
		return
	}
	t.Record(r.Source(), r.OK())
}

// Weight 返回数据源的信任权重，未知数据源返回中性先验
func (t *Tracker) Weight(name string) float64 {
	t.mu.RLock()
	c, ok := t.sources[name]
	t.mu.RUnlock()
	if !ok {
		return NeutralWeight
	}
	return c.snapshot(name).Weight
}

// Weights 所有数据源的权重
func (t *Tracker) Weights() map[string]float64 {
	snap := t.HealthSnapshot()
	out := make(map[string]float64, len(snap))
	for _, r := range snap {
		out[r.Source] = r.Weight
	}
	return out
}

// Get 返回单个数据源的计数快照
func (t *Tracker) Get(name string) (SourceReliability, bool) {
	t.mu.RLock()
	c, ok := t.sources[name]
	t.mu.RUnlock()
	if !ok {
		return SourceReliability{Source: name, Weight: NeutralWeight}, false
	}
	return c.snapshot(name), true
}

// HealthSnapshot 按名称排序的所有数据源快照
func (t *Tracker) HealthSnapshot() []SourceReliability {
	t.mu.RLock()
	out := make([]SourceReliability, 0, len(t.sources))
	for name, c := range t.sources {
		out = append(out, c.snapshot(name))
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// WeightFor 成功率的单调阶梯函数；样本不足 MinAttempts 时返回 NeutralWeight
func WeightFor(successes, failures int64) float64 {
	total := successes + failures
	if total < MinAttempts {
		return NeutralWeight
	}
	rate := float64(successes) / float64(total)
	switch {
	case rate > 0.8:
		return 1.0
	case rate > 0.6:
		return 0.8
	case rate > 0.4:
		return 0.6
	case rate > 0.2:
		return 0.4
	default:
		return 0.2
	}
}
