// Package reconcile 将多个数据源的结果合并为一份确定性的对账数据。
package reconcile

import (
	"math"
	"sort"
	"time"

	"equisense/pkg/logger"
	"equisense/pkg/provider/core"

	"github.com/sirupsen/logrus"
)

// epsilon 相对差分母下限，避免两个零值相除
const epsilon = 1e-9

// Config 对账参数
type Config struct {
	ConflictThreshold     float64 `mapstructure:"conflict_threshold"` // 数值相对差超过该值记为冲突
	ConflictPenalty       float64 `mapstructure:"conflict_penalty"`
	MaxConflictPenalty    float64 `mapstructure:"max_conflict_penalty"`
	CorroborationBonus    float64 `mapstructure:"corroboration_bonus"`
	MaxCorroborationBonus float64 `mapstructure:"max_corroboration_bonus"`
	FallbackSource        string  `mapstructure:"fallback_source"` // 全部失败时标记的主数据源
}

// DefaultConfig 默认对账参数
func DefaultConfig() Config {
	return Config{
		ConflictThreshold:     0.10,
		ConflictPenalty:       0.05,
		MaxConflictPenalty:    0.30,
		CorroborationBonus:    0.10,
		MaxCorroborationBonus: 0.20,
		FallbackSource:        "none",
	}
}

// Conflict 两个数据源在同一数值字段上的分歧
type Conflict struct {
	Field              string      `json:"field"`
	PrimaryValue       interface{} `json:"primary_value"`
	PrimarySource      string      `json:"primary_source"`
	ConflictingValue   interface{} `json:"conflicting_value"`
	ConflictingSource  string      `json:"conflicting_source"`
	RelativeDifference float64     `json:"relative_difference"`
}

// ReconciledData 一次联合查询的对账结果，返回后不再修改
type ReconciledData struct {
	ID            string             `json:"id,omitempty"`
	Key           string             `json:"key"`
	Payload       core.Payload       `json:"payload"`
	Sources       []string           `json:"sources"`
	Primary       string             `json:"primary"`
	Quality       float64            `json:"quality"`
	Conflicts     []Conflict         `json:"conflicts"`
	FieldSources  map[string]string  `json:"field_sources"`
	SourceWeights map[string]float64 `json:"source_weights,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
}

// OK 是否至少有一个数据源成功
func (d ReconciledData) OK() bool { return len(d.Sources) > 0 }

// WeightProvider 提供数据源信任权重，仅用于诊断输出
type WeightProvider interface {
	Weight(source string) float64
}

// Reconciler 对账器。无内部可变状态，可并发使用。
type Reconciler struct {
	config     Config
	priorities map[string]int
	weights    WeightProvider
	log        *logrus.Entry
}

// New 创建对账器。priorities 为数据源名到优先级（越小越优先），用于质量分相同时排序；
// weights 可为 nil。
func New(config Config, priorities map[string]int, weights WeightProvider) *Reconciler {
	if config.ConflictThreshold <= 0 {
		config.ConflictThreshold = DefaultConfig().ConflictThreshold
	}
	if config.FallbackSource == "" {
		config.FallbackSource = DefaultConfig().FallbackSource
	}
	p := make(map[string]int, len(priorities))
	for k, v := range priorities {
		p[k] = v
	}
	return &Reconciler{
		config:     config,
		priorities: p,
		weights:    weights,
		log:        logger.WithComponent("Reconciler"),
	}
}

// Reconcile 合并结果。失败结果被丢弃；全部失败时返回质量分为 0 的空载荷。
func (r *Reconciler) Reconcile(key string, results []core.DataSourceResult) ReconciledData {
	out := ReconciledData{
		Key:          key,
		Payload:      core.Payload{},
		Sources:      []string{},
		Primary:      r.config.FallbackSource,
		Conflicts:    []Conflict{},
		FieldSources: map[string]string{},
		Timestamp:    time.Now(),
	}

	ok := make([]core.DataSourceResult, 0, len(results))
	for _, res := range results {
		if res.OK() {
			ok = append(ok, res)
		}
	}
	if len(ok) == 0 {
		return out
	}

	r.order(ok)

	primary := ok[0]
	out.Primary = primary.Source()
	for field, v := range primary.Payload() {
		if !finite(v) {
			continue
		}
		out.Payload[field] = v
		out.FieldSources[field] = primary.Source()
	}

	var qualitySum float64
	for i, res := range ok {
		out.Sources = append(out.Sources, res.Source())
		qualitySum += res.Quality()
		if i == 0 {
			continue
		}

		payload := res.Payload()
		for _, field := range sortedKeys(payload) {
			v := payload[field]
			if !finite(v) {
				continue
			}
			existing, present := out.Payload[field]
			if !present {
				out.Payload[field] = v
				out.FieldSources[field] = res.Source()
				continue
			}
			if c, conflict := r.compare(field, existing, out.FieldSources[field], v, res.Source()); conflict {
				out.Conflicts = append(out.Conflicts, c)
			}
		}
	}

	out.Quality = r.score(qualitySum/float64(len(ok)), len(out.Conflicts), len(ok))
	if r.weights != nil {
		out.SourceWeights = make(map[string]float64, len(ok))
		for _, s := range out.Sources {
			out.SourceWeights[s] = r.weights.Weight(s)
		}
	}

	if len(out.Conflicts) > 0 {
		r.log.WithFields(logrus.Fields{
			"key":       key,
			"primary":   out.Primary,
			"conflicts": len(out.Conflicts),
		}).Debug("数据源字段存在分歧，保留主数据源取值")
	}
	return out
}

// order 质量分降序，其次配置优先级升序，最后按名称
func (r *Reconciler) order(results []core.DataSourceResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Quality() != b.Quality() {
			return a.Quality() > b.Quality()
		}
		pa, pb := r.priority(a.Source()), r.priority(b.Source())
		if pa != pb {
			return pa < pb
		}
		return a.Source() < b.Source()
	})
}

// priority 未配置的数据源排在最后
func (r *Reconciler) priority(source string) int {
	if p, ok := r.priorities[source]; ok {
		return p
	}
	return math.MaxInt32
}

func (r *Reconciler) compare(field string, kept interface{}, keptSource string, other interface{}, otherSource string) (Conflict, bool) {
	a, okA := toFloat(kept)
	b, okB := toFloat(other)
	if !okA || !okB {
		return Conflict{}, false
	}
	diff := RelativeDifference(a, b)
	if diff <= r.config.ConflictThreshold {
		return Conflict{}, false
	}
	return Conflict{
		Field:              field,
		PrimaryValue:       kept,
		PrimarySource:      keptSource,
		ConflictingValue:   other,
		ConflictingSource:  otherSource,
		RelativeDifference: diff,
	}, true
}

// score 平均质量分减冲突惩罚加多源佐证奖励，截断到 [0,1]
func (r *Reconciler) score(avg float64, conflicts, sources int) float64 {
	penalty := math.Min(r.config.ConflictPenalty*float64(conflicts), r.config.MaxConflictPenalty)
	bonus := math.Min(r.config.CorroborationBonus*float64(sources-1), r.config.MaxCorroborationBonus)
	q := avg - penalty + bonus
	return math.Max(0, math.Min(1, q))
}

// RelativeDifference |a-b| / max(|a|,|b|,ε)
func RelativeDifference(a, b float64) float64 {
	den := math.Max(math.Max(math.Abs(a), math.Abs(b)), epsilon)
	return math.Abs(a-b) / den
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		f := float64(n)
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

// finite NaN 与 ±Inf 视为缺失字段，其余类型原样保留
func finite(v interface{}) bool {
	if _, numeric := v.(float64); !numeric {
		if _, numeric32 := v.(float32); !numeric32 {
			return true
		}
	}
	_, ok := toFloat(v)
	return ok
}

func sortedKeys(p core.Payload) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
