package core

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	xerr "equisense/pkg/error"
)

// Payload 字段名到值的映射。数值统一为 float64。
type Payload map[string]interface{}

// Clone 浅拷贝
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Fields 返回有值字段的有序列表
func (p Payload) Fields() []string {
	fields := make([]string, 0, len(p))
	for k, v := range p {
		if isPresent(v) {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return fields
}

// Has 字段是否存在且有值
func (p Payload) Has(field string) bool {
	v, ok := p[field]
	return ok && isPresent(v)
}

// SetString 非空时写入字符串字段
func (p Payload) SetString(field, raw string) {
	if s := strings.TrimSpace(raw); s != "" {
		p[field] = s
	}
}

// SetFloat 可解析时写入数值字段，空值和非法值忽略
func (p Payload) SetFloat(field, raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		p.SetNumber(field, v)
	}
}

// SetNumber 写入数值字段，NaN 与 ±Inf 被丢弃
func (p Payload) SetNumber(field string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	p[field] = v
}

func isPresent(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	default:
		return true
	}
}

// DataSourceResult 一次抓取尝试的结果。构造后不可变，访问器返回副本。
type DataSourceResult struct {
	source    string
	success   bool
	payload   Payload
	reason    string
	code      xerr.ErrorCode
	quality   float64
	fields    []string
	timestamp time.Time
	cacheHit  bool
	latency   time.Duration
}

// NewSuccess 构造成功结果
func NewSuccess(source string, payload Payload, quality float64, fields []string) DataSourceResult {
	return DataSourceResult{
		source:    source,
		success:   true,
		payload:   payload.Clone(),
		quality:   clamp01(quality),
		fields:    append([]string(nil), fields...),
		timestamp: time.Now(),
	}
}

// NewFailure 构造失败结果，err 的错误码被保留用于分类
func NewFailure(source string, err error) DataSourceResult {
	r := DataSourceResult{
		source:    source,
		timestamp: time.Now(),
	}
	if err != nil {
		r.reason = err.Error()
		r.code = xerr.CodeOf(err)
	}
	return r
}

// Source 数据源名称
func (r DataSourceResult) Source() string { return r.source }

// OK 是否成功
func (r DataSourceResult) OK() bool { return r.success }

// Payload 返回载荷副本，失败时为 nil
func (r DataSourceResult) Payload() Payload { return r.payload.Clone() }

// Value 读取单个字段
func (r DataSourceResult) Value(field string) (interface{}, bool) {
	v, ok := r.payload[field]
	return v, ok
}

// Reason 失败原因
func (r DataSourceResult) Reason() string { return r.reason }

// Code 失败时的错误码
func (r DataSourceResult) Code() xerr.ErrorCode { return r.code }

// Quality 质量分，范围 [0,1]
func (r DataSourceResult) Quality() float64 { return r.quality }

// Fields 存在的字段
func (r DataSourceResult) Fields() []string { return append([]string(nil), r.fields...) }

// Timestamp 结果生成时间；缓存命中时为原始抓取时间
func (r DataSourceResult) Timestamp() time.Time { return r.timestamp }

// CacheHit 是否来自缓存
func (r DataSourceResult) CacheHit() bool { return r.cacheHit }

// Latency 抓取耗时
func (r DataSourceResult) Latency() time.Duration { return r.latency }

// WithCacheHit 返回标记为缓存命中的副本
func (r DataSourceResult) WithCacheHit() DataSourceResult {
	r.cacheHit = true
	return r
}

// WithLatency 返回带耗时的副本
func (r DataSourceResult) WithLatency(d time.Duration) DataSourceResult {
	r.latency = d
	return r
}

type resultJSON struct {
	Source    string         `json:"source"`
	Success   bool           `json:"success"`
	Payload   Payload        `json:"payload,omitempty"`
	Error     string         `json:"error,omitempty"`
	Code      xerr.ErrorCode `json:"code,omitempty"`
	Quality   float64        `json:"quality"`
	Fields    []string       `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	CacheHit  bool           `json:"cache_hit"`
	LatencyMS int64          `json:"latency_ms"`
}

// MarshalJSON 实现 json.Marshaler
func (r DataSourceResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Source:    r.source,
		Success:   r.success,
		Payload:   r.payload,
		Error:     r.reason,
		Code:      r.code,
		Quality:   r.quality,
		Fields:    r.fields,
		Timestamp: r.timestamp,
		CacheHit:  r.cacheHit,
		LatencyMS: r.latency.Milliseconds(),
	})
}

// UnmarshalJSON 实现 json.Unmarshaler，用于从缓存还原
func (r *DataSourceResult) UnmarshalJSON(data []byte) error {
	var dto resultJSON
	if err := json.Unmarshal(data, &dto); err != nil {
		return err
	}
	*r = DataSourceResult{
		source:    dto.Source,
		success:   dto.Success,
		payload:   dto.Payload,
		reason:    dto.Error,
		code:      dto.Code,
		quality:   clamp01(dto.Quality),
		fields:    dto.Fields,
		timestamp: dto.Timestamp,
		cacheHit:  dto.CacheHit,
		latency:   time.Duration(dto.LatencyMS) * time.Millisecond,
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
