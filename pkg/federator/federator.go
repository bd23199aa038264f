// Package federator 并行向多个数据源发起同一查询，在超时内收集结果并对账。
package federator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"equisense/pkg/logger"
	"equisense/pkg/provider/core"
	"equisense/pkg/reconcile"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config 联合查询配置
type Config struct {
	MaxSources      int           `mapstructure:"max_sources"` // 0 表示全部启用的数据源
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxParallelKeys int           `mapstructure:"max_parallel_keys"` // FetchMany 同时进行的查询数
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		MaxSources:      0,
		Timeout:         5 * time.Second,
		MaxParallelKeys: 4,
	}
}

// Sources 按优先级排序的数据源集合
type Sources interface {
	List() []core.DataSource
}

// Recorder 接收每个已派发数据源的结果
type Recorder interface {
	RecordResult(r core.DataSourceResult)
}

// Federator 联合查询器
type Federator struct {
	config     Config
	sources    Sources
	reconciler *reconcile.Reconciler
	recorder   Recorder
	log        *logrus.Entry
}

// New 创建联合查询器。recorder 可为 nil。
func New(config Config, sources Sources, reconciler *reconcile.Reconciler, recorder Recorder) *Federator {
	def := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxParallelKeys <= 0 {
		config.MaxParallelKeys = def.MaxParallelKeys
	}
	return &Federator{
		config:     config,
		sources:    sources,
		reconciler: reconciler,
		recorder:   recorder,
		log:        logger.WithComponent("Federator"),
	}
}

type indexed struct {
	i      int
	result core.DataSourceResult
}

// Fetch 并行查询至多 maxSources 个数据源，timeout 到期后取消未完成的请求并按失败处理。
// maxSources<=0 或 timeout<=0 时使用配置值。从不返回错误，全部失败时质量分为 0。
func (f *Federator) Fetch(ctx context.Context, key string, maxSources int, timeout time.Duration) reconcile.ReconciledData {
	if maxSources <= 0 {
		maxSources = f.config.MaxSources
	}
	if timeout <= 0 {
		timeout = f.config.Timeout
	}

	selected := f.sources.List()
	if maxSources > 0 && len(selected) > maxSources {
		selected = selected[:maxSources]
	}

	fetchID := uuid.NewString()
	start := time.Now()
	results := f.collect(ctx, key, selected, timeout)

	// 每个已派发的数据源都交给 recorder；命中缓存的结果由 recorder 自行忽略
	for _, r := range results {
		if f.recorder != nil {
			f.recorder.RecordResult(r)
		}
	}

	data := f.reconciler.Reconcile(key, results)
	data.ID = fetchID

	f.log.WithFields(logrus.Fields{
		"fetch_id":   fetchID,
		"key":        key,
		"dispatched": len(selected),
		"sources":    data.Sources,
		"primary":    data.Primary,
		"quality":    data.Quality,
		"conflicts":  len(data.Conflicts),
		"elapsed":    time.Since(start).String(),
	}).Info("联合查询完成")
	return data
}

// collect 等待全部完成或超时，返回与 sources 同序的结果；未完成的以超时失败填充
func (f *Federator) collect(parent context.Context, key string, sources []core.DataSource, timeout time.Duration) []core.DataSourceResult {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	results := make([]core.DataSourceResult, len(sources))
	finished := make([]bool, len(sources))
	done := make(chan indexed, len(sources))

	for i, src := range sources {
		go func(i int, src core.DataSource) {
			done <- indexed{i: i, result: fetchOne(ctx, src, key)}
		}(i, src)
	}

	for remaining := len(sources); remaining > 0; remaining-- {
		select {
		case r := <-done:
			results[r.i] = r.result
			finished[r.i] = true
		case <-ctx.Done():
			for i, src := range sources {
				if !finished[i] {
					results[i] = core.NewFailure(src.Name(), core.ErrFetchTimeout)
					f.log.WithFields(logrus.Fields{
						"key":     key,
						"source":  src.Name(),
						"timeout": timeout.String(),
					}).Warn("数据源未在超时前完成，按失败处理")
				}
			}
			return results
		}
	}
	return results
}

// fetchOne 数据源实现应自行兜住异常，这里再隔离一层
func fetchOne(ctx context.Context, src core.DataSource, key string) (result core.DataSourceResult) {
	defer func() {
		if r := recover(); r != nil {
			result = core.NewFailure(src.Name(), fmt.Errorf("panic in source %s: %v", src.Name(), r))
		}
	}()
	return src.FetchCompanyData(ctx, key)
}

// FetchMany 对多个键分别执行 Fetch，并发数受 MaxParallelKeys 限制，结果与 keys 同序
func (f *Federator) FetchMany(ctx context.Context, keys []string, maxSources int, timeout time.Duration) []reconcile.ReconciledData {
	out := make([]reconcile.ReconciledData, len(keys))
	sem := make(chan struct{}, f.config.MaxParallelKeys)

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, key string) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = f.Fetch(ctx, key, maxSources, timeout)
		}(i, key)
	}
	wg.Wait()
	return out
}
