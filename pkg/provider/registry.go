// Package provider 数据源注册表与按配置构建数据源。
package provider

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"equisense/pkg/provider/core"
	"equisense/pkg/resilience"
)

// ErrSourceNotFound 数据源未注册
var ErrSourceNotFound = errors.New("source not found")

// Registry 数据源注册表。进程启动时构建一次，显式传给需要它的组件。
type Registry struct {
	mu      sync.RWMutex
	sources map[string]core.DataSource
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]core.DataSource)}
}

// Register 注册数据源，名称重复时返回错误
func (r *Registry) Register(source core.DataSource) error {
	if source == nil {
		return fmt.Errorf("source cannot be nil")
	}
	name := source.Name()
	if name == "" {
		return fmt.Errorf("source name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("source '%s' already registered", name)
	}
	r.sources[name] = source
	return nil
}

// Get 按名称获取数据源
func (r *Registry) Get(name string) (core.DataSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	source, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	return source, nil
}

// List 按优先级升序、同优先级按名称返回所有数据源
func (r *Registry) List() []core.DataSource {
	r.mu.RLock()
	out := make([]core.DataSource, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() < out[j].Priority()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Names 按 List 顺序返回名称
func (r *Registry) Names() []string {
	sources := r.List()
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	return names
}

// Priorities 名称到优先级的映射
func (r *Registry) Priorities() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.sources))
	for name, s := range r.sources {
		out[name] = s.Priority()
	}
	return out
}

// Status 各数据源的限流与熔断状态
func (r *Registry) Status() map[string]interface{} {
	out := make(map[string]interface{})
	for _, s := range r.List() {
		entry := map[string]interface{}{
			"priority":   s.Priority(),
			"configured": s.IsConfigured(),
		}
		if withClient, ok := s.(interface{ Client() *resilience.Client }); ok && withClient.Client() != nil {
			entry["endpoint"] = withClient.Client().Status()
		}
		out[s.Name()] = entry
	}
	return out
}

// Close 关闭所有实现了 core.Closable 的数据源
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, s := range r.sources {
		if closable, ok := s.(core.Closable); ok {
			if err := closable.Close(); err != nil {
				errs = append(errs, fmt.Errorf("error closing source '%s': %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
