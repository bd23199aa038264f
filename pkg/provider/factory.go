package provider

import (
	"fmt"

	"equisense/pkg/cache"
	"equisense/pkg/config"
	xerr "equisense/pkg/error"
	"equisense/pkg/logger"
	"equisense/pkg/provider/core"
	"equisense/pkg/provider/quoteapi"
	"equisense/pkg/provider/sina"
	"equisense/pkg/provider/tencent"
	"equisense/pkg/resilience"
)

// New 按配置构建一个数据源，每个数据源拥有独立的限流器和熔断器
func New(sc config.SourceConfig, c cache.Cache) (core.DataSource, error) {
	client := resilience.New(sc.Resilience())
	base := core.BaseConfig{
		Name:             sc.Name,
		Priority:         sc.Priority,
		APIKey:           sc.ResolvedAPIKey(),
		CacheTTL:         sc.CacheTTL,
		OffHoursCacheTTL: sc.OffHoursCacheTTL,
	}

	switch sc.Type {
	case config.SourceTypeQuoteAPI:
		return quoteapi.NewProvider(quoteapi.Config{Base: base, BaseURL: sc.BaseURL, QualityCeiling: sc.QualityCeiling}, client, c), nil
	case config.SourceTypeTencent:
		return tencent.NewProvider(tencent.Config{Base: base, BaseURL: sc.BaseURL, QualityCeiling: sc.QualityCeiling}, client, c), nil
	case config.SourceTypeSina:
		return sina.NewProvider(sina.Config{Base: base, BaseURL: sc.BaseURL, QualityCeiling: sc.QualityCeiling}, client, c), nil
	default:
		return nil, xerr.NewError(xerr.CodeConfigInvalid, fmt.Sprintf("unsupported source type %q", sc.Type))
	}
}

// BuildRegistry 为所有启用的数据源构建注册表
func BuildRegistry(cfg *config.Config, c cache.Cache) (*Registry, error) {
	log := logger.WithComponent("ProviderRegistry")
	reg := NewRegistry()
	for _, sc := range cfg.EnabledSources() {
		source, err := New(sc, c)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(source); err != nil {
			return nil, err
		}
		if !source.IsConfigured() {
			log.WithField("source", sc.Name).Warn("数据源未配置 API Key，抓取将直接失败")
		}
	}
	log.WithField("sources", reg.Names()).Info("数据源注册完成")
	return reg, nil
}
