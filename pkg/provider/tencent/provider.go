// Package tencent 腾讯行情数据源，返回 GBK 编码的 ~ 分隔文本。
package tencent

import (
	"context"
	"fmt"
	"strings"

	"equisense/pkg/cache"
	xerr "equisense/pkg/error"
	"equisense/pkg/provider/core"
	"equisense/pkg/resilience"
)

// Name 数据源类型名
const Name = "tencent"

// DefaultBaseURL 腾讯行情地址
const DefaultBaseURL = "http://qt.gtimg.cn/q="

// DefaultQualityCeiling 行情接口字段稳定，但无财务字段
const DefaultQualityCeiling = 0.95

// expectedFields 腾讯行情可提供的字段全集
var expectedFields = []string{
	core.FieldSymbol, core.FieldName, core.FieldPrice, core.FieldOpen, core.FieldHigh, core.FieldLow,
	core.FieldPrevClose, core.FieldVolume, core.FieldTurnover, core.FieldChange, core.FieldChangePercent,
	core.FieldTurnoverRate, core.FieldPE, core.FieldPB, core.FieldMarketCap, core.FieldFloatCap,
	core.FieldQuoteTime,
}

// Config 腾讯数据源配置
type Config struct {
	Base           core.BaseConfig
	BaseURL        string
	QualityCeiling float64
}

// Provider 腾讯行情数据源
type Provider struct {
	*core.Base
	baseURL   string
	validator core.Validator
}

// NewProvider 创建腾讯数据源
func NewProvider(config Config, client *resilience.Client, c cache.Cache) *Provider {
	if config.Base.Name == "" {
		config.Base.Name = Name
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.QualityCeiling <= 0 {
		config.QualityCeiling = DefaultQualityCeiling
	}
	config.Base.RequiresCredentials = false

	return &Provider{
		Base:    core.NewBase(config.Base, client, c),
		baseURL: config.BaseURL,
		validator: core.Validator{
			Required:       []string{core.FieldSymbol, core.FieldPrice},
			Expected:       expectedFields,
			QualityCeiling: config.QualityCeiling,
		},
	}
}

// FetchCompanyData 获取单只股票行情
func (p *Provider) FetchCompanyData(ctx context.Context, key string) core.DataSourceResult {
	return p.Fetch(ctx, key, p.fetchQuote, p.validator)
}

// Validate 校验载荷
func (p *Provider) Validate(payload core.Payload) (bool, float64, []string) {
	return p.validator.Validate(payload)
}

// IsSymbolSupported 只支持 A 股代码
func (p *Provider) IsSymbolSupported(key string) bool {
	return core.IsAShare(core.NormalizeSymbol(key))
}

func (p *Provider) fetchQuote(ctx context.Context, key string) (core.Payload, error) {
	symbol := core.NormalizeSymbol(key)
	if !core.IsAShare(symbol) {
		return nil, xerr.NewError(xerr.CodeValidationFailed, fmt.Sprintf("tencent: unsupported symbol %s", key))
	}

	body, err := p.Client().Get(ctx, p.buildURL(symbol), nil)
	if err != nil {
		return nil, err
	}
	return parseQuote(gbkToUtf8(body), symbol)
}

// buildURL 构建腾讯行情URL
func (p *Provider) buildURL(symbol string) string {
	if strings.Contains(p.baseURL, "?") || strings.HasSuffix(p.baseURL, "=") {
		return p.baseURL + core.MarketPrefix(symbol) + symbol
	}
	return strings.TrimRight(p.baseURL, "/") + "/?q=" + core.MarketPrefix(symbol) + symbol
}

var _ core.DataSource = (*Provider)(nil)
