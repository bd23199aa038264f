// Package sina 新浪行情页面抓取数据源。
// 数据来自页面脚本变量而非正式接口，结构脆弱，质量分上限低于正式接口。
package sina

import (
	"context"
	"fmt"
	"net/http"

	"equisense/pkg/cache"
	xerr "equisense/pkg/error"
	"equisense/pkg/provider/core"
	"equisense/pkg/resilience"
)

// Name 数据源类型名
const Name = "sina"

// DefaultBaseURL 新浪行情地址
const DefaultBaseURL = "http://hq.sinajs.cn/list="

// MaxQualityCeiling 抓取类数据源的质量分上限，配置更高的值也会被截断
const MaxQualityCeiling = 0.8

var expectedFields = []string{
	core.FieldSymbol, core.FieldName, core.FieldPrice, core.FieldOpen, core.FieldHigh, core.FieldLow,
	core.FieldPrevClose, core.FieldVolume, core.FieldTurnover, core.FieldChange, core.FieldChangePercent,
	core.FieldQuoteTime,
}

// Config 新浪数据源配置
type Config struct {
	Base           core.BaseConfig
	BaseURL        string
	QualityCeiling float64
}

// Provider 新浪股票数据源
type Provider struct {
	*core.Base
	baseURL   string
	validator core.Validator
}

// NewProvider 创建新浪数据源
func NewProvider(config Config, client *resilience.Client, c cache.Cache) *Provider {
	if config.Base.Name == "" {
		config.Base.Name = Name
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.QualityCeiling <= 0 || config.QualityCeiling > MaxQualityCeiling {
		config.QualityCeiling = MaxQualityCeiling
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
	return p.Fetch(ctx, key, p.scrape, p.validator)
}

// Validate 校验载荷
func (p *Provider) Validate(payload core.Payload) (bool, float64, []string) {
	return p.validator.Validate(payload)
}

// IsSymbolSupported 只支持 A 股代码
func (p *Provider) IsSymbolSupported(key string) bool {
	return core.IsAShare(core.NormalizeSymbol(key))
}

func (p *Provider) scrape(ctx context.Context, key string) (core.Payload, error) {
	symbol := core.NormalizeSymbol(key)
	if !core.IsAShare(symbol) {
		return nil, xerr.NewError(xerr.CodeValidationFailed, fmt.Sprintf("sina: unsupported symbol %s", key))
	}

	header := http.Header{}
	header.Set("Referer", "https://finance.sina.com.cn/")

	body, err := p.Client().Get(ctx, p.baseURL+core.MarketPrefix(symbol)+symbol, header)
	if err != nil {
		return nil, err
	}
	return parseQuote(gbkToUtf8(body), symbol)
}

var _ core.DataSource = (*Provider)(nil)
