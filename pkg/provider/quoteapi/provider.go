// Package quoteapi 商业行情 JSON 接口数据源，需要 API Key。
package quoteapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"equisense/pkg/cache"
	xerr "equisense/pkg/error"
	"equisense/pkg/provider/core"
	"equisense/pkg/resilience"
)

// Name 数据源类型名
const Name = "quoteapi"

// DefaultBaseURL 接口根地址
const DefaultBaseURL = "https://financialmodelingprep.com/api/v3"

var expectedFields = []string{
	core.FieldSymbol, core.FieldName, core.FieldPrice, core.FieldOpen, core.FieldHigh, core.FieldLow,
	core.FieldPrevClose, core.FieldVolume, core.FieldChange, core.FieldChangePercent,
	core.FieldMarketCap, core.FieldPE, core.FieldEPS, core.FieldQuoteTime,
}

// Config 商业接口数据源配置
type Config struct {
	Base           core.BaseConfig
	BaseURL        string
	QualityCeiling float64
}

// Provider 商业行情接口数据源
type Provider struct {
	*core.Base
	baseURL   string
	validator core.Validator
}

// NewProvider 创建数据源；未配置 API Key 时每次抓取都立即返回失败结果
func NewProvider(config Config, client *resilience.Client, c cache.Cache) *Provider {
	if config.Base.Name == "" {
		config.Base.Name = Name
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.QualityCeiling <= 0 || config.QualityCeiling > 1 {
		config.QualityCeiling = 1
	}
	config.Base.RequiresCredentials = true

	return &Provider{
		Base:    core.NewBase(config.Base, client, c),
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		validator: core.Validator{
			Required:       []string{core.FieldSymbol, core.FieldPrice},
			Expected:       expectedFields,
			QualityCeiling: config.QualityCeiling,
		},
	}
}

// FetchCompanyData 获取报价
func (p *Provider) FetchCompanyData(ctx context.Context, key string) core.DataSourceResult {
	return p.Fetch(ctx, key, p.fetchQuote, p.validator)
}

// Validate 校验载荷
func (p *Provider) Validate(payload core.Payload) (bool, float64, []string) {
	return p.validator.Validate(payload)
}

// quote 接口返回的单条报价
type quote struct {
	Symbol            string   `json:"symbol"`
	Name              string   `json:"name"`
	Price             *float64 `json:"price"`
	Open              *float64 `json:"open"`
	DayHigh           *float64 `json:"dayHigh"`
	DayLow            *float64 `json:"dayLow"`
	PreviousClose     *float64 `json:"previousClose"`
	Volume            *float64 `json:"volume"`
	Change            *float64 `json:"change"`
	ChangesPercentage *float64 `json:"changesPercentage"`
	MarketCap         *float64 `json:"marketCap"`
	PE                *float64 `json:"pe"`
	EPS               *float64 `json:"eps"`
	Timestamp         int64    `json:"timestamp"`
}

func (p *Provider) fetchQuote(ctx context.Context, key string) (core.Payload, error) {
	symbol := core.NormalizeSymbol(key)
	endpoint := fmt.Sprintf("%s/quote/%s?apikey=%s", p.baseURL, url.PathEscape(symbol), url.QueryEscape(p.APIKey()))

	body, err := p.Client().Get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var quotes []quote
	if err := json.Unmarshal(body, &quotes); err != nil {
		return nil, xerr.WrapError(xerr.CodeValidationFailed, "quoteapi: decode response failed", err)
	}
	for _, q := range quotes {
		if strings.EqualFold(core.NormalizeSymbol(q.Symbol), symbol) {
			return q.toPayload(), nil
		}
	}
	return nil, xerr.NewError(xerr.CodeValidationFailed, fmt.Sprintf("quoteapi: no quote for %s", symbol)).
		WithContext("symbol", symbol)
}

func (q quote) toPayload() core.Payload {
	p := core.Payload{}
	p.SetString(core.FieldSymbol, core.NormalizeSymbol(q.Symbol))
	p.SetString(core.FieldName, q.Name)
	setOptional(p, core.FieldPrice, q.Price)
	setOptional(p, core.FieldOpen, q.Open)
	setOptional(p, core.FieldHigh, q.DayHigh)
	setOptional(p, core.FieldLow, q.DayLow)
	setOptional(p, core.FieldPrevClose, q.PreviousClose)
	setOptional(p, core.FieldVolume, q.Volume)
	setOptional(p, core.FieldChange, q.Change)
	setOptional(p, core.FieldChangePercent, q.ChangesPercentage)
	setOptional(p, core.FieldMarketCap, q.MarketCap)
	setOptional(p, core.FieldPE, q.PE)
	setOptional(p, core.FieldEPS, q.EPS)
	if q.Timestamp > 0 {
		p.SetString(core.FieldQuoteTime, time.Unix(q.Timestamp, 0).In(core.Shanghai).Format(time.RFC3339))
	}
	return p
}

func setOptional(p core.Payload, field string, v *float64) {
	if v != nil {
		p.SetNumber(field, *v)
	}
}

var _ core.DataSource = (*Provider)(nil)
