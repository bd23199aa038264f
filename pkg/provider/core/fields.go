package core

// 各数据源统一使用的字段名。金额单位为元，成交量单位为股。
const (
	FieldSymbol        = "symbol"
	FieldName          = "name"
	FieldPrice         = "price"
	FieldOpen          = "open"
	FieldHigh          = "high"
	FieldLow           = "low"
	FieldPrevClose     = "prev_close"
	FieldVolume        = "volume"
	FieldTurnover      = "turnover"
	FieldChange        = "change"
	FieldChangePercent = "change_percent"
	FieldTurnoverRate  = "turnover_rate"
	FieldPE            = "pe_ratio"
	FieldPB            = "pb_ratio"
	FieldEPS           = "eps"
	FieldMarketCap     = "market_cap"
	FieldFloatCap      = "float_market_cap"
	FieldQuoteTime     = "quote_time"
)
