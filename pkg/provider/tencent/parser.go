package tencent

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	xerr "equisense/pkg/error"
	"equisense/pkg/provider/core"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// minFields 腾讯行情一条记录至少包含的字段数
const minFields = 50

// gbkToUtf8 将GBK编码转换为UTF-8
func gbkToUtf8(gbk []byte) string {
	if len(gbk) == 0 {
		return ""
	}

	reader := transform.NewReader(strings.NewReader(string(gbk)), simplifiedchinese.GBK.NewDecoder())
	data, err := io.ReadAll(reader)
	if err != nil {
		return string(gbk)
	}
	return string(data)
}

// parseQuote 从腾讯返回的 v_sh600000="1~名称~代码~..."; 文本中解析 symbol 对应的记录
func parseQuote(body string, symbol string) (core.Payload, error) {
	for _, record := range strings.Split(strings.TrimSpace(body), ";") {
		record = strings.TrimSpace(record)
		eq := strings.Index(record, "=")
		if eq == -1 || eq+1 >= len(record) {
			continue
		}

		fields := strings.Split(strings.Trim(record[eq+1:], `"`), "~")
		if len(fields) < minFields {
			continue
		}
		if core.NormalizeSymbol(fields[2]) != symbol {
			continue
		}
		return toPayload(fields), nil
	}

	return nil, xerr.NewError(xerr.CodeValidationFailed, fmt.Sprintf("tencent: no quote for %s", symbol)).
		WithContext("symbol", symbol)
}

// toPayload 按字段位置映射到统一字段名
func toPayload(fields []string) core.Payload {
	p := core.Payload{}
	p.SetString(core.FieldSymbol, core.NormalizeSymbol(fields[2]))
	p.SetString(core.FieldName, fields[1])
	p.SetFloat(core.FieldPrice, fields[3])
	p.SetFloat(core.FieldPrevClose, fields[4])
	p.SetFloat(core.FieldOpen, fields[5])
	p.SetFloat(core.FieldChange, fields[31])
	p.SetFloat(core.FieldChangePercent, fields[32])
	p.SetFloat(core.FieldHigh, fields[33])
	p.SetFloat(core.FieldLow, fields[34])
	p.SetFloat(core.FieldTurnoverRate, fields[38])
	p.SetFloat(core.FieldPE, fields[39])
	p.SetFloat(core.FieldPB, fields[46])

	// 成交量单位为手，换算为股
	if v, ok := parseFloat(fields[6]); ok {
		p.SetNumber(core.FieldVolume, v*100)
	}
	// 最新价/成交量(手)/成交额(元)
	if v, ok := parseTurnover(fields[35]); ok {
		p.SetNumber(core.FieldTurnover, v)
	}
	// 市值单位为亿元
	if v, ok := parseFloat(fields[44]); ok {
		p.SetNumber(core.FieldFloatCap, v*1e8)
	}
	if v, ok := parseFloat(fields[45]); ok {
		p.SetNumber(core.FieldMarketCap, v*1e8)
	}
	if ts, ok := parseTime(fields[30]); ok {
		p.SetString(core.FieldQuoteTime, ts.Format(time.RFC3339))
	}
	return p
}

// parseFloat 安全解析浮点数
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

// parseTurnover 从复合字段中提取成交额
func parseTurnover(s string) (float64, bool) {
	parts := strings.Split(s, "/")
	if len(parts) >= 3 {
		return parseFloat(parts[2])
	}
	return parseFloat(s)
}

// parseTime 解析 20060102150405 或 200601021504 格式的行情时间
func parseTime(timeStr string) (time.Time, bool) {
	var layout string
	switch len(timeStr) {
	case 14:
		layout = "20060102150405"
	case 12:
		layout = "200601021504"
	default:
		return time.Time{}, false
	}

	t, err := time.ParseInLocation(layout, timeStr, core.Shanghai)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
