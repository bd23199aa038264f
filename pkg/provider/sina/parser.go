package sina

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

// minFields 新浪一条记录至少包含的字段数
const minFields = 32

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

// parseQuote 从 var hq_str_sh600000="名称,开盘,昨收,现价,..."; 文本中解析 symbol 对应的记录。
// 页面变量结构随时可能变化，字段缺失时只写入可解析的部分。
func parseQuote(body string, symbol string) (core.Payload, error) {
	for _, line := range strings.Split(body, ";") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 || extractSymbol(parts[0]) != symbol {
			continue
		}

		dataPart := strings.Trim(parts[1], ` "`)
		if dataPart == "" {
			// 新浪对不存在的代码返回空字符串
			break
		}
		fields := strings.Split(dataPart, ",")
		if len(fields) < minFields {
			return nil, xerr.NewError(xerr.CodeValidationFailed,
				fmt.Sprintf("sina: unexpected record layout for %s (%d fields)", symbol, len(fields)))
		}
		return toPayload(symbol, fields), nil
	}

	return nil, xerr.NewError(xerr.CodeValidationFailed, fmt.Sprintf("sina: no quote for %s", symbol)).
		WithContext("symbol", symbol)
}

func toPayload(symbol string, fields []string) core.Payload {
	p := core.Payload{}
	p.SetString(core.FieldSymbol, symbol)
	p.SetString(core.FieldName, fields[0])
	p.SetFloat(core.FieldOpen, fields[1])
	p.SetFloat(core.FieldPrevClose, fields[2])
	p.SetFloat(core.FieldPrice, fields[3])
	p.SetFloat(core.FieldHigh, fields[4])
	p.SetFloat(core.FieldLow, fields[5])
	p.SetFloat(core.FieldVolume, fields[8])
	p.SetFloat(core.FieldTurnover, fields[9])

	price, okPrice := parseFloat(fields[3])
	prevClose, okPrev := parseFloat(fields[2])
	if okPrice && okPrev && prevClose != 0 {
		change := price - prevClose
		p.SetNumber(core.FieldChange, change)
		p.SetNumber(core.FieldChangePercent, change/prevClose*100)
	}

	if ts, ok := parseTime(fields[30], fields[31]); ok {
		p.SetString(core.FieldQuoteTime, ts.Format(time.RFC3339))
	}
	return p
}

// extractSymbol 从变量名中提取股票代码, e.g., var hq_str_sh600000 -> 600000
func extractSymbol(rawVar string) string {
	fields := strings.Fields(rawVar)
	if len(fields) == 0 {
		return ""
	}
	name := fields[len(fields)-1]
	idx := strings.LastIndex(name, "_")
	if idx == -1 {
		return ""
	}
	return core.NormalizeSymbol(name[idx+1:])
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

// parseTime 解析日期和时间
func parseTime(dateStr, timeStr string) (time.Time, bool) {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", dateStr+" "+timeStr, core.Shanghai)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
