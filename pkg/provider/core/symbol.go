package core

import (
	"strings"

	"equisense/pkg/timing"
)

// NormalizeSymbol 去掉市场前缀和后缀，如 sh600000、600000.SH → 600000
func NormalizeSymbol(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, prefix := range []string{"sh", "sz", "bj"} {
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) && isDigits(s[len(prefix):]) {
			s = s[len(prefix):]
			break
		}
	}
	if dot := strings.Index(s, "."); dot != -1 && isDigits(s[:dot]) {
		s = s[:dot]
	}
	if isDigits(s) {
		return s
	}
	return strings.ToUpper(strings.TrimSpace(raw))
}

// IsAShare 是否为 6 位 A 股代码
func IsAShare(symbol string) bool {
	return len(symbol) == 6 && isDigits(symbol)
}

// MarketPrefix 根据 A 股代码返回市场前缀
func MarketPrefix(symbol string) string {
	switch {
	case strings.HasPrefix(symbol, "6") || strings.HasPrefix(symbol, "5") || strings.HasPrefix(symbol, "9"):
		return "sh"
	case strings.HasPrefix(symbol, "0") || strings.HasPrefix(symbol, "3") || strings.HasPrefix(symbol, "1"):
		return "sz"
	case strings.HasPrefix(symbol, "4") || strings.HasPrefix(symbol, "8"):
		return "bj"
	default:
		return "sh"
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Shanghai A 股行情时间所在时区
var Shanghai = timing.Shanghai
