// Package timing A 股交易时段判断。
package timing

import (
	"time"
)

// Shanghai A 股行情时间所在时区
var Shanghai = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}()

// Clock 提供当前时间，用于mock测试
type Clock interface {
	Now() time.Time
}

// SystemClock 使用系统实际时间
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// 交易时段，前后各留少量缓冲以覆盖集合竞价和收盘快照
const (
	morningStart   = "09:13:30"
	morningEnd     = "11:30:10"
	afternoonStart = "12:57:30"
	afternoonEnd   = "15:00:10"
)

// MarketTime 提供市场交易时间检测功能，所有判断都换算到上海时区
type MarketTime struct {
	clock Clock
}

// NewMarketTime 创建新的市场时间检测器
func NewMarketTime(clock Clock) *MarketTime {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MarketTime{clock: clock}
}

// DefaultMarketTime 使用系统时间的默认市场时间检测器
func DefaultMarketTime() *MarketTime {
	return NewMarketTime(SystemClock{})
}

// Now 返回上海时区的当前时间
func (m *MarketTime) Now() time.Time {
	return m.clock.Now().In(Shanghai)
}

// IsTradingTime 判断当前是否在交易时段
func (m *MarketTime) IsTradingTime() bool {
	now := m.Now()
	if !IsTradingDay(now) {
		return false
	}

	current := now.Format("15:04:05")
	return (current >= morningStart && current <= morningEnd) ||
		(current >= afternoonStart && current <= afternoonEnd)
}

// IsTradingDay 判断是否是交易日（周一到周五，不含节假日）
func IsTradingDay(t time.Time) bool {
	weekday := t.In(Shanghai).Weekday()
	return weekday >= time.Monday && weekday <= time.Friday
}

// NextTradingStart 下一个交易时段的开始时间；正处于交易时段时返回当前时间
func (m *MarketTime) NextTradingStart() time.Time {
	now := m.Now()
	if m.IsTradingTime() {
		return now
	}

	current := now.Format("15:04:05")
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, Shanghai)
	if IsTradingDay(now) {
		switch {
		case current < morningStart:
			return at(day, morningStart)
		case current < afternoonStart:
			return at(day, afternoonStart)
		}
	}

	for {
		day = day.AddDate(0, 0, 1)
		if IsTradingDay(day) {
			return at(day, morningStart)
		}
	}
}

func at(day time.Time, clock string) time.Time {
	t, _ := time.ParseInLocation("15:04:05", clock, Shanghai)
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, Shanghai)
}
