package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fixedClock 固定时间
type fixedClock struct {
	current time.Time
}

func (c fixedClock) Now() time.Time {
	return c.current
}

func shanghai(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, Shanghai)
	assert.NoError(t, err)
	return ts
}

func TestMarketTime_IsTradingTime(t *testing.T) {
	tests := []struct {
		name     string
		mockTime string
		expected bool
	}{
		{"开盘前-09:13:29", "2025-08-21 09:13:29", false},
		{"集合竞价-09:13:30", "2025-08-21 09:13:30", true},
		{"上午-10:00:00", "2025-08-21 10:00:00", true},
		{"上午结束-11:30:10", "2025-08-21 11:30:10", true},
		{"午休-11:30:11", "2025-08-21 11:30:11", false},
		{"午休-12:57:29", "2025-08-21 12:57:29", false},
		{"下午-12:57:30", "2025-08-21 12:57:30", true},
		{"收盘-15:00:10", "2025-08-21 15:00:10", true},
		{"收盘后-15:00:11", "2025-08-21 15:00:11", false},
		{"周六", "2025-08-23 10:00:00", false},
		{"周日", "2025-08-24 10:00:00", false},
		{"深夜", "2025-08-21 22:00:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt := NewMarketTime(fixedClock{current: shanghai(t, tt.mockTime)})
			assert.Equal(t, tt.expected, mt.IsTradingTime())
		})
	}
}

func TestMarketTime_ConvertsToShanghai(t *testing.T) {
	// UTC 02:00 即上海 10:00
	utc := time.Date(2025, 8, 21, 2, 0, 0, 0, time.UTC)
	mt := NewMarketTime(fixedClock{current: utc})
	assert.True(t, mt.IsTradingTime())
	assert.Equal(t, 10, mt.Now().Hour())
}

func TestIsTradingDay(t *testing.T) {
	assert.True(t, IsTradingDay(shanghai(t, "2025-08-25 12:00:00")))
	assert.True(t, IsTradingDay(shanghai(t, "2025-08-29 12:00:00")))
	assert.False(t, IsTradingDay(shanghai(t, "2025-08-23 12:00:00")))
	assert.False(t, IsTradingDay(shanghai(t, "2025-08-24 12:00:00")))
}

func TestMarketTime_NextTradingStart(t *testing.T) {
	tests := []struct {
		now, want string
	}{
		{"2025-08-21 08:00:00", "2025-08-21 09:13:30"},
		{"2025-08-21 12:00:00", "2025-08-21 12:57:30"},
		{"2025-08-21 16:00:00", "2025-08-22 09:13:30"},
		{"2025-08-22 16:00:00", "2025-08-25 09:13:30"},
		{"2025-08-23 10:00:00", "2025-08-25 09:13:30"},
		{"2025-08-21 10:00:00", "2025-08-21 10:00:00"},
	}
	for _, tt := range tests {
		mt := NewMarketTime(fixedClock{current: shanghai(t, tt.now)})
		assert.True(t, shanghai(t, tt.want).Equal(mt.NextTradingStart()), tt.now)
	}
}
