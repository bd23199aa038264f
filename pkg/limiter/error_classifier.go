package limiter

import (
	"context"
	"errors"
	"net"
	"strings"

	xerr "equisense/pkg/error"
)

// ErrorLevel 定义错误的严重级别
type ErrorLevel int

const (
	LevelFatal   ErrorLevel = iota // 致命级，不重试（熔断、限流超时、上下文结束）
	LevelNetwork                   // 网络错误，可重试
	LevelInvalid                   // 无效请求或数据校验失败，不重试
	LevelUnknown                   // 未知错误
)

// String 返回级别名称
func (l ErrorLevel) String() string {
	switch l {
	case LevelFatal:
		return "fatal"
	case LevelNetwork:
		return "network"
	case LevelInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ErrorClassifier 负责根据错误类型进行分类
type ErrorClassifier struct {
	// UnknownRetryable 为 true 时未知错误按网络错误处理
	UnknownRetryable bool
}

// NewErrorClassifier 创建新的错误分类器
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// Classify 根据错误链和错误内容分类错误级别
func (c *ErrorClassifier) Classify(err error) ErrorLevel {
	if err == nil {
		return LevelUnknown
	}

	switch xerr.CodeOf(err) {
	case xerr.CodeCircuitOpen, xerr.CodeRateLimitExceeded, xerr.CodeMissingCredentials, xerr.CodeFetchTimeout:
		return LevelFatal
	case xerr.CodeTransientNetwork:
		return LevelNetwork
	case xerr.CodeValidationFailed, xerr.CodeUpstreamStatus:
		return LevelInvalid
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return LevelFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return LevelNetwork
	}

	msg := strings.ToLower(err.Error())

	// 网络错误 - 可重试
	switch {
	case strings.Contains(msg, "timeout"):
		return LevelNetwork
	case strings.Contains(msg, "connection reset"):
		return LevelNetwork
	case strings.Contains(msg, "connection refused"):
		return LevelNetwork
	case strings.Contains(msg, "network is unreachable"):
		return LevelNetwork
	case strings.Contains(msg, "temporary failure"):
		return LevelNetwork
	case strings.Contains(msg, "broken pipe"), strings.Contains(msg, "unexpected eof"):
		return LevelNetwork
	case strings.Contains(msg, "503"), strings.Contains(msg, "502"), strings.Contains(msg, "504"):
		return LevelNetwork
	}

	// 无效参数 - 不重试
	switch {
	case strings.Contains(msg, "invalid argument"):
		return LevelInvalid
	case strings.Contains(msg, "bad request"):
		return LevelInvalid
	case strings.Contains(msg, "not found") && strings.Contains(msg, "404"):
		return LevelInvalid
	case strings.Contains(msg, "forbidden") && strings.Contains(msg, "403"):
		return LevelInvalid
	}

	return LevelUnknown
}

// IsRetryable 只有网络级错误可以重试
func (c *ErrorClassifier) IsRetryable(err error) bool {
	level := c.Classify(err)
	if level == LevelUnknown && err != nil {
		return c.UnknownRetryable
	}
	return level == LevelNetwork
}
