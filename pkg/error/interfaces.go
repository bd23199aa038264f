package error

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode 错误代码类型
type ErrorCode string

const (
	// CodeRateLimitExceeded 等待限流许可超过了配置的最长等待时间
	CodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// CodeCircuitOpen 熔断器处于打开状态，请求被快速拒绝
	CodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	// CodeTransientNetwork 超时、5xx、连接重置等可重试的网络错误
	CodeTransientNetwork ErrorCode = "TRANSIENT_NETWORK"
	// CodeValidationFailed 返回数据缺少必需字段，重试无法修复
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// CodeMissingCredentials 数据源未配置 API Key
	CodeMissingCredentials ErrorCode = "MISSING_CREDENTIALS"
	// CodeUpstreamStatus 上游返回了不可重试的 HTTP 状态码
	CodeUpstreamStatus ErrorCode = "UPSTREAM_STATUS"
	// CodeFetchTimeout 数据源在聚合超时前未完成
	CodeFetchTimeout ErrorCode = "FETCH_TIMEOUT"
	// CodeCacheMiss 缓存中没有该键
	CodeCacheMiss ErrorCode = "CACHE_MISS"
	// CodeCacheUnavailable 缓存后端不可用，调用方应直接走网络
	CodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"
	// CodeConfigInvalid 配置校验失败
	CodeConfigInvalid ErrorCode = "CONFIG_INVALID"
)

// BaseError 基础错误类型
type BaseError struct {
	Code      ErrorCode              `json:"code"`              // 错误的分类代码
	Message   string                 `json:"message"`           // 人类可读的错误信息
	Cause     error                  `json:"-"`                 // 导致此错误的原始错误
	Context   map[string]interface{} `json:"context,omitempty"` // 额外的上下文信息
	Timestamp time.Time              `json:"timestamp"`         // 错误发生的时间戳
}

// NewError 创建新的基础错误
func NewError(code ErrorCode, message string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]interface{}),
	}
}

// WrapError 包装现有错误
func WrapError(code ErrorCode, message string, cause error) *BaseError {
	e := NewError(code, message)
	e.Cause = cause
	return e
}

// Error 实现 error 接口
func (e *BaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap 支持错误包装
func (e *BaseError) Unwrap() error {
	return e.Cause
}

// Is 按错误码比较，使 errors.Is(err, ErrXxx) 对包装后的同码错误同样成立
func (e *BaseError) Is(target error) bool {
	if t, ok := target.(*BaseError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext 为错误附加一个键值对形式的上下文信息。
func (e *BaseError) WithContext(key string, value interface{}) *BaseError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// CodeOf 返回错误链上第一个 BaseError 的错误码，没有则返回空串
func CodeOf(err error) ErrorCode {
	var be *BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
