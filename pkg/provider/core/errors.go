package core

import (
	xerr "equisense/pkg/error"
)

// 定义核心错误
var (
	// ErrMissingCredentials 数据源未配置 API Key
	ErrMissingCredentials = xerr.NewError(xerr.CodeMissingCredentials, "api key not configured")

	// ErrValidation 返回数据缺少必需字段
	ErrValidation = xerr.NewError(xerr.CodeValidationFailed, "payload failed validation")

	// ErrFetchTimeout 数据源在聚合超时前未完成
	ErrFetchTimeout = xerr.NewError(xerr.CodeFetchTimeout, "source did not finish before timeout")

	// ErrEmptyKey 查询键为空
	ErrEmptyKey = xerr.NewError(xerr.CodeValidationFailed, "query key is empty")
)
