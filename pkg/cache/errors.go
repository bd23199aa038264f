package cache

import (
	"errors"

	xerr "equisense/pkg/error"
)

var (
	// ErrMiss 缓存中没有该键或已过期
	ErrMiss = xerr.NewError(xerr.CodeCacheMiss, "cache entry not found")
	// ErrUnavailable 缓存后端不可用
	ErrUnavailable = xerr.NewError(xerr.CodeCacheUnavailable, "cache backend unavailable")
)

// IsMiss 判断是否为未命中
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}

func unavailable(op string, cause error) error {
	return xerr.WrapError(xerr.CodeCacheUnavailable, op+" failed", cause)
}
