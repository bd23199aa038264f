package cache

import (
	"fmt"

	xerr "equisense/pkg/error"
)

// Config 缓存后端选择
type Config struct {
	Backend string       `mapstructure:"backend"` // memory | redis | none
	Memory  MemoryConfig `mapstructure:"memory"`
	Redis   RedisConfig  `mapstructure:"redis"`
}

// New 按配置创建缓存；backend 为 none 或空时返回 nil，表示不使用缓存
func New(config Config) (Cache, error) {
	switch config.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryCache(config.Memory), nil
	case "redis":
		return NewRedisCache(config.Redis), nil
	default:
		return nil, xerr.NewError(xerr.CodeConfigInvalid, fmt.Sprintf("unknown cache backend %q", config.Backend))
	}
}
