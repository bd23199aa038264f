package main

import (
	"context"
	"errors"
	"time"

	"equisense/pkg/cache"
	"equisense/pkg/config"
	"equisense/pkg/federator"
	"equisense/pkg/logger"
	"equisense/pkg/provider"
	"equisense/pkg/reconcile"
	"equisense/pkg/reliability"
)

// app 进程内唯一的一组依赖，启动时构建一次后显式传递
type app struct {
	cfg       *config.Config
	cache     cache.Cache
	registry  *provider.Registry
	tracker   *reliability.Tracker
	federator *federator.Federator
}

func newApp(cfg *config.Config) (*app, error) {
	log := logger.WithComponent("App")

	c, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc, ok := c.(*cache.RedisCache); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rc.Ping(ctx); err != nil {
			log.WithError(err).Warn("Redis 缓存不可用，将直接请求数据源")
		}
		cancel()
	}

	registry, err := provider.BuildRegistry(cfg, c)
	if err != nil {
		closeCache(c)
		return nil, err
	}

	tracker := reliability.NewTracker(registry.Names()...)
	rec := reconcile.New(cfg.Reconciler, registry.Priorities(), tracker)
	fed := federator.New(cfg.Federator, registry, rec, tracker)

	return &app{
		cfg:       cfg,
		cache:     c,
		registry:  registry,
		tracker:   tracker,
		federator: fed,
	}, nil
}

func (a *app) Close() error {
	return errors.Join(a.registry.Close(), closeCache(a.cache))
}

func closeCache(c cache.Cache) error {
	if closer, ok := c.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
