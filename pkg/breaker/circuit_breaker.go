// Package breaker 端点级熔断器，基于 sony/gobreaker。
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	xerr "equisense/pkg/error"
	"equisense/pkg/logger"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen 熔断器打开或半开探测进行中时快速失败
var ErrCircuitOpen = xerr.NewError(xerr.CodeCircuitOpen, "circuit breaker is open")

// Config 熔断器配置
type Config struct {
	Name             string        `mapstructure:"name"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"` // 连续失败多少次后打开
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`  // 打开后多久允许探测
}

// DefaultConfig 默认熔断器配置
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// CircuitBreaker 熔断器。每个端点一个实例，并发调用安全。
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	config Config
	log    *logrus.Entry
}

// New 创建熔断器
func New(config Config) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}

	b := &CircuitBreaker{
		config: config,
		log:    logger.WithComponent("CircuitBreaker").WithField("breaker", config.Name),
	}

	settings := gobreaker.Settings{
		Name: config.Name,
		// 半开状态只放行一个探测请求，成功一次即关闭
		MaxRequests: 1,
		// Interval 为 0：关闭状态下计数不按周期清零，只在成功时清零连续失败
		Interval: 0,
		Timeout:  config.RecoveryTimeout,
		// 调用方主动取消不是端点故障；半开状态下的探测被取消仍按失败处理，不据此关闭
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) && b.cb.State() == gobreaker.StateClosed
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.WithFields(logrus.Fields{
				"from": fromGobreaker(from).String(),
				"to":   fromGobreaker(to).String(),
			}).Warn("熔断器状态变更")
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// Name 返回熔断器名称
func (b *CircuitBreaker) Name() string {
	return b.config.Name
}

// Call 熔断器关闭或获准探测时执行 fn，否则不调用 fn 直接返回 ErrCircuitOpen。
// fn 返回的错误原样透传。
func (b *CircuitBreaker) Call(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return xerr.WrapError(xerr.CodeCircuitOpen, fmt.Sprintf("%s: circuit open", b.config.Name), err).
			WithContext("endpoint", b.config.Name)
	}
	return err
}

// State 返回当前状态；打开且恢复超时已过时返回半开
func (b *CircuitBreaker) State() State {
	return fromGobreaker(b.cb.State())
}

// ConsecutiveFailures 当前连续失败次数
func (b *CircuitBreaker) ConsecutiveFailures() uint32 {
	return b.cb.Counts().ConsecutiveFailures
}

// Status 状态快照，供运维接口展示
func (b *CircuitBreaker) Status() map[string]interface{} {
	counts := b.cb.Counts()
	return map[string]interface{}{
		"name":                 b.config.Name,
		"state":                b.State().String(),
		"consecutive_failures": counts.ConsecutiveFailures,
		"total_failures":       counts.TotalFailures,
		"total_successes":      counts.TotalSuccesses,
		"failure_threshold":    b.config.FailureThreshold,
		"recovery_timeout":     b.config.RecoveryTimeout.String(),
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
