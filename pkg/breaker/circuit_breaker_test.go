package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail() error { return errBoom }
func ok() error   { return nil }

func newTestBreaker() *CircuitBreaker {
	return New(Config{Name: "test", FailureThreshold: 3, RecoveryTimeout: 50 * time.Millisecond})
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	b := newTestBreaker()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Call(fail), errBoom)
		assert.Equal(t, StateClosed, b.State())
	}
	assert.Equal(t, uint32(2), b.ConsecutiveFailures())

	assert.ErrorIs(t, b.Call(fail), errBoom)
	assert.Equal(t, StateOpen, b.State(), "连续失败达到阈值后应打开")

	invoked := false
	err := b.Call(func() error {
		invoked = true
		return nil
	})
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.False(t, invoked, "打开状态下不应调用被包装的操作")
}

func TestCircuitBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	b := newTestBreaker()
	for i := 0; i < 3; i++ {
		_ = b.Call(fail)
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(70 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State(), "恢复超时后应进入半开")

	require.NoError(t, b.Call(ok))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(0), b.ConsecutiveFailures())
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	b := newTestBreaker()
	for i := 0; i < 3; i++ {
		_ = b.Call(fail)
	}
	time.Sleep(70 * time.Millisecond)

	assert.ErrorIs(t, b.Call(fail), errBoom)
	assert.Equal(t, StateOpen, b.State(), "探测失败应重新打开")

	// 恢复计时已重启，立即调用仍被拒绝
	assert.True(t, errors.Is(b.Call(ok), ErrCircuitOpen))
}

func TestCircuitBreaker_CallerCancelDoesNotTrip(t *testing.T) {
	b := newTestBreaker()
	cancelled := func() error { return context.Canceled }

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, b.Call(cancelled), context.Canceled, "错误应原样透传")
	}
	assert.Equal(t, StateClosed, b.State(), "调用方取消不应计为端点失败")

	deadline := func() error { return context.DeadlineExceeded }
	for i := 0; i < 3; i++ {
		_ = b.Call(deadline)
	}
	assert.Equal(t, StateOpen, b.State(), "超时仍计为失败")
}

func TestCircuitBreaker_HalfOpenCancelledProbeReopens(t *testing.T) {
	b := newTestBreaker()
	for i := 0; i < 3; i++ {
		_ = b.Call(fail)
	}
	time.Sleep(70 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	assert.ErrorIs(t, b.Call(func() error { return context.Canceled }), context.Canceled)
	assert.Equal(t, StateOpen, b.State(), "被取消的探测不能证明端点已恢复")
}

func TestCircuitBreaker_SuccessResetsFailureCounter(t *testing.T) {
	b := newTestBreaker()

	_ = b.Call(fail)
	_ = b.Call(fail)
	require.NoError(t, b.Call(ok))
	assert.Equal(t, uint32(0), b.ConsecutiveFailures())

	_ = b.Call(fail)
	_ = b.Call(fail)
	assert.Equal(t, StateClosed, b.State(), "成功后计数清零，不应累计陈旧失败")
}

func TestCircuitBreaker_SingleConcurrentProbe(t *testing.T) {
	b := newTestBreaker()
	for i := 0; i < 3; i++ {
		_ = b.Call(fail)
	}
	time.Sleep(70 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Call(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := b.Call(ok)
	assert.True(t, errors.Is(err, ErrCircuitOpen), "探测进行中其他调用应快速失败")

	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, b.State())
}

func TestCircuitBreaker_Status(t *testing.T) {
	b := New(Config{Name: "status"})
	status := b.Status()
	assert.Equal(t, "status", status["name"])
	assert.Equal(t, "closed", status["state"])
	assert.Equal(t, uint32(5), status["failure_threshold"])
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
