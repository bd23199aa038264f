package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("0 * * * * *"))
	assert.NoError(t, ValidateSchedule("@every 30s"))
	assert.Error(t, ValidateSchedule("every minute"))
	assert.Error(t, ValidateSchedule(""))
}

func TestAddJob_Validation(t *testing.T) {
	s := New()
	noop := func(ctx context.Context) error { return nil }

	assert.Error(t, s.AddJob("", "@every 1s", 0, noop))
	assert.Error(t, s.AddJob("a", "bad", 0, noop))
	assert.Error(t, s.AddJob("a", "@every 1s", 0, nil))

	require.NoError(t, s.AddJob("a", "@every 1s", 0, noop))
	assert.Error(t, s.AddJob("a", "@every 1s", 0, noop), "重复的任务名")

	job, err := s.GetJob("a")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, job.Timeout)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.NotEmpty(t, job.ID)

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"))
	assert.Empty(t, s.Jobs())
}

func TestRunJob_RecordsOutcome(t *testing.T) {
	s := New()
	fail := true
	require.NoError(t, s.AddJob("report", "@every 1h", time.Second, func(ctx context.Context) error {
		if fail {
			return errors.New("influx down")
		}
		return nil
	}))

	assert.EqualError(t, s.RunJob("report"), "influx down")
	job, _ := s.GetJob("report")
	assert.Equal(t, JobStatusError, job.Status)
	assert.Equal(t, "influx down", job.LastError)
	assert.Equal(t, int64(1), job.ErrorCount)

	fail = false
	require.NoError(t, s.RunJob("report"))
	job, _ = s.GetJob("report")
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Empty(t, job.LastError)
	assert.Equal(t, int64(2), job.RunCount)
	require.NotNil(t, job.LastRun)

	assert.Error(t, s.RunJob("missing"))
}

func TestRunJob_PanicContained(t *testing.T) {
	s := New()
	require.NoError(t, s.AddJob("p", "@every 1h", time.Second, func(ctx context.Context) error {
		panic("boom")
	}))
	assert.Error(t, s.RunJob("p"))
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s := New()
	var runs int32
	require.NoError(t, s.AddJob("tick", "* * * * * *", time.Second, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}))

	s.Start()
	defer s.Stop(time.Second)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, 3*time.Second, 50*time.Millisecond)

	job, err := s.GetJob("tick")
	require.NoError(t, err)
	assert.NotNil(t, job.NextRun)
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	s := New()
	started := make(chan struct{})
	done := make(chan error, 1)
	require.NoError(t, s.AddJob("long", "@every 1h", time.Minute, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))

	go func() { done <- s.RunJob("long") }()
	<-started
	s.Stop(time.Second)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("任务未随调度器停止而取消")
	}
}
