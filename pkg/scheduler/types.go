package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc 任务函数，ctx 在超时或调度器停止时取消
type JobFunc func(ctx context.Context) error

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusError   JobStatus = "error"
)

// Job 已注册的任务及其运行统计
type Job struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Schedule   string        `json:"schedule"`
	Timeout    time.Duration `json:"timeout"`
	Status     JobStatus     `json:"status"`
	LastRun    *time.Time    `json:"last_run,omitempty"`
	NextRun    *time.Time    `json:"next_run,omitempty"`
	RunCount   int64         `json:"run_count"`
	ErrorCount int64         `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`

	entryID cron.EntryID
	fn      JobFunc
}
