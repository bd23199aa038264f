// Package scheduler 基于 cron 表达式（含秒字段）的周期任务调度。
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"equisense/pkg/logger"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout 任务未指定超时时的默认值
const DefaultTimeout = 5 * time.Minute

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler 任务调度器
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]*Job
	mu      sync.RWMutex
	log     *logrus.Entry
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New 创建调度器
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		jobs:   make(map[string]*Job),
		log:    logger.WithComponent("Scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ValidateSchedule 校验 cron 表达式
func ValidateSchedule(schedule string) error {
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("无效的调度表达式 '%s': %w", schedule, err)
	}
	return nil
}

// AddJob 添加任务。timeout<=0 时使用 DefaultTimeout。
func (s *Scheduler) AddJob(name, schedule string, timeout time.Duration, fn JobFunc) error {
	if name == "" {
		return fmt.Errorf("任务名称不能为空")
	}
	if fn == nil {
		return fmt.Errorf("任务函数不能为空: %s", name)
	}
	if err := ValidateSchedule(schedule); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("任务已存在: %s", name)
	}

	job := &Job{
		ID:       uuid.New().String(),
		Name:     name,
		Schedule: schedule,
		Timeout:  timeout,
		Status:   JobStatusPending,
		fn:       fn,
	}

	entryID, err := s.cron.AddFunc(schedule, func() { s.execute(job) })
	if err != nil {
		return fmt.Errorf("添加任务到调度器失败: %w", err)
	}
	job.entryID = entryID
	s.jobs[name] = job

	s.log.WithFields(logrus.Fields{"job": name, "schedule": schedule}).Info("任务已添加")
	return nil
}

// RemoveJob 移除任务
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("任务不存在: %s", name)
	}
	s.cron.Remove(job.entryID)
	delete(s.jobs, name)
	return nil
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.log.WithField("jobs", len(s.jobs)).Info("任务调度器已启动")
}

// Stop 停止调度器并等待运行中的任务结束，最多等待 wait
func (s *Scheduler) Stop(wait time.Duration) {
	s.cancel()
	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		s.log.Info("任务调度器已停止")
	case <-time.After(wait):
		s.log.Warn("任务调度器停止超时")
	}
}

// RunJob 立即同步执行一次任务
func (s *Scheduler) RunJob(name string) error {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("任务不存在: %s", name)
	}
	return s.execute(job)
}

// GetJob 返回任务状态副本
func (s *Scheduler) GetJob(name string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[name]
	if !exists {
		return Job{}, fmt.Errorf("任务不存在: %s", name)
	}
	return s.snapshot(job), nil
}

// Jobs 返回所有任务状态副本
func (s *Scheduler) Jobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, s.snapshot(job))
	}
	return out
}

// snapshot 需要持有读锁
func (s *Scheduler) snapshot(job *Job) Job {
	c := *job
	if e := s.cron.Entry(job.entryID); e.Valid() && !e.Next.IsZero() {
		next := e.Next
		c.NextRun = &next
	}
	return c
}

// execute 同一任务不重叠执行
func (s *Scheduler) execute(job *Job) error {
	s.mu.Lock()
	if job.Status == JobStatusRunning {
		s.mu.Unlock()
		s.log.WithField("job", job.Name).Warn("任务正在运行，跳过本次执行")
		return nil
	}
	job.Status = JobStatusRunning
	now := time.Now()
	job.LastRun = &now
	job.RunCount++
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, job.Timeout)
	defer cancel()

	err := runSafely(ctx, job.fn)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		job.Status = JobStatusError
		job.LastError = err.Error()
		job.ErrorCount++
		s.log.WithError(err).WithField("job", job.Name).Error("任务执行失败")
		return err
	}
	job.Status = JobStatusPending
	job.LastError = ""
	s.log.WithField("job", job.Name).Debug("任务执行成功")
	return nil
}

func runSafely(ctx context.Context, fn JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("任务 panic: %v", r)
		}
	}()
	return fn(ctx)
}
