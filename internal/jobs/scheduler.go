// Package jobs runs periodic maintenance tasks on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/metrics"
)

// TaskTimeout bounds a single task run.
const TaskTimeout = 5 * time.Minute

// Task is a named function run on a cron schedule.
type Task struct {
	Name     string
	Schedule string // "0 3 * * *", "@daily", "@every 1h"
	Fn       func(ctx context.Context) error

	entryID cron.EntryID
	mu      sync.Mutex // prevents overlapping runs
}

// Scheduler wraps robfig/cron with logging, metrics and overlap protection.
type Scheduler struct {
	cron  *cron.Cron
	log   *zap.Logger
	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewScheduler(log *zap.Logger) *Scheduler {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	return &Scheduler{cron: c, log: log, tasks: map[string]*Task{}}
}

// AddTask registers fn under name. Invalid schedules are rejected.
func (s *Scheduler) AddTask(name, schedule string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.tasks[name]; dup {
		return fmt.Errorf("task %q already registered", name)
	}
	task := &Task{Name: name, Schedule: schedule, Fn: fn}
	id, err := s.cron.AddFunc(schedule, func() { s.execute(task) })
	if err != nil {
		return fmt.Errorf("add task %q with schedule %q: %w", name, schedule, err)
	}
	task.entryID = id
	s.tasks[name] = task
	return nil
}

func (s *Scheduler) execute(task *Task) {
	if !task.mu.TryLock() {
		s.log.Warn("task still running, skipping", zap.String("task", task.Name))
		return
	}
	defer task.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), TaskTimeout)
	defer cancel()
	start := time.Now()
	err := task.Fn(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		s.log.Error("task failed", zap.String("task", task.Name), zap.Error(err))
	}
	metrics.RecordSchedulerTask(task.Name, status, time.Since(start))
}

// RunNow executes a registered task synchronously.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	task, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task %q not found", name)
	}
	s.execute(task)
	return nil
}

// Start begins running tasks in the background.
func (s *Scheduler) Start() {
	s.mu.RLock()
	n := len(s.tasks)
	s.mu.RUnlock()
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("tasks", n))
}

// Stop stops scheduling and waits for running tasks or ctx, whichever
// comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}
