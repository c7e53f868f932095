// Package scheduler runs the background maintenance tasks on cron
// schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apimgr/weatherdash/src/server/metrics"
	"github.com/apimgr/weatherdash/src/utils"
	"github.com/robfig/cron/v3"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskRunning  = errors.New("task is already running")
	ErrTaskDisabled = errors.New("task is disabled")
)

// TaskFunc is the body of a scheduled task
type TaskFunc func(ctx context.Context) error

// Task represents a scheduled task
type Task struct {
	Name string
	// cron expression: "0 3 * * *", "@hourly", "@every 10m"
	Schedule string
	Fn       TaskFunc
	entryID  cron.EntryID

	mu      sync.Mutex
	enabled bool
	running bool
	history runHistory
}

// Scheduler manages scheduled tasks using robfig/cron
type Scheduler struct {
	cron   *cron.Cron
	logger *utils.Logger

	mu    sync.RWMutex
	tasks map[string]*Task
	order []string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler accepting standard five-field cron
// expressions and descriptors such as "@hourly" and "@every 5m".
func NewScheduler(logger *utils.Logger) *Scheduler {
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	return &Scheduler{
		cron:   c,
		logger: logger,
		tasks:  make(map[string]*Task),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddTask registers fn under name with a cron schedule. An empty schedule
// registers the task disabled so it can still be run by hand.
func (s *Scheduler) AddTask(name, schedule string, fn TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task '%s' already registered", name)
	}

	task := &Task{
		Name:     name,
		Schedule: schedule,
		Fn:       fn,
		enabled:  schedule != "",
	}

	if schedule != "" {
		entryID, err := s.cron.AddFunc(schedule, func() { s.executeTask(s.ctx, task) })
		if err != nil {
			return fmt.Errorf("failed to add task '%s' with schedule '%s': %w", name, schedule, err)
		}
		task.entryID = entryID
	}

	s.tasks[name] = task
	s.order = append(s.order, name)
	return nil
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.mu.RLock()
	n := len(s.tasks)
	s.mu.RUnlock()

	s.cron.Start()
	s.logger.Info("Scheduler started (%d tasks)", n)
}

// Stop cancels running tasks and waits for them to return or for ctx to end
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// RunNow runs the named task immediately and returns its error. A task that
// is already running is not started twice.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	task, err := s.task(name)
	if err != nil {
		return err
	}
	return s.run(ctx, task)
}

// EnableTask resumes scheduled runs of a task
func (s *Scheduler) EnableTask(name string) error {
	return s.setEnabled(name, true)
}

// DisableTask pauses scheduled runs of a task. RunNow still works.
func (s *Scheduler) DisableTask(name string) error {
	return s.setEnabled(name, false)
}

func (s *Scheduler) setEnabled(name string, enabled bool) error {
	task, err := s.task(name)
	if err != nil {
		return err
	}
	task.mu.Lock()
	task.enabled = enabled && task.Schedule != ""
	task.mu.Unlock()

	if enabled {
		s.logger.Info("Task '%s' enabled", name)
	} else {
		s.logger.Info("Task '%s' disabled", name)
	}
	return nil
}

func (s *Scheduler) task(name string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return task, nil
}

// executeTask is the cron entry point; disabled and overlapping runs are
// skipped silently.
func (s *Scheduler) executeTask(ctx context.Context, task *Task) {
	task.mu.Lock()
	enabled := task.enabled
	task.mu.Unlock()
	if !enabled {
		return
	}

	if err := s.run(ctx, task); errors.Is(err, ErrTaskRunning) {
		s.logger.Warn("Task '%s' skipped: previous run still in progress", task.Name)
		metrics.SchedulerTasksTotal.WithLabelValues(task.Name, "skipped").Inc()
	}
}

func (s *Scheduler) run(ctx context.Context, task *Task) error {
	task.mu.Lock()
	if task.running {
		task.mu.Unlock()
		return ErrTaskRunning
	}
	task.running = true
	task.mu.Unlock()

	start := time.Now()
	err := task.Fn(ctx)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		s.logger.Error("Task '%s' failed after %v: %v", task.Name, elapsed, err)
	} else {
		s.logger.Info("Task '%s' completed in %v", task.Name, elapsed)
	}
	metrics.RecordSchedulerTask(task.Name, status, elapsed)

	task.mu.Lock()
	task.running = false
	task.history.record(TaskRun{
		StartTime: start,
		Duration:  elapsed.Milliseconds(),
		Status:    status,
		Error:     errString(err),
	})
	task.mu.Unlock()

	return err
}

// Tasks describes every registered task in registration order
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TaskInfo, 0, len(s.order))
	for _, name := range s.order {
		task := s.tasks[name]

		task.mu.Lock()
		info := TaskInfo{
			Name:     task.Name,
			Schedule: task.Schedule,
			Enabled:  task.enabled,
			Running:  task.running,
		}
		task.history.fill(&info)
		task.mu.Unlock()

		if info.Enabled && task.entryID != 0 {
			if entry := s.cron.Entry(task.entryID); entry.ID != 0 && !entry.Next.IsZero() {
				next := entry.Next
				info.NextRun = &next
			}
		}
		out = append(out, info)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
