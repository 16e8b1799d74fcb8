package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks. The context is
// cancelled when the scheduler stops.
type TaskFn func(ctx context.Context) error

// Task kinds reported by List.
const (
	KindInterval = "interval"
	KindDelay    = "delay"
	KindCron     = "cron"
)

// ErrUnknownTask is returned by RunNow for a name that is not registered.
var ErrUnknownTask = errors.New("scheduler: unknown task")

// TaskInfo is a snapshot of one registered task.
type TaskInfo struct {
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	Schedule  string     `json:"schedule"`
	Runs      int64      `json:"runs"`
	Failures  int64      `json:"failures"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

type task struct {
	info   TaskInfo
	fn     TaskFn
	stopCh chan struct{}
	timer  *time.Timer
	job    gocron.Job
}

// Scheduler runs background maintenance: fixed-interval tickers, one-shot
// delays and cron expressions. Cron jobs are driven by gocron.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	cron   gocron.Scheduler
	loc    *time.Location
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler. Cron expressions are evaluated in UTC
// unless WithLocation is used.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*task),
		loc:    time.UTC,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// WithLocation sets the zone cron expressions are evaluated in. It must be
// called before the first AddCron.
func (s *Scheduler) WithLocation(loc *time.Location) *Scheduler {
	if loc != nil {
		s.loc = loc
	}
	return s
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)

	t := &task{
		info:   TaskInfo{Name: name, Kind: KindInterval, Schedule: interval.String()},
		fn:     fn,
		stopCh: make(chan struct{}),
	}
	s.tasks[name] = t

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(t)
			case <-t.stopCh:
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered",
		zap.String("name", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after the given delay.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)

	t := &task{
		info: TaskInfo{Name: name, Kind: KindDelay, Schedule: delay.String()},
		fn:   fn,
	}
	t.timer = time.AfterFunc(delay, func() {
		if s.ctx.Err() != nil {
			return
		}
		s.run(t)
		s.mu.Lock()
		if s.tasks[name] == t {
			delete(s.tasks, name)
		}
		s.mu.Unlock()
	})
	s.tasks[name] = t
}

// AddCron registers fn on a standard five-field cron expression. Overlapping
// runs of the same job are skipped.
func (s *Scheduler) AddCron(name, spec string, fn TaskFn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return errors.New("scheduler: stopped")
	}
	if s.cron == nil {
		c, err := gocron.NewScheduler(gocron.WithLocation(s.loc))
		if err != nil {
			return fmt.Errorf("scheduler: start cron: %w", err)
		}
		c.Start()
		s.cron = c
	}

	t := &task{
		info: TaskInfo{Name: name, Kind: KindCron, Schedule: spec},
		fn:   fn,
	}
	job, err := s.cron.NewJob(
		gocron.CronJob(spec, false),
		gocron.NewTask(func() { s.run(t) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: cron %q: %w", spec, err)
	}
	s.removeLocked(name)
	t.job = job
	s.tasks[name] = t
	s.logger.Info("scheduler cron registered",
		zap.String("name", name), zap.String("spec", spec))
	return nil
}

// RunNow executes a registered task synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) (TaskInfo, error) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return TaskInfo{}, ErrUnknownTask
	}
	s.run(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(t), nil
}

func (s *Scheduler) run(t *task) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return t.fn(s.ctx)
	}()

	s.mu.Lock()
	t.info.Runs++
	t.info.LastRun = &start
	if err != nil {
		t.info.Failures++
		t.info.LastError = err.Error()
	} else {
		t.info.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduler task failed",
			zap.String("task", t.info.Name), zap.Error(err))
		return
	}
	s.logger.Debug("scheduler task done",
		zap.String("task", t.info.Name), zap.Duration("took", time.Since(start)))
}

// Remove stops and removes a task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
}

func (s *Scheduler) removeLocked(name string) {
	t, ok := s.tasks[name]
	if !ok {
		return
	}
	delete(s.tasks, name)
	switch {
	case t.stopCh != nil:
		close(t.stopCh)
	case t.timer != nil:
		t.timer.Stop()
	case t.job != nil && s.cron != nil:
		if err := s.cron.RemoveJob(t.job.ID()); err != nil {
			s.logger.Warn("scheduler cron remove", zap.String("task", name), zap.Error(err))
		}
	}
}

// Stop stops all tasks and cancels the context handed to running ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.cancel()
	for _, t := range s.tasks {
		if t.timer != nil {
			t.timer.Stop()
		}
	}
	cron := s.cron
	s.mu.Unlock()

	// running cron jobs take s.mu when they finish
	if cron != nil {
		if err := cron.Shutdown(); err != nil {
			s.logger.Warn("scheduler cron shutdown", zap.Error(err))
		}
	}
}

// ListTickers returns the names of all registered tasks, sorted.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns a snapshot of every registered task, sorted by name.
func (s *Scheduler) List() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, s.snapshot(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) snapshot(t *task) TaskInfo {
	info := t.info
	if t.job != nil {
		if next, err := t.job.NextRun(); err == nil && !next.IsZero() {
			info.NextRun = &next
		}
	}
	return info
}
