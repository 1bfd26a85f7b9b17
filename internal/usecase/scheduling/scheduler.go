// Package scheduling runs housekeeping jobs, such as conversation
// retention, on cron expressions or fixed intervals.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type ScheduledAction string

const ActionConversationRetention ScheduledAction = "conversation_retention"

const defaultTaskTimeout = 5 * time.Minute

// ScheduledTask binds a registered action to a schedule. Schedule is a
// five-field cron expression (CRON_TZ= and @descriptors allowed) or a Go
// duration such as "30m".
type ScheduledTask struct {
	Name     string
	Schedule string
	Action   ScheduledAction
	OneShot  bool
	Timeout  time.Duration // per run; zero means five minutes
}

// Scheduler is a thin layer over robfig/cron. Runs of one task never
// overlap and a panicking action is logged instead of killing the process.
type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	mu      sync.Mutex
	actions map[ScheduledAction]func(context.Context) error
	runCtx  context.Context // nil while stopped
	cancel  context.CancelFunc
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		log:     logger,
		actions: make(map[ScheduledAction]func(context.Context) error),
	}
}

func (s *Scheduler) RegisterAction(action ScheduledAction, fn func(context.Context) error) {
	s.mu.Lock()
	s.actions[action] = fn
	s.mu.Unlock()
}

// AddTask schedules task. Its action must already be registered.
func (s *Scheduler) AddTask(task ScheduledTask) error {
	sched, err := ParseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: task %q: %w", task.Name, err)
	}
	if task.Timeout <= 0 {
		task.Timeout = defaultTaskTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fn, ok := s.actions[task.Action]
	if !ok {
		return fmt.Errorf("scheduler: task %q: unknown action %q", task.Name, task.Action)
	}
	j := &taskJob{s: s, task: task, fn: fn}
	// j.id is written under s.mu, which Run takes before reading it.
	j.id = s.cron.Schedule(sched, j)

	s.log.Info("task scheduled", "task", task.Name, "schedule", task.Schedule, "action", string(task.Action))
	return nil
}

// Start is idempotent. Actions run with contexts derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return nil
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	return nil
}

// Stop cancels running actions and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.runCtx == nil {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.runCtx, s.cancel = nil, nil
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	return nil
}

type taskJob struct {
	s    *Scheduler
	task ScheduledTask
	fn   func(context.Context) error
	id   cron.EntryID
}

func (j *taskJob) Run() {
	j.s.mu.Lock()
	parent, id := j.s.runCtx, j.id
	j.s.mu.Unlock()
	if parent == nil {
		return
	}
	if j.task.OneShot {
		j.s.cron.Remove(id)
	}

	ctx, cancel := context.WithTimeout(parent, j.task.Timeout)
	defer cancel()

	start := time.Now()
	err := j.fn(ctx)
	took := time.Since(start)
	if err != nil {
		j.s.log.Warn("scheduled task failed", "task", j.task.Name, "error", err, "duration", took)
		return
	}
	j.s.log.Info("scheduled task completed", "task", j.task.Name, "duration", took)
}

// ParseSchedule tries a cron expression first, then a positive duration.
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	if sched, err := cronParser.Parse(spec); err == nil {
		return sched, nil
	}
	d, err := time.ParseDuration(spec)
	if err != nil {
		return nil, fmt.Errorf("%q is neither a cron expression nor a duration", spec)
	}
	if d <= 0 {
		return nil, fmt.Errorf("interval %q must be positive", spec)
	}
	return every(d), nil
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// every is a fixed interval. cron.Every rounds to whole seconds.
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

// cronLogger feeds robfig/cron's own diagnostics into slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug("cron: "+msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error("cron: "+msg, append(kv, "error", err)...)
}
