// Package scheduler runs the cache layer's recurring jobs: polling analytics
// for staleness and re-checking the patient profile.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultJobTimeout bounds a single job run
const DefaultJobTimeout = time.Minute

// JobFunc is the body of a scheduled job
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	schedule string
	timeout  time.Duration
	run      JobFunc
	entryID  cron.EntryID
}

// Runner manages scheduled job execution. A job still running when its next
// tick arrives is skipped for that tick.
type Runner struct {
	cron    *cron.Cron
	jobs    map[string]*job
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.RWMutex
}

// NewRunner creates a new runner
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:   make(map[string]*job),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob registers a job under a standard cron expression or descriptor
// such as "@every 30s". A zero timeout uses DefaultJobTimeout.
func (r *Runner) AddJob(name, schedule string, timeout time.Duration, run JobFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}

	j := &job{name: name, schedule: schedule, timeout: timeout, run: run}
	id, err := r.cron.AddFunc(schedule, func() { _ = r.execute(j) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", schedule, name, err)
	}
	j.entryID = id
	r.jobs[name] = j
	return nil
}

// Start starts the runner
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("scheduler already running")
	}
	if r.ctx.Err() != nil {
		return fmt.Errorf("scheduler already stopped")
	}

	r.running = true
	r.cron.Start()
	r.logger.Info("Scheduler started", zap.Int("jobs", len(r.jobs)))
	return nil
}

// Stop cancels running jobs and waits for them to return. A stopped runner
// cannot be restarted.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		r.cancel()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	<-r.cron.Stop().Done()
	r.logger.Info("Scheduler stopped")
}

// IsRunning returns whether the runner is active
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// RunNow runs a registered job immediately on the caller's goroutine
func (r *Runner) RunNow(name string) error {
	r.mu.RLock()
	j, ok := r.jobs[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %q not registered", name)
	}
	return r.execute(j)
}

// Jobs maps registered job names to their next run time, zero while the
// runner is not started
func (r *Runner) Jobs() map[string]time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]time.Time, len(r.jobs))
	for name, j := range r.jobs {
		out[name] = r.cron.Entry(j.entryID).Next
	}
	return out
}

// JobNames returns the registered job names in sorted order
func (r *Runner) JobNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// execute runs a single job
func (r *Runner) execute(j *job) error {
	ctx, cancel := context.WithTimeout(r.ctx, j.timeout)
	defer cancel()

	start := time.Now()
	if err := j.run(ctx); err != nil {
		r.logger.Error("Job execution failed",
			zap.String("job", j.name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
	r.logger.Debug("Job completed",
		zap.String("job", j.name),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// cronLogger adapts zap to cron's logger interface
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
