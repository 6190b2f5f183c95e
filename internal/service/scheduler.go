package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/lesson-engine/internal/observability"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobRunning        = errors.New("job is already running")
	ErrSchedulerInactive = errors.New("scheduler is not running")
)

// Task is one execution of a periodic job. The context carries the run id
// and is cancelled only when Stop gives up waiting.
type Task func(ctx context.Context) error

type JobStatus struct {
	Name          string        `json:"name"`
	Interval      time.Duration `json:"interval"`
	Running       bool          `json:"running"`
	Runs          uint64        `json:"runs"`
	LastStartedAt *time.Time    `json:"lastStartedAt,omitempty"`
	LastDuration  time.Duration `json:"lastDuration"`
	LastError     string        `json:"lastError,omitempty"`
}

type schedulerState int

const (
	stateIdle schedulerState = iota
	stateRunning
	stateStopped
)

type scheduledJob struct {
	name     string
	interval time.Duration
	task     Task
	running  atomic.Bool

	mu            sync.Mutex
	runs          uint64
	lastStartedAt time.Time
	lastDuration  time.Duration
	lastError     string
}

// TaskScheduler runs registered jobs once at Start and then every interval.
// A job whose previous run is still going skips the tick. Stop waits for
// in-flight runs.
type TaskScheduler struct {
	mu     sync.Mutex
	state  schedulerState
	jobs   []*scheduledJob
	byName map[string]*scheduledJob

	cron       *cron.Cron
	runCtx     context.Context
	cancelRuns context.CancelFunc
	inflight   sync.WaitGroup

	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	scheduleFor func(interval time.Duration) cron.Schedule
}

func NewTaskScheduler(logger *zap.Logger) *TaskScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TaskScheduler{
		byName: make(map[string]*scheduledJob),
		cron: cron.New(
			cron.WithLogger(cronLogger{logger: logger.Sugar()}),
		),
		logger: logger,
		now:    time.Now,
		scheduleFor: func(interval time.Duration) cron.Schedule {
			return cron.Every(interval)
		},
	}
}

func (s *TaskScheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *TaskScheduler) Register(name string, interval time.Duration, task Task) error {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return fmt.Errorf("job name is required")
	case interval <= 0:
		return fmt.Errorf("job %s: interval must be positive", name)
	case task == nil:
		return fmt.Errorf("job %s: task is required", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateIdle {
		return fmt.Errorf("job %s: cannot register after start", name)
	}
	if _, exists := s.byName[name]; exists {
		return fmt.Errorf("job %s: already registered", name)
	}

	job := &scheduledJob{name: name, interval: interval, task: task}
	s.jobs = append(s.jobs, job)
	s.byName[name] = job
	return nil
}

// Start schedules every job and runs each once immediately. In-flight runs
// are not cancelled when ctx ends; use Stop.
func (s *TaskScheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.state != stateIdle {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	s.runCtx, s.cancelRuns = context.WithCancel(context.WithoutCancel(ctx))
	for _, job := range s.jobs {
		s.cron.Schedule(s.scheduleFor(job.interval), cron.FuncJob(func() {
			s.tick(job)
		}))
	}
	s.state = stateRunning
	s.cron.Start()
	jobs := append([]*scheduledJob(nil), s.jobs...)
	s.mu.Unlock()

	for _, job := range jobs {
		if err := s.launch(job); err != nil {
			s.logger.Warn("initial job run not started", zap.String("job", job.name), zap.Error(err))
		}
	}

	s.logger.Info("scheduler started", zap.Int("jobs", len(jobs)))
	return nil
}

// Stop prevents new runs and waits for in-flight ones. When ctx ends first
// the remaining runs are cancelled and ctx.Err() is returned.
func (s *TaskScheduler) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	previous := s.state
	s.state = stateStopped
	s.mu.Unlock()

	if previous != stateRunning {
		return nil
	}

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.inflight.Wait()
		close(done)
	}()

	defer s.cancelRuns()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline reached with jobs still running", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// RunNow starts an extra run of name in the background.
func (s *TaskScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}

	return s.launch(job)
}

func (s *TaskScheduler) Jobs() []JobStatus {
	s.mu.Lock()
	jobs := append([]*scheduledJob(nil), s.jobs...)
	s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(jobs))
	for _, job := range jobs {
		job.mu.Lock()
		status := JobStatus{
			Name:         job.name,
			Interval:     job.interval,
			Running:      job.running.Load(),
			Runs:         job.runs,
			LastDuration: job.lastDuration,
			LastError:    job.lastError,
		}
		if !job.lastStartedAt.IsZero() {
			startedAt := job.lastStartedAt
			status.LastStartedAt = &startedAt
		}
		job.mu.Unlock()
		statuses = append(statuses, status)
	}
	return statuses
}

// tick is the cron callback. It runs the job on the cron goroutine.
func (s *TaskScheduler) tick(job *scheduledJob) {
	if err := s.acquire(job); err != nil {
		if errors.Is(err, ErrJobRunning) {
			s.logger.Info("previous run still in progress, skipping tick", zap.String("job", job.name))
			s.metrics.ObserveJobRun(job.name, "skipped", 0)
		}
		return
	}
	s.execute(job)
}

func (s *TaskScheduler) launch(job *scheduledJob) error {
	if err := s.acquire(job); err != nil {
		return err
	}
	go s.execute(job)
	return nil
}

func (s *TaskScheduler) acquire(job *scheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateRunning {
		return ErrSchedulerInactive
	}
	if !job.running.CompareAndSwap(false, true) {
		return ErrJobRunning
	}
	s.inflight.Add(1)
	return nil
}

func (s *TaskScheduler) execute(job *scheduledJob) {
	defer s.inflight.Done()
	defer job.running.Store(false)

	// Only Stop's deadline cancels a run; a slow run is never cut off mid-write.
	ctx := observability.WithRun(s.runCtx, job.name, uuid.NewString())

	logger := observability.WithContextLogger(s.logger, ctx)
	startedAt := s.now()
	outcome := "ok"

	err := s.safeRun(ctx, job)
	duration := s.now().Sub(startedAt)

	var panicErr *jobPanicError
	switch {
	case errors.As(err, &panicErr):
		outcome = "panic"
		logger.Error("job panicked",
			zap.Any("panic", panicErr.value),
			zap.ByteString("stack", panicErr.stack),
			zap.Duration("duration", duration),
		)
	case err != nil:
		outcome = "error"
		logger.Error("job failed", zap.Duration("duration", duration), zap.Error(err))
	default:
		logger.Debug("job finished", zap.Duration("duration", duration))
	}

	job.mu.Lock()
	job.runs++
	job.lastStartedAt = startedAt
	job.lastDuration = duration
	job.lastError = ""
	if err != nil {
		job.lastError = err.Error()
	}
	job.mu.Unlock()

	s.metrics.ObserveJobRun(job.name, outcome, duration)
}

type jobPanicError struct {
	value any
	stack []byte
}

func (e *jobPanicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func (s *TaskScheduler) safeRun(ctx context.Context, job *scheduledJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &jobPanicError{value: r, stack: debug.Stack()}
		}
	}()
	return job.task(ctx)
}

// cronLogger routes cron's own diagnostics through zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
