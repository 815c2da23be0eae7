package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// tickInterval is how often the scheduler scans registered jobs. Cron
// granularity is one minute, so scanning faster buys nothing.
const tickInterval = time.Minute

// Job is a named unit of background work bound to a cron schedule.
type Job struct {
	Name        string
	Description string
	Schedule    string // five-field cron expression

	// Execute performs the work. Errors and panics are contained per job.
	Execute func(ctx context.Context) error
	// CanRun, when non-nil, is consulted before each run; returning
	// false skips this occurrence.
	CanRun func() bool
	// OnSuccess and OnError, when non-nil, observe each run's outcome.
	OnSuccess func()
	OnError   func(error)
}

// Status is a snapshot of one registered job.
type Status struct {
	Name        string
	Description string
	Schedule    string
	LastRun     time.Time // zero when the job has never run
	NextRun     time.Time
	IsRunning   bool
}

type jobState struct {
	job     Job
	expr    Expression
	lastRun time.Time
	nextRun time.Time
	running bool
}

// Scheduler drives registered jobs from a single repeating timer. Jobs
// run on their own goroutines; the running flag guarantees a job never
// has two concurrent executions of itself.
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[string]*jobState
	now    func() time.Time
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		jobs:   make(map[string]*jobState),
		now:    time.Now,
		logger: slog.Default(),
	}
}

// AddJob registers a job and computes its first run time. The job name
// must be unique and the schedule must parse.
func (s *Scheduler) AddJob(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is empty")
	}
	if job.Execute == nil {
		return fmt.Errorf("job %s has no execute function", job.Name)
	}

	expr, err := ParseExpression(job.Schedule)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}

	nextRun, err := expr.NextRun(s.now())
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}

	s.jobs[job.Name] = &jobState{job: job, expr: expr, nextRun: nextRun}
	s.logger.Info("job registered", "job", job.Name, "schedule", job.Schedule, "next_run", nextRun)
	return nil
}

// Start launches the tick loop. It returns immediately; use Stop (or
// cancel ctx) to shut the scheduler down.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx, s.now())
			}
		}
	}()
}

// Stop cancels the tick loop and blocks until it and every in-flight
// job execution have returned. Executions see the cancelled context.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}

// GetStatus returns a snapshot of every registered job, ordered by name.
func (s *Scheduler) GetStatus() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]Status, 0, len(s.jobs))
	for _, state := range s.jobs {
		statuses = append(statuses, Status{
			Name:        state.job.Name,
			Description: state.job.Description,
			Schedule:    state.job.Schedule,
			LastRun:     state.lastRun,
			NextRun:     state.nextRun,
			IsRunning:   state.running,
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// tick scans all registered jobs once and launches the due ones. A job
// already running is left alone; its next occurrence is picked up after
// it finishes.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		state := s.jobs[name]
		if state.running || state.nextRun.After(now) {
			continue
		}

		if state.job.CanRun != nil && !state.job.CanRun() {
			s.logger.Debug("job not ready, skipping occurrence", "job", name)
			s.reschedule(state)
			continue
		}

		state.running = true
		s.wg.Add(1)
		go s.run(ctx, state)
	}
}

// run executes one job occurrence and records the outcome. Errors and
// panics never escape to the tick loop.
func (s *Scheduler) run(ctx context.Context, state *jobState) {
	defer s.wg.Done()

	started := s.now()
	err := s.execute(ctx, state.job)

	s.mu.Lock()
	state.lastRun = started
	state.running = false
	s.reschedule(state)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", state.job.Name, "error", err)
		if state.job.OnError != nil {
			state.job.OnError(err)
		}
		return
	}
	s.logger.Debug("job completed", "job", state.job.Name, "duration", s.now().Sub(started))
	if state.job.OnSuccess != nil {
		state.job.OnSuccess()
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Execute(ctx)
}

// reschedule recomputes nextRun. Callers hold s.mu. An expression that
// stops matching within the horizon parks the job rather than hot-looping.
func (s *Scheduler) reschedule(state *jobState) {
	nextRun, err := state.expr.NextRun(s.now())
	if err != nil {
		s.logger.Error("job has no upcoming run, parking it", "job", state.job.Name, "error", err)
		// Far-future sentinel; AddJob validated the expression, so this
		// only happens for schedules that stopped matching.
		state.nextRun = s.now().Add(100 * 365 * 24 * time.Hour)
		return
	}
	state.nextRun = nextRun
}
