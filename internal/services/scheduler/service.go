// Package scheduler runs the engine's periodic sweeps on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/opsdesk-io/opsdesk-ce/internal/metrics"
	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"
	statusSkipped = "skipped"
)

// Handler executes a scheduled job.
type Handler func(context.Context, *models.ScheduledJob) error

// healthStore receives job run bookkeeping for dashboards. Best effort.
type healthStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Service coordinates scheduled job execution. Each job owns a run-lock: a
// tick that fires while the previous run of the same job is still executing
// is skipped, so two sweeps of one job never overlap.
type Service struct {
	breaches   breachSweeper
	escalation escalationSweeper
	compliance complianceRunner

	cron      *cron.Cron
	parser    cron.Parser
	handlers  map[string]Handler
	entries   map[string]cron.EntryID
	jobs      map[string]*models.ScheduledJob
	runLocks  map[string]*sync.Mutex
	mu        sync.RWMutex
	handlerMu sync.RWMutex
	rootCtx   context.Context
	logger    *log.Logger
	startOnce sync.Once
	stopOnce  sync.Once
	location  *time.Location
	health    healthStore

	warningWindow time.Duration
}

// NewService wires a scheduler around the sweep services.
func NewService(breaches breachSweeper, escalation escalationSweeper, compliance complianceRunner, opts ...Option) *Service {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = log.Default()
	}
	location := options.Location
	if location == nil {
		location = time.UTC
	}
	cronEngine := options.Cron
	if cronEngine == nil {
		cronEngine = cron.New(cron.WithLocation(location))
	}
	var zeroParser cron.Parser
	parser := options.Parser
	if parser == zeroParser {
		parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	}

	jobs := make(map[string]*models.ScheduledJob)
	locks := make(map[string]*sync.Mutex)
	defs := options.Jobs
	if len(defs) == 0 {
		defs = DefaultJobs()
	}
	for _, job := range defs {
		if job == nil || job.Slug == "" || job.Schedule == "" {
			continue
		}
		jobs[job.Slug] = job.Clone()
		locks[job.Slug] = &sync.Mutex{}
	}

	warningWindow := options.WarningWindow
	if warningWindow <= 0 {
		warningWindow = time.Hour
	}

	s := &Service{
		breaches:      breaches,
		escalation:    escalation,
		compliance:    compliance,
		cron:          cronEngine,
		parser:        parser,
		handlers:      make(map[string]Handler),
		entries:       make(map[string]cron.EntryID),
		jobs:          jobs,
		runLocks:      locks,
		logger:        options.Logger,
		location:      location,
		health:        options.Health,
		warningWindow: warningWindow,
	}
	s.registerBuiltinHandlers()
	return s
}

// Run starts the scheduler loop until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.startOnce.Do(func() {
		s.rootCtx = ctx
		s.scheduleAllJobs()
		s.cron.Start()
		s.runStartupJobs()
	})

	<-ctx.Done()
	s.stopCron()
	return nil
}

// Jobs returns a snapshot of every registered job and its last run state.
func (s *Service) Jobs() []*models.ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ScheduledJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	return out
}

// RunJob executes one job immediately, honoring its run-lock. Used by the
// one-shot CLI path and tests.
func (s *Service) RunJob(ctx context.Context, slug string) error {
	s.mu.RLock()
	_, ok := s.jobs[slug]
	entryID := s.entries[slug]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job %s", slug)
	}
	if s.rootCtx == nil {
		s.rootCtx = ctx
	}
	s.executeJob(slug, entryID)
	return nil
}

func (s *Service) runStartupJobs() {
	s.mu.RLock()
	var startupJobs []string
	for slug, job := range s.jobs {
		if job != nil && job.RunOnStartup {
			startupJobs = append(startupJobs, slug)
		}
	}
	s.mu.RUnlock()

	for _, slug := range startupJobs {
		s.mu.RLock()
		entryID := s.entries[slug]
		s.mu.RUnlock()
		go s.executeJob(slug, entryID)
	}
}

func (s *Service) scheduleAllJobs() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for slug, job := range s.jobs {
		if job == nil {
			continue
		}
		if err := s.addJobLocked(job.Clone()); err != nil {
			s.logger.Printf("scheduler: failed to schedule job %s: %v", slug, err)
		}
	}
}

func (s *Service) stopCron() {
	s.stopOnce.Do(func() {
		ctx := s.cron.Stop()
		if ctx == nil {
			return
		}
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
			s.logger.Printf("scheduler: timed out waiting for jobs to finish")
		}
	})
}

func (s *Service) addJobLocked(job *models.ScheduledJob) error {
	schedule, err := s.parser.Parse(job.Schedule)
	if err != nil {
		return err
	}

	slug := job.Slug
	var entryID cron.EntryID
	entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.executeJob(slug, entryID)
	}))

	s.entries[slug] = entryID
	s.jobs[slug] = job
	if _, ok := s.runLocks[slug]; !ok {
		s.runLocks[slug] = &sync.Mutex{}
	}
	return nil
}

func (s *Service) executeJob(slug string, entryID cron.EntryID) {
	job := s.jobSnapshot(slug)
	if job == nil {
		return
	}

	s.mu.RLock()
	lock := s.runLocks[slug]
	s.mu.RUnlock()
	if lock == nil {
		lock = &sync.Mutex{}
	}
	if !lock.TryLock() {
		// Previous run of this job is still going; never overlap sweeps.
		s.logger.Printf("scheduler: job %s still running, skipping tick", slug)
		metrics.SweepRuns.WithLabelValues(slug, statusSkipped).Inc()
		return
	}
	defer lock.Unlock()

	handler := s.getHandler(job.Handler)
	if handler == nil {
		start := s.now()
		s.finalizeRun(job, slug, entryID, start, start, statusFailed, fmt.Errorf("handler %s not registered", job.Handler))
		return
	}

	ctx := s.rootCtx
	if ctx == nil {
		ctx = context.Background()
	}

	runID := uuid.NewString()
	start := s.now()
	jobCtx := ctx
	var cancel context.CancelFunc
	if job.TimeoutSeconds > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, time.Duration(job.TimeoutSeconds)*time.Second)
	}

	var runErr error
	func() {
		defer func() {
			if cancel != nil {
				cancel()
			}
			if r := recover(); r != nil {
				runErr = fmt.Errorf("panic: %v", r)
			}
		}()
		runErr = handler(jobCtx, job)
	}()

	finish := s.now()
	status := statusSuccess
	if runErr != nil {
		status = statusFailed
		s.logger.Printf("scheduler: job %s run %s failed: %v", slug, runID, runErr)
	}
	metrics.SweepRuns.WithLabelValues(slug, status).Inc()
	metrics.SweepDuration.WithLabelValues(slug).Observe(finish.Sub(start).Seconds())

	s.finalizeRun(job, slug, entryID, start, finish, status, runErr)
}

func (s *Service) finalizeRun(job *models.ScheduledJob, slug string, entryID cron.EntryID, start, finish time.Time, status string, runErr error) {
	duration := finish.Sub(start)
	cloned := job.Clone()
	cloned.LastRunAt = &finish
	cloned.LastDurationMS = duration.Milliseconds()
	cloned.LastStatus = status
	if runErr != nil {
		msg := runErr.Error()
		cloned.ErrorMessage = &msg
	} else {
		cloned.ErrorMessage = nil
	}

	if entry := s.cron.Entry(entryID); entry.ID != 0 && !entry.Next.IsZero() {
		next := entry.Next.In(s.location)
		cloned.NextRunAt = &next
	} else {
		cloned.NextRunAt = nil
	}

	s.applyExecutionResult(slug, cloned)
	s.publishHealth(slug, cloned)
}

func (s *Service) publishHealth(slug string, job *models.ScheduledJob) {
	if s.health == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.health.Set(ctx, "scheduler:job:"+slug, job, 24*time.Hour); err != nil {
		s.logger.Printf("scheduler: health snapshot for %s: %v", slug, err)
	}
}

func (s *Service) now() time.Time {
	if s.location == nil {
		return time.Now()
	}
	return time.Now().In(s.location)
}

func (s *Service) applyExecutionResult(slug string, job *models.ScheduledJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[slug] = job.Clone()
}

func (s *Service) jobSnapshot(slug string) *models.ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if job, ok := s.jobs[slug]; ok {
		return job.Clone()
	}
	return nil
}

func (s *Service) getHandler(name string) Handler {
	if name == "" {
		return nil
	}
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()
	return s.handlers[name]
}

// RegisterHandler attaches or replaces a handler for the given name. Passing nil removes the handler.
func (s *Service) RegisterHandler(name string, handler Handler) {
	if name == "" {
		return
	}
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	if handler == nil {
		delete(s.handlers, name)
		return
	}
	s.handlers[name] = handler
}
