package scheduler

import (
	"context"
	"time"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
	"github.com/opsdesk-io/opsdesk-ce/internal/services/breach"
	"github.com/opsdesk-io/opsdesk-ce/internal/services/escalation"
)

// Job slugs and handler names. Slug and handler are the same string for the
// built-in jobs; they stay separate fields so a job can be re-pointed at a
// different handler without renaming it.
const (
	JobBreachSweep        = "breach-sweep"
	JobWarningSweep       = "warning-sweep"
	JobEscalationSweep    = "escalation-sweep"
	JobMonthlyAggregation = "monthly-aggregation"
)

type breachSweeper interface {
	Sweep(ctx context.Context) (breach.SweepStats, error)
	SweepWarnings(ctx context.Context, window time.Duration) (int, error)
}

type escalationSweeper interface {
	Sweep(ctx context.Context) (escalation.SweepStats, error)
}

type complianceRunner interface {
	Run(ctx context.Context) (int, error)
}

// DefaultJobs returns the built-in job set with its default schedules.
// Schedules are overridden from configuration by the caller.
func DefaultJobs() []*models.ScheduledJob {
	return []*models.ScheduledJob{
		{
			Name:           "SLA Breach Sweep",
			Slug:           JobBreachSweep,
			Handler:        JobBreachSweep,
			Schedule:       "*/5 * * * *",
			TimeoutSeconds: 240,
		},
		{
			Name:           "SLA Warning Sweep",
			Slug:           JobWarningSweep,
			Handler:        JobWarningSweep,
			Schedule:       "*/15 * * * *",
			TimeoutSeconds: 240,
		},
		{
			Name:           "SLA Escalation Sweep",
			Slug:           JobEscalationSweep,
			Handler:        JobEscalationSweep,
			Schedule:       "*/10 * * * *",
			TimeoutSeconds: 300,
		},
		{
			Name:    "Monthly Compliance Aggregation",
			Slug:    JobMonthlyAggregation,
			Handler: JobMonthlyAggregation,
			// Daily recompute of the current month; the upsert makes it safe.
			Schedule:       "15 0 * * *",
			TimeoutSeconds: 600,
			RunOnStartup:   true,
		},
	}
}

// JobsFromSchedules maps configured cron expressions onto the default job
// set. Empty expressions keep the defaults.
func JobsFromSchedules(breachSweep, warningSweep, escalationSweep, monthlyAggregation string) []*models.ScheduledJob {
	jobs := DefaultJobs()
	overrides := map[string]string{
		JobBreachSweep:        breachSweep,
		JobWarningSweep:       warningSweep,
		JobEscalationSweep:    escalationSweep,
		JobMonthlyAggregation: monthlyAggregation,
	}
	for _, job := range jobs {
		if expr := overrides[job.Slug]; expr != "" {
			job.Schedule = expr
		}
	}
	return jobs
}

func (s *Service) registerBuiltinHandlers() {
	s.RegisterHandler(JobBreachSweep, s.handleBreachSweep)
	s.RegisterHandler(JobWarningSweep, s.handleWarningSweep)
	s.RegisterHandler(JobEscalationSweep, s.handleEscalationSweep)
	s.RegisterHandler(JobMonthlyAggregation, s.handleMonthlyAggregation)
}

func (s *Service) handleBreachSweep(ctx context.Context, _ *models.ScheduledJob) error {
	if s.breaches == nil {
		return nil
	}
	stats, err := s.breaches.Sweep(ctx)
	if err != nil {
		return err
	}
	s.logger.Printf("scheduler: breach sweep scanned %d tickets (%d response, %d resolution, %d ola, %d uc, %d errors)",
		stats.Scanned, stats.ResponseBreaches, stats.ResolutionBreaches, stats.OLABreaches, stats.UCBreaches, stats.Errors)
	return nil
}

func (s *Service) handleWarningSweep(ctx context.Context, _ *models.ScheduledJob) error {
	if s.breaches == nil {
		return nil
	}
	notified, err := s.breaches.SweepWarnings(ctx, s.warningWindow)
	if err != nil {
		return err
	}
	if notified > 0 {
		s.logger.Printf("scheduler: warning sweep notified %d tickets", notified)
	}
	return nil
}

func (s *Service) handleEscalationSweep(ctx context.Context, _ *models.ScheduledJob) error {
	if s.escalation == nil {
		return nil
	}
	stats, err := s.escalation.Sweep(ctx)
	if err != nil {
		return err
	}
	s.logger.Printf("scheduler: escalation sweep examined %d tickets, %d escalations, %d floored requests",
		stats.TicketsExamined, stats.Escalations, stats.FlooredRequests)
	return nil
}

func (s *Service) handleMonthlyAggregation(ctx context.Context, _ *models.ScheduledJob) error {
	if s.compliance == nil {
		return nil
	}
	processed, err := s.compliance.Run(ctx)
	if err != nil {
		return err
	}
	s.logger.Printf("scheduler: monthly aggregation processed %d organizations", processed)
	return nil
}
