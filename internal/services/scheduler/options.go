package scheduler

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

type options struct {
	Logger        *log.Logger
	Cron          *cron.Cron
	Parser        cron.Parser
	Jobs          []*models.ScheduledJob
	Location      *time.Location
	Health        healthStore
	WarningWindow time.Duration
}

// Option applies configuration to the scheduler service.
type Option func(*options)

func defaultOptions() options {
	return options{Logger: log.Default(), Location: time.UTC}
}

// WithLogger injects a custom logger implementation.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.Logger = l
	}
}

// WithCron supplies a preconfigured cron scheduler instance.
func WithCron(c *cron.Cron) Option {
	return func(o *options) {
		o.Cron = c
	}
}

// WithCronParser allows replacing the cron expression parser.
func WithCronParser(p cron.Parser) Option {
	return func(o *options) {
		o.Parser = p
	}
}

// WithJobs registers explicit job definitions instead of defaults.
func WithJobs(jobs []*models.ScheduledJob) Option {
	return func(o *options) {
		o.Jobs = jobs
	}
}

// WithLocation sets the scheduler timezone location.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.Location = loc
	}
}

// WithHealthStore publishes job run state to a cache for dashboards.
func WithHealthStore(store healthStore) Option {
	return func(o *options) {
		o.Health = store
	}
}

// WithWarningWindow sets how far ahead the warning sweep looks.
func WithWarningWindow(window time.Duration) Option {
	return func(o *options) {
		o.WarningWindow = window
	}
}
