package main

import (
	"context"
	"log"

	"github.com/jmoiron/sqlx"

	"github.com/opsdesk-io/opsdesk-ce/internal/api"
	"github.com/opsdesk-io/opsdesk-ce/internal/cache"
	"github.com/opsdesk-io/opsdesk-ce/internal/config"
	"github.com/opsdesk-io/opsdesk-ce/internal/database"
	"github.com/opsdesk-io/opsdesk-ce/internal/notifications"
	"github.com/opsdesk-io/opsdesk-ce/internal/repository"
	"github.com/opsdesk-io/opsdesk-ce/internal/services/breach"
	"github.com/opsdesk-io/opsdesk-ce/internal/services/compliance"
	"github.com/opsdesk-io/opsdesk-ce/internal/services/escalation"
	"github.com/opsdesk-io/opsdesk-ce/internal/services/scheduler"
)

// App holds the wired engine components for a process run.
type App struct {
	DB         *sqlx.DB
	Cache      *cache.Cache
	Detector   *breach.Detector
	Ladder     *escalation.Ladder
	Aggregator *compliance.Aggregator
	Scheduler  *scheduler.Service
	API        *api.Server
}

// buildApp opens the shared resources and wires every service.
func buildApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	db, err := database.Open(ctx, database.Options{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	redisCache := openCache(ctx, cfg, logger)

	policyRepo := repository.NewSQLPolicyRepository(db.DB)
	ticketRepo := repository.NewSQLTicketRepository(db.DB)
	breachRepo := repository.NewSQLBreachRepository(db.DB)
	metricRepo := repository.NewSQLMetricRepository(db)
	directoryRepo := repository.NewSQLDirectoryRepository(db.DB)

	var dispatcher notifications.Dispatcher
	if cfg.Email.Enabled {
		dispatcher = notifications.NewSMTPDispatcher(&cfg.Email)
	} else {
		dispatcher = notifications.NewLogDispatcher(logger)
	}

	detector := breach.NewDetector(ticketRepo, breachRepo, directoryRepo, dispatcher,
		breach.WithLogger(logger),
		breach.WithActor(cfg.SLA.SystemActorID),
	)
	ladder := escalation.NewLadder(policyRepo, ticketRepo, directoryRepo, dispatcher,
		escalation.WithLogger(logger),
		escalation.WithActor(cfg.SLA.SystemActorID),
	)
	aggregatorOpts := []compliance.Option{
		compliance.WithLogger(logger),
		compliance.WithTarget(cfg.SLA.ComplianceTarget),
	}
	if redisCache != nil {
		aggregatorOpts = append(aggregatorOpts, compliance.WithSnapshotStore(redisCache))
	}
	aggregator := compliance.NewAggregator(ticketRepo, breachRepo, metricRepo, aggregatorOpts...)

	schedulerOpts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithWarningWindow(cfg.SLA.WarningWindow),
		scheduler.WithJobs(scheduler.JobsFromSchedules(
			cfg.Scheduler.BreachSweep,
			cfg.Scheduler.WarningSweep,
			cfg.Scheduler.EscalationSweep,
			cfg.Scheduler.MonthlyAggregation,
		)),
	}
	if redisCache != nil {
		schedulerOpts = append(schedulerOpts, scheduler.WithHealthStore(redisCache))
	}
	sched := scheduler.NewService(detector, ladder, aggregator, schedulerOpts...)

	server := api.NewServer(policyRepo, breachRepo, metricRepo,
		api.WithLogger(logger),
		api.WithJobLister(sched),
	)

	return &App{
		DB:         db,
		Cache:      redisCache,
		Detector:   detector,
		Ladder:     ladder,
		Aggregator: aggregator,
		Scheduler:  sched,
		API:        server,
	}, nil
}

// Close releases the shared resources.
func (a *App) Close() {
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
