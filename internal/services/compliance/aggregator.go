// Package compliance rolls breach counts up into monthly per-organization
// compliance metrics.
package compliance

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
	"github.com/opsdesk-io/opsdesk-ce/internal/repository"
)

// DefaultTarget is the compliance percentage an organization must meet when
// no target is configured.
const DefaultTarget = 95.0

// SnapshotStore receives the latest rollups for cheap dashboard reads.
// Writes are best effort.
type SnapshotStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Aggregator recomputes SLAMetric rows. Reruns are safe: the rollup is an
// upsert keyed (organization, year, month).
type Aggregator struct {
	tickets   repository.TicketRepository
	breaches  repository.BreachRepository
	metrics   repository.MetricRepository
	snapshots SnapshotStore
	logger    *log.Logger
	clock     func() time.Time
	target    float64
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(a *Aggregator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithTarget sets the compliance target percentage.
func WithTarget(target float64) Option {
	return func(a *Aggregator) {
		if target > 0 {
			a.target = target
		}
	}
}

// WithSnapshotStore enables best-effort snapshot caching.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(a *Aggregator) {
		a.snapshots = store
	}
}

// NewAggregator creates a compliance aggregator.
func NewAggregator(tickets repository.TicketRepository, breaches repository.BreachRepository,
	metrics repository.MetricRepository, opts ...Option) *Aggregator {
	a := &Aggregator{
		tickets:  tickets,
		breaches: breaches,
		metrics:  metrics,
		logger:   log.Default(),
		clock:    func() time.Time { return time.Now().UTC() },
		target:   DefaultTarget,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run recomputes the rollup for the current month for every organization
// with tickets. Returns the number of organizations processed.
func (a *Aggregator) Run(ctx context.Context) (int, error) {
	now := a.clock()
	return a.RunMonth(ctx, now.Year(), int(now.Month()))
}

// RunMonth recomputes the rollup for one (year, month) across organizations.
func (a *Aggregator) RunMonth(ctx context.Context, year, month int) (int, error) {
	orgs, err := a.tickets.OrganizationIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("monthly aggregation: %w", err)
	}

	processed := 0
	for _, orgID := range orgs {
		metric, err := a.aggregateOrganization(ctx, orgID, year, month)
		if err != nil {
			a.logger.Printf("compliance: organization %d: %v", orgID, err)
			continue
		}
		processed++
		a.cacheSnapshot(ctx, metric)
	}
	return processed, nil
}

func (a *Aggregator) aggregateOrganization(ctx context.Context, orgID int64, year, month int) (*models.SLAMetric, error) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	total, err := a.tickets.CountTicketsCreated(ctx, orgID, from, to)
	if err != nil {
		return nil, err
	}
	breached, err := a.breaches.CountDistinctBreachedTickets(ctx, orgID, from, to)
	if err != nil {
		return nil, err
	}

	metric := &models.SLAMetric{
		OrganizationID:       orgID,
		Year:                 year,
		Month:                month,
		TotalTickets:         total,
		BreachedTickets:      breached,
		CompliancePercentage: Percentage(total, breached),
		TargetCompliance:     a.target,
	}
	metric.IsCompliant = metric.CompliancePercentage >= a.target

	if err := a.metrics.UpsertMonthly(ctx, metric); err != nil {
		return nil, err
	}
	a.logger.Printf("compliance: organization %d %04d-%02d: %d tickets, %d breached, %.1f%%",
		orgID, year, month, total, breached, metric.CompliancePercentage)
	return metric, nil
}

func (a *Aggregator) cacheSnapshot(ctx context.Context, metric *models.SLAMetric) {
	if a.snapshots == nil {
		return
	}
	key := fmt.Sprintf("compliance:%d:latest", metric.OrganizationID)
	if err := a.snapshots.Set(ctx, key, metric, 48*time.Hour); err != nil {
		a.logger.Printf("compliance: snapshot cache: %v", err)
	}
}

// Percentage computes the compliance percentage; a month with no tickets is
// fully compliant.
func Percentage(total, breached int) float64 {
	if total <= 0 {
		return 100.0
	}
	return float64(total-breached) / float64(total) * 100.0
}
