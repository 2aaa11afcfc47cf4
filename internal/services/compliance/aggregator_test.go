package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
	"github.com/opsdesk-io/opsdesk-ce/internal/repository"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		breached int
		want     float64
	}{
		{"no tickets is fully compliant", 0, 0, 100.0},
		{"no breaches", 10, 0, 100.0},
		{"two of ten breached", 10, 2, 80.0},
		{"all breached", 4, 4, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Percentage(tt.total, tt.breached), 0.001)
		})
	}
}

type snapshotRecorder struct {
	keys []string
}

func (s *snapshotRecorder) Set(_ context.Context, key string, _ any, _ time.Duration) error {
	s.keys = append(s.keys, key)
	return nil
}

func TestRunMonthRollsUpPerOrganization(t *testing.T) {
	tickets := repository.NewMemoryTicketRepository()
	breaches := repository.NewMemoryBreachRepository()
	metricsRepo := repository.NewMemoryMetricRepository()
	snapshots := &snapshotRecorder{}

	now := time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC)
	agg := NewAggregator(tickets, breaches, metricsRepo,
		WithClock(func() time.Time { return now }),
		WithSnapshotStore(snapshots))
	ctx := context.Background()

	inMonth := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		tickets.AddTicket(&models.Ticket{
			OrganizationID: 1, Type: models.TicketIncident, Status: models.StatusClosed,
			CreatedAt: inMonth.Add(time.Duration(i) * time.Hour),
		})
	}
	// A ticket from February must not count.
	tickets.AddTicket(&models.Ticket{
		OrganizationID: 1, Type: models.TicketIncident, Status: models.StatusClosed,
		CreatedAt: time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC),
	})

	// Two distinct breached tickets; one of them breached twice.
	for _, b := range []models.SLABreach{
		{OrganizationID: 1, TicketID: 1, BreachType: models.BreachResolution, BreachedAt: inMonth},
		{OrganizationID: 1, TicketID: 1, BreachType: models.BreachResponse, BreachedAt: inMonth},
		{OrganizationID: 1, TicketID: 2, BreachType: models.BreachResolution, BreachedAt: inMonth},
	} {
		breach := b
		_, err := breaches.RecordBreach(ctx, &breach)
		require.NoError(t, err)
	}

	processed, err := agg.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	metric, err := metricsRepo.GetMonthly(ctx, 1, 2026, 3)
	require.NoError(t, err)
	require.NotNil(t, metric)
	assert.Equal(t, 10, metric.TotalTickets)
	assert.Equal(t, 2, metric.BreachedTickets)
	assert.InDelta(t, 80.0, metric.CompliancePercentage, 0.001)
	assert.False(t, metric.IsCompliant, "80% misses the 95% target")
	assert.Equal(t, []string{"compliance:1:latest"}, snapshots.keys)
}

func TestRunMonthUpsertsOnRerun(t *testing.T) {
	tickets := repository.NewMemoryTicketRepository()
	breaches := repository.NewMemoryBreachRepository()
	metricsRepo := repository.NewMemoryMetricRepository()

	agg := NewAggregator(tickets, breaches, metricsRepo)
	ctx := context.Background()

	created := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	tickets.AddTicket(&models.Ticket{
		OrganizationID: 7, Type: models.TicketIncident, Status: models.StatusClosed, CreatedAt: created,
	})

	_, err := agg.RunMonth(ctx, 2026, 3)
	require.NoError(t, err)
	first, err := metricsRepo.GetMonthly(ctx, 7, 2026, 3)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, first.IsCompliant)

	// A breach lands, then the month is recomputed in place.
	_, err = breaches.RecordBreach(ctx, &models.SLABreach{
		OrganizationID: 7, TicketID: 1, BreachType: models.BreachResolution, BreachedAt: created,
	})
	require.NoError(t, err)

	_, err = agg.RunMonth(ctx, 2026, 3)
	require.NoError(t, err)
	second, err := metricsRepo.GetMonthly(ctx, 7, 2026, 3)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "rerun updates the same row")
	assert.Equal(t, 1, second.BreachedTickets)
	assert.InDelta(t, 0.0, second.CompliancePercentage, 0.001)
	assert.False(t, second.IsCompliant)
}

func TestRunMonthCustomTarget(t *testing.T) {
	tickets := repository.NewMemoryTicketRepository()
	breaches := repository.NewMemoryBreachRepository()
	metricsRepo := repository.NewMemoryMetricRepository()

	agg := NewAggregator(tickets, breaches, metricsRepo, WithTarget(75.0))
	ctx := context.Background()

	created := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 10; i++ {
		tickets.AddTicket(&models.Ticket{
			ID: i, OrganizationID: 3, Type: models.TicketIncident, Status: models.StatusClosed, CreatedAt: created,
		})
	}
	_, err := breaches.RecordBreach(ctx, &models.SLABreach{
		OrganizationID: 3, TicketID: 1, BreachType: models.BreachResolution, BreachedAt: created,
	})
	require.NoError(t, err)
	_, err = breaches.RecordBreach(ctx, &models.SLABreach{
		OrganizationID: 3, TicketID: 2, BreachType: models.BreachResolution, BreachedAt: created,
	})
	require.NoError(t, err)

	_, err = agg.RunMonth(ctx, 2026, 3)
	require.NoError(t, err)

	metric, err := metricsRepo.GetMonthly(ctx, 3, 2026, 3)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, metric.CompliancePercentage, 0.001)
	assert.True(t, metric.IsCompliant, "80% meets a 75% target")
	assert.InDelta(t, 75.0, metric.TargetCompliance, 0.001)
}
