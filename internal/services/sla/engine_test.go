package sla

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
	"github.com/opsdesk-io/opsdesk-ce/internal/repository"
)

const testActor = int64(99)

func TestResolveBudgetsPrefersSeverityTarget(t *testing.T) {
	engine, policies, _ := newTestEngine(t)
	ctx := context.Background()

	policy := seedPolicy(t, policies, models.SLAPolicy{
		Name: "standard", ResponseMinutes: 60, ResolutionMinutes: 480,
	})
	policies.AddTarget(models.SLATarget{
		PolicyID: policy.ID, Severity: models.SeverityCritical,
		ResponseMinutes: 15, ResolutionMinutes: 120,
	})

	critical, err := engine.ResolveBudgets(ctx, &policy, models.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, Budgets{ResponseMinutes: 15, ResolutionMinutes: 120}, critical)

	// No target row for this severity: policy defaults apply.
	low, err := engine.ResolveBudgets(ctx, &policy, models.SeverityLow)
	require.NoError(t, err)
	assert.Equal(t, Budgets{ResponseMinutes: 60, ResolutionMinutes: 480}, low)
}

func TestResolveBudgetsFallsBackPerField(t *testing.T) {
	engine, policies, _ := newTestEngine(t)
	ctx := context.Background()

	policy := seedPolicy(t, policies, models.SLAPolicy{
		Name: "resolution-only-target", ResponseMinutes: 60, ResolutionMinutes: 480,
	})
	policies.AddTarget(models.SLATarget{
		PolicyID: policy.ID, Severity: models.SeverityHigh, ResolutionMinutes: 240,
	})

	b, err := engine.ResolveBudgets(ctx, &policy, models.SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, Budgets{ResponseMinutes: 60, ResolutionMinutes: 240}, b)
}

func TestDueDatesFlatAddition(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	responseDue, due := DueDates(base, Budgets{ResponseMinutes: 30, ResolutionMinutes: 120})
	require.NotNil(t, responseDue)
	require.NotNil(t, due)
	assert.Equal(t, base.Add(30*time.Minute), *responseDue)
	assert.Equal(t, base.Add(120*time.Minute), *due)

	responseDue, due = DueDates(base, Budgets{ResolutionMinutes: 120})
	assert.Nil(t, responseDue)
	require.NotNil(t, due)
}

func TestOnTicketCreatedSetsDueDates(t *testing.T) {
	engine, policies, tickets := newTestEngine(t)
	ctx := context.Background()

	policy := seedPolicy(t, policies, models.SLAPolicy{
		Name: "critical", AppliesToSeverity: models.SeverityCritical,
		ResponseMinutes: 30, ResolutionMinutes: 120,
	})

	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ticket := &models.Ticket{
		OrganizationID: 1, Type: models.TicketIncident, Status: models.StatusNew,
		Priority: models.PriorityCritical, CreatedAt: created,
	}
	tickets.AddTicket(ticket)

	require.NoError(t, engine.OnTicketCreated(ctx, ticket, testActor))

	stored, err := tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PolicyID)
	assert.Equal(t, policy.ID, *stored.PolicyID)
	require.NotNil(t, stored.ResponseDueAt)
	require.NotNil(t, stored.DueAt)
	assert.Equal(t, created.Add(30*time.Minute), *stored.ResponseDueAt)
	assert.Equal(t, created.Add(120*time.Minute), *stored.DueAt)
}

func TestOnTicketCreatedNoMatchLeavesTicketWithoutSLA(t *testing.T) {
	engine, _, tickets := newTestEngine(t)
	ctx := context.Background()

	ticket := &models.Ticket{
		OrganizationID: 1, Type: models.TicketIncident, Status: models.StatusNew,
		Priority: models.PriorityLow, CreatedAt: time.Now().UTC(),
	}
	tickets.AddTicket(ticket)

	require.NoError(t, engine.OnTicketCreated(ctx, ticket, testActor))

	stored, err := tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PolicyID)
	assert.Nil(t, stored.ResponseDueAt)
	assert.Nil(t, stored.DueAt)
}

func TestOnTicketChangedRecomputesOnlyWhenPolicyChanges(t *testing.T) {
	engine, policies, tickets := newTestEngine(t)
	ctx := context.Background()

	network := seedPolicy(t, policies, models.SLAPolicy{
		Name: "network", IncidentCategory: "network",
		ResponseMinutes: 30, ResolutionMinutes: 240,
	})
	hardware := seedPolicy(t, policies, models.SLAPolicy{
		Name: "hardware", IncidentCategory: "hardware",
		ResponseMinutes: 60, ResolutionMinutes: 480,
	})

	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ticket := &models.Ticket{
		OrganizationID: 1, Type: models.TicketIncident, Status: models.StatusNew,
		Category: "network", Priority: models.PriorityMedium, CreatedAt: created,
	}
	tickets.AddTicket(ticket)
	require.NoError(t, engine.OnTicketCreated(ctx, ticket, testActor))
	require.Equal(t, network.ID, *ticket.PolicyID)

	// Same resolution outcome: nothing moves.
	firstDue := *ticket.DueAt
	require.NoError(t, engine.OnTicketCategoryOrPriorityChanged(ctx, ticket, testActor))
	assert.Equal(t, firstDue, *ticket.DueAt)

	// Category edit lands on a different policy: dates recomputed from creation.
	ticket.Category = "hardware"
	require.NoError(t, engine.OnTicketCategoryOrPriorityChanged(ctx, ticket, testActor))
	assert.Equal(t, hardware.ID, *ticket.PolicyID)
	assert.Equal(t, created.Add(480*time.Minute), *ticket.DueAt)
}

func TestOnTicketChangedClearsWhenNoPolicyMatches(t *testing.T) {
	engine, policies, tickets := newTestEngine(t)
	ctx := context.Background()

	seedPolicy(t, policies, models.SLAPolicy{
		Name: "network", IncidentCategory: "network",
		ResponseMinutes: 30, ResolutionMinutes: 240,
	})

	ticket := &models.Ticket{
		OrganizationID: 1, Type: models.TicketIncident, Status: models.StatusNew,
		Category: "network", Priority: models.PriorityMedium, CreatedAt: time.Now().UTC(),
	}
	tickets.AddTicket(ticket)
	require.NoError(t, engine.OnTicketCreated(ctx, ticket, testActor))
	require.NotNil(t, ticket.PolicyID)

	ticket.Category = "facilities"
	require.NoError(t, engine.OnTicketCategoryOrPriorityChanged(ctx, ticket, testActor))
	assert.Nil(t, ticket.PolicyID)
	assert.Nil(t, ticket.DueAt)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	policies := repository.NewMemoryPolicyRepository()
	tickets := repository.NewMemoryTicketRepository()
	engine := NewEngine(policies, tickets, WithClock(clock))
	ctx := context.Background()

	due := now.Add(2 * time.Hour)
	responseDue := now.Add(30 * time.Minute)
	ticket := &models.Ticket{
		OrganizationID: 1, Type: models.TicketIncident, Status: models.StatusInProgress,
		ResponseDueAt: &responseDue, DueAt: &due, CreatedAt: now,
	}
	tickets.AddTicket(ticket)

	applied, err := engine.Pause(ctx, ticket.ID, testActor)
	require.NoError(t, err)
	assert.True(t, applied)

	// Second pause is a no-op so the span is never double-counted.
	applied, err = engine.Pause(ctx, ticket.ID, testActor)
	require.NoError(t, err)
	assert.False(t, applied)

	now = now.Add(45 * time.Minute)
	minutes, applied, err := engine.Resume(ctx, ticket.ID, testActor)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 45, minutes)

	stored, err := tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PausedAt)
	assert.Equal(t, 45, stored.PauseTotalMinutes)
	assert.Equal(t, due.Add(45*time.Minute), *stored.DueAt)
	assert.Equal(t, responseDue.Add(45*time.Minute), *stored.ResponseDueAt)

	// Resume while running is a no-op.
	minutes, applied, err = engine.Resume(ctx, ticket.ID, testActor)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Zero(t, minutes)
}

func TestPauseResumeImmediateLeavesDatesUnchanged(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	tickets := repository.NewMemoryTicketRepository()
	engine := NewEngine(repository.NewMemoryPolicyRepository(), tickets, WithClock(clock))
	ctx := context.Background()

	due := now.Add(2 * time.Hour)
	ticket := &models.Ticket{
		OrganizationID: 1, Type: models.TicketIncident, Status: models.StatusInProgress,
		DueAt: &due, CreatedAt: now,
	}
	tickets.AddTicket(ticket)

	_, err := engine.Pause(ctx, ticket.ID, testActor)
	require.NoError(t, err)
	minutes, applied, err := engine.Resume(ctx, ticket.ID, testActor)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Zero(t, minutes)

	stored, err := tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, due, *stored.DueAt)
	assert.Zero(t, stored.PauseTotalMinutes)
}
