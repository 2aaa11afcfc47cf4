package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

const actor = int64(1)

func openTicket(due time.Time) *models.Ticket {
	return &models.Ticket{
		OrganizationID: 1,
		Type:           models.TicketIncident,
		Status:         models.StatusInProgress,
		Priority:       models.PriorityMedium,
		DueAt:          &due,
		CreatedAt:      due.Add(-2 * time.Hour),
	}
}

func TestMarkResolutionBreachedIsMonotonic(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	ticket := openTicket(now.Add(-time.Hour))
	repo.AddTicket(ticket)

	applied, err := repo.MarkResolutionBreached(ctx, ticket.ID, actor)
	require.NoError(t, err)
	assert.True(t, applied)

	// The guard refuses a second write; the first writer already satisfied it.
	applied, err = repo.MarkResolutionBreached(ctx, ticket.ID, actor)
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := repo.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, stored.Breached)
}

func TestMarkBreachedRefusesPausedAndTerminal(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	paused := openTicket(now.Add(-time.Hour))
	pausedAt := now.Add(-10 * time.Minute)
	paused.PausedAt = &pausedAt
	repo.AddTicket(paused)

	closed := openTicket(now.Add(-time.Hour))
	closed.Status = models.StatusClosed
	repo.AddTicket(closed)

	applied, err := repo.MarkResolutionBreached(ctx, paused.ID, actor)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = repo.MarkResolutionBreached(ctx, closed.ID, actor)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestRaiseEscalationOnlyIncreases(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	ticket := openTicket(now.Add(time.Hour))
	repo.AddTicket(ticket)

	applied, err := repo.RaiseEscalation(ctx, ticket.ID, 2, models.PriorityHigh, now, actor)
	require.NoError(t, err)
	assert.True(t, applied)

	// A stale sweep trying to set a lower (or equal) level loses.
	applied, err = repo.RaiseEscalation(ctx, ticket.ID, 1, models.PriorityCritical, now, actor)
	require.NoError(t, err)
	assert.False(t, applied)
	applied, err = repo.RaiseEscalation(ctx, ticket.ID, 2, models.PriorityCritical, now, actor)
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := repo.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.EscalationLevel)
	assert.Equal(t, models.PriorityHigh, stored.Priority)
}

func TestResumeClockShiftsAllDueDates(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	ticket := openTicket(now.Add(time.Hour))
	responseDue := now.Add(15 * time.Minute)
	olaDue := now.Add(30 * time.Minute)
	ticket.ResponseDueAt = &responseDue
	ticket.OLADueAt = &olaDue
	repo.AddTicket(ticket)

	applied, err := repo.PauseClock(ctx, ticket.ID, now, actor)
	require.NoError(t, err)
	require.True(t, applied)

	minutes, applied, err := repo.ResumeClock(ctx, ticket.ID, now.Add(20*time.Minute), actor)
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, 20, minutes)

	stored, err := repo.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour+20*time.Minute), *stored.DueAt)
	assert.Equal(t, responseDue.Add(20*time.Minute), *stored.ResponseDueAt)
	assert.Equal(t, olaDue.Add(20*time.Minute), *stored.OLADueAt)
	assert.Nil(t, stored.UCDueAt)
	assert.Equal(t, 20, stored.PauseTotalMinutes)
}

func TestResumeClockClampsNegativeElapsed(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	ticket := openTicket(now.Add(time.Hour))
	repo.AddTicket(ticket)

	_, err := repo.PauseClock(ctx, ticket.ID, now, actor)
	require.NoError(t, err)

	// Resume with a clock that went backwards credits zero, never negative.
	minutes, applied, err := repo.ResumeClock(ctx, ticket.ID, now.Add(-time.Minute), actor)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Zero(t, minutes)

	stored, err := repo.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.PauseTotalMinutes)
	assert.Equal(t, now.Add(time.Hour), *stored.DueAt)
}

func TestFindOverdueOpenTicketsFilters(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	overdue := openTicket(now.Add(-time.Minute))
	repo.AddTicket(overdue)

	future := openTicket(now.Add(time.Minute))
	repo.AddTicket(future)

	alreadyBreached := openTicket(now.Add(-time.Hour))
	alreadyBreached.Breached = true
	repo.AddTicket(alreadyBreached)

	got, err := repo.FindOverdueOpenTickets(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].ID)
}

func TestFindDueSoonTicketsWindow(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	inWindow := openTicket(now.Add(30 * time.Minute))
	repo.AddTicket(inWindow)
	atBoundary := openTicket(now.Add(time.Hour))
	repo.AddTicket(atBoundary)
	outside := openTicket(now.Add(61 * time.Minute))
	repo.AddTicket(outside)
	past := openTicket(now.Add(-time.Minute))
	repo.AddTicket(past)

	got, err := repo.FindDueSoonTickets(ctx, now, time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, inWindow.ID, got[0].ID)
	assert.Equal(t, atBoundary.ID, got[1].ID)
}
