package breach

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
	"github.com/opsdesk-io/opsdesk-ce/internal/notifications"
	"github.com/opsdesk-io/opsdesk-ce/internal/repository"
)

type fixture struct {
	tickets   *repository.MemoryTicketRepository
	breaches  *repository.MemoryBreachRepository
	directory *repository.MemoryDirectoryRepository
	notifier  *notifications.MemoryDispatcher
	detector  *Detector
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tickets:   repository.NewMemoryTicketRepository(),
		breaches:  repository.NewMemoryBreachRepository(),
		directory: repository.NewMemoryDirectoryRepository(),
		notifier:  notifications.NewMemoryDispatcher(),
		now:       time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.detector = NewDetector(f.tickets, f.breaches, f.directory, f.notifier,
		WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) addTicket(t *testing.T, ticket *models.Ticket) *models.Ticket {
	t.Helper()
	if ticket.OrganizationID == 0 {
		ticket.OrganizationID = 1
	}
	if ticket.Status == "" {
		ticket.Status = models.StatusInProgress
	}
	if ticket.Type == "" {
		ticket.Type = models.TicketIncident
	}
	f.tickets.AddTicket(ticket)
	return ticket
}

func TestSweepMarksResolutionBreachOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := f.now.Add(-5 * time.Minute)
	policyID := int64(3)
	ticket := f.addTicket(t, &models.Ticket{
		TicketNumber: "INC-1", PolicyID: &policyID, DueAt: &due,
		CreatedAt: f.now.Add(-2 * time.Hour),
	})

	stats, err := f.detector.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Scanned)
	assert.Equal(t, 1, stats.ResolutionBreaches)
	assert.Zero(t, stats.ResponseBreaches)

	stored, err := f.tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, stored.Breached)
	assert.False(t, stored.ResponseBreached)

	rows, err := f.breaches.ListBreaches(ctx, 1, nil, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.BreachResolution, rows[0].BreachType)
	assert.Equal(t, 5, rows[0].BreachDurationMinutes)
	assert.Equal(t, due, rows[0].TargetTime)

	// Second run finds nothing to do and records no duplicate row.
	stats, err = f.detector.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.ResolutionBreaches)
	rows, err = f.breaches.ListBreaches(ctx, 1, nil, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSweepTracksResponseAndResolutionSeparately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	responseDue := f.now.Add(-30 * time.Minute)
	due := f.now.Add(90 * time.Minute)
	ticket := f.addTicket(t, &models.Ticket{
		TicketNumber: "INC-2", ResponseDueAt: &responseDue, DueAt: &due,
		CreatedAt: f.now.Add(-time.Hour),
	})

	stats, err := f.detector.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ResponseBreaches)
	assert.Zero(t, stats.ResolutionBreaches)

	stored, err := f.tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, stored.ResponseBreached)
	assert.False(t, stored.Breached)

	rows, err := f.breaches.ListBreaches(ctx, 1, nil, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.BreachResponse, rows[0].BreachType)
}

func TestSweepSkipsPausedAndTerminalTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := f.now.Add(-time.Hour)
	paused := f.now.Add(-30 * time.Minute)
	f.addTicket(t, &models.Ticket{
		TicketNumber: "INC-3", DueAt: &due, PausedAt: &paused,
		CreatedAt: f.now.Add(-2 * time.Hour),
	})
	f.addTicket(t, &models.Ticket{
		TicketNumber: "INC-4", DueAt: &due, Status: models.StatusResolved,
		CreatedAt: f.now.Add(-2 * time.Hour),
	})
	f.addTicket(t, &models.Ticket{
		TicketNumber: "REQ-1", Type: models.TicketServiceRequest,
		DueAt: &due, Status: models.StatusFulfilled,
		CreatedAt: f.now.Add(-2 * time.Hour),
	})

	stats, err := f.detector.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Scanned)
	assert.Zero(t, stats.ResolutionBreaches)
}

func TestSweepSetsOLAAndUCFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	olaDue := f.now.Add(-10 * time.Minute)
	ucDue := f.now.Add(-20 * time.Minute)
	ticket := f.addTicket(t, &models.Ticket{
		TicketNumber: "INC-5", OLADueAt: &olaDue, UCDueAt: &ucDue,
		CreatedAt: f.now.Add(-time.Hour),
	})

	stats, err := f.detector.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.OLABreaches)
	assert.Equal(t, 1, stats.UCBreaches)

	stored, err := f.tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, stored.OLABreached)
	assert.True(t, stored.UCBreached)

	// Flag-only tracking: no breach rows for OLA/UC.
	rows, err := f.breaches.ListBreaches(ctx, 1, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSweepIgnoresTicketsWithoutDueDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addTicket(t, &models.Ticket{TicketNumber: "INC-6", CreatedAt: f.now.Add(-24 * time.Hour)})

	stats, err := f.detector.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Scanned)
}

func TestSweepWarningsNotifiesAssigneeAndTeamOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.directory.AddUser(models.User{ID: 10, OrganizationID: 1, Name: "Ada", Email: "ada@example.com", IsActive: true})
	f.directory.AddUser(models.User{ID: 11, OrganizationID: 1, Name: "Grace", Email: "grace@example.com", IsActive: true})
	f.directory.AddTeamMember(5, 10)
	f.directory.AddTeamMember(5, 11)

	assignee := int64(10)
	teamID := int64(5)
	due := f.now.Add(30 * time.Minute)
	f.addTicket(t, &models.Ticket{
		TicketNumber: "INC-7", Title: "mail outage",
		AssignedToID: &assignee, AssignedTeamID: &teamID, DueAt: &due,
		CreatedAt: f.now.Add(-time.Hour),
	})

	notified, err := f.detector.SweepWarnings(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, notified)

	deliveries := f.notifier.Deliveries()
	require.Len(t, deliveries, 1)
	// Assignee is also a team member: deduplicated to two distinct addresses.
	assert.Len(t, deliveries[0].Recipients, 2)
	assert.Contains(t, deliveries[0].Subject, "INC-7")
}

func TestSweepWarningsSkipsBreachedAndDistantTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assignee := int64(10)
	f.directory.AddUser(models.User{ID: 10, OrganizationID: 1, Name: "Ada", Email: "ada@example.com", IsActive: true})

	soon := f.now.Add(30 * time.Minute)
	far := f.now.Add(3 * time.Hour)
	f.addTicket(t, &models.Ticket{
		TicketNumber: "INC-8", AssignedToID: &assignee, DueAt: &soon, Breached: true,
		CreatedAt: f.now.Add(-time.Hour),
	})
	f.addTicket(t, &models.Ticket{
		TicketNumber: "INC-9", AssignedToID: &assignee, DueAt: &far,
		CreatedAt: f.now.Add(-time.Hour),
	})

	notified, err := f.detector.SweepWarnings(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, notified)
	assert.Empty(t, f.notifier.Deliveries())
}
