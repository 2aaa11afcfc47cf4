// Package repository provides data access for the SLA engine. Every
// interface ships a SQL implementation and an in-memory implementation used
// as a test double.
package repository

import (
	"context"
	"time"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// PolicyRepository is read/write access to the SLA policy catalog.
// The engine itself only reads; the admin API writes.
type PolicyRepository interface {
	ActivePoliciesFor(ctx context.Context, organizationID int64) ([]models.SLAPolicy, error)
	GetPolicy(ctx context.Context, id int64) (*models.SLAPolicy, error)
	ListPolicies(ctx context.Context, organizationID int64, activeOnly bool) ([]models.SLAPolicy, error)
	CreatePolicy(ctx context.Context, policy *models.SLAPolicy) error

	TargetsFor(ctx context.Context, policyID int64) ([]models.SLATarget, error)
	EscalationLevelsFor(ctx context.Context, policyID int64) ([]models.SLAEscalation, error)
	// ActiveEscalations returns every ladder rung of every active policy,
	// ordered by (policy, level), for the escalation sweep.
	ActiveEscalations(ctx context.Context) ([]models.SLAEscalation, error)
}

// TicketRepository is the engine's narrow view of the ticket store. The
// conditional mutators return whether the write applied; a false return means
// another writer already satisfied the invariant and callers treat it as a
// successful no-op.
type TicketRepository interface {
	GetTicket(ctx context.Context, id int64) (*models.Ticket, error)
	FindOpenTicketsWithPolicy(ctx context.Context, policyID int64) ([]*models.Ticket, error)
	// FindOverdueOpenTickets returns open, unpaused tickets whose response or
	// resolution due date is before asOf and whose matching breach flag is
	// still unset.
	FindOverdueOpenTickets(ctx context.Context, asOf time.Time) ([]*models.Ticket, error)
	// FindDueSoonTickets returns open, unpaused, unbreached tickets whose
	// resolution due date falls within (asOf, asOf+window].
	FindDueSoonTickets(ctx context.Context, asOf time.Time, window time.Duration) ([]*models.Ticket, error)

	// SetDueDates binds a resolved policy and its computed due dates to a
	// ticket (nil values clear the fields).
	SetDueDates(ctx context.Context, ticketID int64, policyID *int64, responseDueAt, dueAt *time.Time, actorID int64) error

	MarkResponseBreached(ctx context.Context, ticketID int64, actorID int64) (bool, error)
	MarkResolutionBreached(ctx context.Context, ticketID int64, actorID int64) (bool, error)
	MarkOLABreached(ctx context.Context, ticketID int64, actorID int64) (bool, error)
	MarkUCBreached(ctx context.Context, ticketID int64, actorID int64) (bool, error)

	// PauseClock stops the SLA clock; a no-op if already paused.
	PauseClock(ctx context.Context, ticketID int64, at time.Time, actorID int64) (bool, error)
	// ResumeClock restarts the clock, accumulates the paused minutes and
	// shifts every set due date forward by the same amount. Returns the
	// minutes that were credited.
	ResumeClock(ctx context.Context, ticketID int64, at time.Time, actorID int64) (int, bool, error)

	// RaiseEscalation advances the ticket to the given level and priority.
	// Guarded so the level can only increase.
	RaiseEscalation(ctx context.Context, ticketID int64, level, newPriority int, at time.Time, actorID int64) (bool, error)

	// FloorPriorityForBreachedRequests bumps every breached, still-open
	// service request to the top priority. Returns the number touched.
	FloorPriorityForBreachedRequests(ctx context.Context, actorID int64) (int64, error)

	CountTicketsCreated(ctx context.Context, organizationID int64, from, to time.Time) (int, error)
	OrganizationIDs(ctx context.Context) ([]int64, error)
}

// BreachRepository stores breach records. RecordBreach must be atomic
// insert-if-absent per (ticket, breach type).
type BreachRepository interface {
	RecordBreach(ctx context.Context, breach *models.SLABreach) (bool, error)
	CountDistinctBreachedTickets(ctx context.Context, organizationID int64, from, to time.Time) (int, error)
	ListBreaches(ctx context.Context, organizationID int64, acknowledged *bool, limit int) ([]models.SLABreach, error)
	AcknowledgeBreach(ctx context.Context, id int64, actorID int64) (bool, error)
}

// MetricRepository stores monthly compliance rollups.
type MetricRepository interface {
	UpsertMonthly(ctx context.Context, metric *models.SLAMetric) error
	GetMonthly(ctx context.Context, organizationID int64, year, month int) (*models.SLAMetric, error)
	ListForOrganization(ctx context.Context, organizationID int64, limit int) ([]models.SLAMetric, error)
}

// DirectoryRepository resolves escalation recipients.
type DirectoryRepository interface {
	UserByID(ctx context.Context, id int64) (*models.User, error)
	TeamMembers(ctx context.Context, teamID int64) ([]models.User, error)
	OrganizationManagers(ctx context.Context, organizationID int64) ([]models.User, error)
}
