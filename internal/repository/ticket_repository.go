package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opsdesk-io/opsdesk-ce/internal/database"
	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// SQLTicketRepository gives the engine its narrow view of the ticket store.
// All mutators touch only the engine-owned temporal columns and are guarded
// by the column's invariant, never a whole-row overwrite.
type SQLTicketRepository struct {
	db *sql.DB
}

// NewSQLTicketRepository wires a repository around the shared connection.
func NewSQLTicketRepository(db *sql.DB) *SQLTicketRepository {
	return &SQLTicketRepository{db: db}
}

// openCondition excludes tickets in a terminal status for their type.
const openCondition = `((ticket_type = 'incident' AND status NOT IN ('resolved', 'closed'))
	OR (ticket_type = 'service_request' AND status NOT IN ('fulfilled', 'rejected', 'closed')))`

const ticketColumns = `id, organization_id, ticket_type, ticket_number, title, status,
	category, service_id, service_category, priority, impact, urgency,
	requester_id, requester_department, assigned_to_id, assigned_team_id,
	sla_policy_id, sla_response_due_at, sla_due_at, sla_response_breached, sla_breached,
	sla_paused_at, sla_pause_total_minutes, escalation_level, escalated_at,
	ola_due_at, ola_breached, uc_due_at, uc_breached, created_at, updated_at`

func (r *SQLTicketRepository) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		SELECT %s FROM ticket WHERE id = $1
	`, ticketColumns))
	ticket, err := scanTicket(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %d: %w", id, err)
	}
	return ticket, nil
}

func (r *SQLTicketRepository) FindOpenTicketsWithPolicy(ctx context.Context, policyID int64) ([]*models.Ticket, error) {
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		SELECT %s FROM ticket
		WHERE sla_policy_id = $1 AND %s
		ORDER BY created_at
	`, ticketColumns, openCondition))
	return r.queryTickets(ctx, query, policyID)
}

func (r *SQLTicketRepository) FindOverdueOpenTickets(ctx context.Context, asOf time.Time) ([]*models.Ticket, error) {
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		SELECT %s FROM ticket
		WHERE sla_paused_at IS NULL
		  AND %s
		  AND ((sla_response_due_at IS NOT NULL AND sla_response_due_at < $1 AND sla_response_breached = FALSE)
		    OR (sla_due_at IS NOT NULL AND sla_due_at < $2 AND sla_breached = FALSE)
		    OR (ola_due_at IS NOT NULL AND ola_due_at < $3 AND ola_breached = FALSE)
		    OR (uc_due_at IS NOT NULL AND uc_due_at < $4 AND uc_breached = FALSE))
		ORDER BY sla_due_at
	`, ticketColumns, openCondition))
	return r.queryTickets(ctx, query, asOf, asOf, asOf, asOf)
}

func (r *SQLTicketRepository) FindDueSoonTickets(ctx context.Context, asOf time.Time, window time.Duration) ([]*models.Ticket, error) {
	until := asOf.Add(window)
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		SELECT %s FROM ticket
		WHERE sla_paused_at IS NULL
		  AND %s
		  AND sla_due_at IS NOT NULL
		  AND sla_breached = FALSE
		  AND sla_due_at > $1 AND sla_due_at <= $2
		ORDER BY sla_due_at
	`, ticketColumns, openCondition))
	return r.queryTickets(ctx, query, asOf, until)
}

func (r *SQLTicketRepository) SetDueDates(ctx context.Context, ticketID int64, policyID *int64, responseDueAt, dueAt *time.Time, actorID int64) error {
	query := database.ConvertPlaceholders(`
		UPDATE ticket
		SET sla_policy_id = $1,
		    sla_response_due_at = $2,
		    sla_due_at = $3,
		    updated_at = CURRENT_TIMESTAMP,
		    updated_by = $4
		WHERE id = $5
	`)
	if _, err := r.db.ExecContext(ctx, query, policyID, responseDueAt, dueAt, actorID, ticketID); err != nil {
		return fmt.Errorf("set due dates for ticket %d: %w", ticketID, err)
	}
	return nil
}

// markBreached flips one breach flag with the full guard re-checked in the
// write itself: flag still false, clock not paused, status not terminal.
func (r *SQLTicketRepository) markBreached(ctx context.Context, column string, ticketID, actorID int64) (bool, error) {
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		UPDATE ticket
		SET %s = TRUE,
		    updated_at = CURRENT_TIMESTAMP,
		    updated_by = $1
		WHERE id = $2
		  AND %s = FALSE
		  AND sla_paused_at IS NULL
		  AND %s
	`, column, column, openCondition))
	res, err := r.db.ExecContext(ctx, query, actorID, ticketID)
	if err != nil {
		return false, fmt.Errorf("mark %s for ticket %d: %w", column, ticketID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *SQLTicketRepository) MarkResponseBreached(ctx context.Context, ticketID int64, actorID int64) (bool, error) {
	return r.markBreached(ctx, "sla_response_breached", ticketID, actorID)
}

func (r *SQLTicketRepository) MarkResolutionBreached(ctx context.Context, ticketID int64, actorID int64) (bool, error) {
	return r.markBreached(ctx, "sla_breached", ticketID, actorID)
}

func (r *SQLTicketRepository) MarkOLABreached(ctx context.Context, ticketID int64, actorID int64) (bool, error) {
	return r.markBreached(ctx, "ola_breached", ticketID, actorID)
}

func (r *SQLTicketRepository) MarkUCBreached(ctx context.Context, ticketID int64, actorID int64) (bool, error) {
	return r.markBreached(ctx, "uc_breached", ticketID, actorID)
}

func (r *SQLTicketRepository) PauseClock(ctx context.Context, ticketID int64, at time.Time, actorID int64) (bool, error) {
	query := database.ConvertPlaceholders(`
		UPDATE ticket
		SET sla_paused_at = $1,
		    updated_at = CURRENT_TIMESTAMP,
		    updated_by = $2
		WHERE id = $3 AND sla_paused_at IS NULL
	`)
	res, err := r.db.ExecContext(ctx, query, at, actorID, ticketID)
	if err != nil {
		return false, fmt.Errorf("pause clock for ticket %d: %w", ticketID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *SQLTicketRepository) ResumeClock(ctx context.Context, ticketID int64, at time.Time, actorID int64) (int, bool, error) {
	ticket, err := r.GetTicket(ctx, ticketID)
	if err != nil {
		return 0, false, err
	}
	if ticket == nil || ticket.PausedAt == nil {
		return 0, false, nil
	}

	pausedAt := *ticket.PausedAt
	elapsed := int(at.Sub(pausedAt).Minutes())
	if elapsed < 0 {
		elapsed = 0
	}
	shift := time.Duration(elapsed) * time.Minute

	newResponseDue := shiftTime(ticket.ResponseDueAt, shift)
	newDue := shiftTime(ticket.DueAt, shift)
	newOLADue := shiftTime(ticket.OLADueAt, shift)
	newUCDue := shiftTime(ticket.UCDueAt, shift)

	// Compare-and-swap on the pause timestamp we read: a concurrent resume
	// (or re-pause) changes it and this update becomes a no-op.
	query := database.ConvertPlaceholders(`
		UPDATE ticket
		SET sla_paused_at = NULL,
		    sla_pause_total_minutes = sla_pause_total_minutes + $1,
		    sla_response_due_at = $2,
		    sla_due_at = $3,
		    ola_due_at = $4,
		    uc_due_at = $5,
		    updated_at = CURRENT_TIMESTAMP,
		    updated_by = $6
		WHERE id = $7 AND sla_paused_at = $8
	`)
	res, err := r.db.ExecContext(ctx, query, elapsed, newResponseDue, newDue, newOLADue, newUCDue, actorID, ticketID, pausedAt)
	if err != nil {
		return 0, false, fmt.Errorf("resume clock for ticket %d: %w", ticketID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected == 0 {
		return 0, false, nil
	}
	return elapsed, true, nil
}

func (r *SQLTicketRepository) RaiseEscalation(ctx context.Context, ticketID int64, level, newPriority int, at time.Time, actorID int64) (bool, error) {
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		UPDATE ticket
		SET escalation_level = $1,
		    escalated_at = $2,
		    priority = $3,
		    updated_at = CURRENT_TIMESTAMP,
		    updated_by = $4
		WHERE id = $5
		  AND escalation_level < $6
		  AND %s
	`, openCondition))
	res, err := r.db.ExecContext(ctx, query, level, at, newPriority, actorID, ticketID, level)
	if err != nil {
		return false, fmt.Errorf("raise escalation for ticket %d: %w", ticketID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *SQLTicketRepository) FloorPriorityForBreachedRequests(ctx context.Context, actorID int64) (int64, error) {
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		UPDATE ticket
		SET priority = $1,
		    updated_at = CURRENT_TIMESTAMP,
		    updated_by = $2
		WHERE ticket_type = 'service_request'
		  AND sla_breached = TRUE
		  AND priority > $3
		  AND %s
	`, openCondition))
	res, err := r.db.ExecContext(ctx, query, models.PriorityCritical, actorID, models.PriorityCritical)
	if err != nil {
		return 0, fmt.Errorf("floor breached request priority: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLTicketRepository) CountTicketsCreated(ctx context.Context, organizationID int64, from, to time.Time) (int, error) {
	query := database.ConvertPlaceholders(`
		SELECT COUNT(*) FROM ticket
		WHERE organization_id = $1 AND created_at >= $2 AND created_at < $3
	`)
	var count int
	if err := r.db.QueryRowContext(ctx, query, organizationID, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tickets created: %w", err)
	}
	return count, nil
}

func (r *SQLTicketRepository) OrganizationIDs(ctx context.Context) ([]int64, error) {
	query := `SELECT DISTINCT organization_id FROM ticket ORDER BY organization_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan organization id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLTicketRepository) queryTickets(ctx context.Context, query string, args ...any) ([]*models.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

func scanTicket(row rowScanner) (*models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(
		&t.ID, &t.OrganizationID, &t.Type, &t.TicketNumber, &t.Title, &t.Status,
		&t.Category, &t.ServiceID, &t.ServiceCategory, &t.Priority, &t.Impact, &t.Urgency,
		&t.RequesterID, &t.RequesterDepartment, &t.AssignedToID, &t.AssignedTeamID,
		&t.PolicyID, &t.ResponseDueAt, &t.DueAt, &t.ResponseBreached, &t.Breached,
		&t.PausedAt, &t.PauseTotalMinutes, &t.EscalationLevel, &t.EscalatedAt,
		&t.OLADueAt, &t.OLABreached, &t.UCDueAt, &t.UCBreached, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func shiftTime(t *time.Time, by time.Duration) *time.Time {
	if t == nil {
		return nil
	}
	shifted := t.Add(by)
	return &shifted
}
