package sla

import (
	"context"
	"fmt"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// OnTicketCreated resolves a policy for a freshly created ticket and sets its
// due dates relative to the creation time.
func (e *Engine) OnTicketCreated(ctx context.Context, ticket *models.Ticket, actorID int64) error {
	return e.assign(ctx, ticket, actorID, false)
}

// OnTicketCategoryOrPriorityChanged re-resolves the policy after an attribute
// edit. Due dates are recomputed only when the resolved policy actually
// changed; a target edit on the already-bound policy does not move dates that
// were set at creation.
func (e *Engine) OnTicketCategoryOrPriorityChanged(ctx context.Context, ticket *models.Ticket, actorID int64) error {
	return e.assign(ctx, ticket, actorID, true)
}

// OnTicketEnteredWaitingState pauses the SLA clock.
func (e *Engine) OnTicketEnteredWaitingState(ctx context.Context, ticket *models.Ticket, actorID int64) error {
	_, err := e.Pause(ctx, ticket.ID, actorID)
	return err
}

// OnTicketLeftWaitingState resumes the SLA clock.
func (e *Engine) OnTicketLeftWaitingState(ctx context.Context, ticket *models.Ticket, actorID int64) error {
	_, _, err := e.Resume(ctx, ticket.ID, actorID)
	return err
}

// assign runs resolve, target lookup and due-date calculation, then writes
// the temporal fields. With skipUnchanged set, a re-resolution that lands on
// the already-bound policy leaves the ticket untouched.
func (e *Engine) assign(ctx context.Context, ticket *models.Ticket, actorID int64, skipUnchanged bool) error {
	policy, err := e.ResolvePolicy(ctx, ticket)
	if err != nil {
		return err
	}
	if policy == nil {
		if ticket.PolicyID == nil {
			return nil
		}
		e.logger.Printf("sla: ticket %d no longer matches any policy, clearing due dates", ticket.ID)
		return e.clearDueDates(ctx, ticket, actorID)
	}
	if skipUnchanged && ticket.PolicyID != nil && *ticket.PolicyID == policy.ID {
		return nil
	}

	severity := models.SeverityForPriority(ticket.Type, ticket.Priority)
	budgets, err := e.ResolveBudgets(ctx, policy, severity)
	if err != nil {
		return err
	}
	if !budgets.Usable() {
		// Misconfigured targets behave like no policy for this ticket.
		e.logger.Printf("sla: policy %d has no usable budgets for severity %s, ticket %d gets no due dates",
			policy.ID, severity, ticket.ID)
		return e.clearDueDates(ctx, ticket, actorID)
	}

	responseDueAt, dueAt := DueDates(ticket.CreatedAt, budgets)
	if err := e.tickets.SetDueDates(ctx, ticket.ID, &policy.ID, responseDueAt, dueAt, actorID); err != nil {
		return fmt.Errorf("assign policy %d to ticket %d: %w", policy.ID, ticket.ID, err)
	}

	ticket.PolicyID = &policy.ID
	ticket.ResponseDueAt = responseDueAt
	ticket.DueAt = dueAt
	return nil
}

func (e *Engine) clearDueDates(ctx context.Context, ticket *models.Ticket, actorID int64) error {
	if err := e.tickets.SetDueDates(ctx, ticket.ID, nil, nil, nil, actorID); err != nil {
		return fmt.Errorf("clear due dates for ticket %d: %w", ticket.ID, err)
	}
	ticket.PolicyID = nil
	ticket.ResponseDueAt = nil
	ticket.DueAt = nil
	return nil
}
