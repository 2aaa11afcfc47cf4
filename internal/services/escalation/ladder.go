// Package escalation walks the per-policy escalation ladders over open
// tickets and fans out notifications.
package escalation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/xeonx/timeago"

	"github.com/opsdesk-io/opsdesk-ce/internal/metrics"
	"github.com/opsdesk-io/opsdesk-ce/internal/models"
	"github.com/opsdesk-io/opsdesk-ce/internal/notifications"
	"github.com/opsdesk-io/opsdesk-ce/internal/repository"
)

// Ladder advances tickets through their policy's escalation levels. Levels
// only ever increase on a ticket; a notification failure is logged and never
// rolls the level back.
type Ladder struct {
	policies  repository.PolicyRepository
	tickets   repository.TicketRepository
	directory repository.DirectoryRepository
	notifier  notifications.Dispatcher
	logger    *log.Logger
	clock     func() time.Time
	actorID   int64
}

// Option configures a Ladder.
type Option func(*Ladder)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Ladder) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(l *Ladder) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithActor sets the actor ID recorded for sweep-originated writes.
func WithActor(actorID int64) Option {
	return func(l *Ladder) {
		l.actorID = actorID
	}
}

// NewLadder creates an escalation ladder service.
func NewLadder(policies repository.PolicyRepository, tickets repository.TicketRepository,
	directory repository.DirectoryRepository, notifier notifications.Dispatcher, opts ...Option) *Ladder {
	l := &Ladder{
		policies:  policies,
		tickets:   tickets,
		directory: directory,
		notifier:  notifier,
		logger:    log.Default(),
		clock:     func() time.Time { return time.Now().UTC() },
		actorID:   1,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SweepStats summarizes one escalation run.
type SweepStats struct {
	TicketsExamined      int   `json:"tickets_examined"`
	Escalations          int   `json:"escalations"`
	NotificationFailures int   `json:"notification_failures"`
	FlooredRequests      int64 `json:"floored_requests"`
}

// Sweep walks every active policy's ladder, escalating open tickets whose age
// has crossed a level threshold the ticket has not reached yet. Afterwards,
// breached service requests still below top priority are floored to it.
func (l *Ladder) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	escalations, err := l.policies.ActiveEscalations(ctx)
	if err != nil {
		return stats, fmt.Errorf("escalation sweep: %w", err)
	}

	byPolicy := make(map[int64][]models.SLAEscalation)
	var policyOrder []int64
	for _, esc := range escalations {
		if _, ok := byPolicy[esc.PolicyID]; !ok {
			policyOrder = append(policyOrder, esc.PolicyID)
		}
		byPolicy[esc.PolicyID] = append(byPolicy[esc.PolicyID], esc)
	}

	now := l.clock()
	for _, policyID := range policyOrder {
		tickets, err := l.tickets.FindOpenTicketsWithPolicy(ctx, policyID)
		if err != nil {
			l.logger.Printf("escalation: tickets for policy %d: %v", policyID, err)
			continue
		}
		stats.TicketsExamined += len(tickets)
		for _, ticket := range tickets {
			l.escalateTicket(ctx, ticket, byPolicy[policyID], now, &stats)
		}
	}
	metrics.TicketsScanned.WithLabelValues("escalation_sweep").Add(float64(stats.TicketsExamined))

	floored, err := l.tickets.FloorPriorityForBreachedRequests(ctx, l.actorID)
	if err != nil {
		l.logger.Printf("escalation: priority floor: %v", err)
	}
	stats.FlooredRequests = floored

	return stats, nil
}

// escalateTicket walks the ladder rungs in ascending level order, applying
// every level the ticket's age has crossed but not reached. Priority rises
// one step per level, bounded at the top of the scale.
func (l *Ladder) escalateTicket(ctx context.Context, ticket *models.Ticket, levels []models.SLAEscalation, now time.Time, stats *SweepStats) {
	age := now.Sub(ticket.CreatedAt)
	priority := ticket.Priority

	for _, esc := range levels {
		if ticket.EscalationLevel >= esc.Level {
			continue
		}
		if age <= time.Duration(esc.EscalateAfterMinutes)*time.Minute {
			break
		}

		newPriority := priority - 1
		if newPriority < models.PriorityCritical {
			newPriority = models.PriorityCritical
		}
		applied, err := l.tickets.RaiseEscalation(ctx, ticket.ID, esc.Level, newPriority, now, l.actorID)
		if err != nil {
			l.logger.Printf("escalation: raise ticket %d to level %d: %v", ticket.ID, esc.Level, err)
			return
		}
		if !applied {
			// Another sweep already advanced past this level.
			return
		}
		ticket.EscalationLevel = esc.Level
		priority = newPriority
		stats.Escalations++
		metrics.EscalationsFired.Inc()
		l.logger.Printf("escalation: ticket %s raised to level %d", ticket.TicketNumber, esc.Level)

		l.notify(ctx, ticket, &esc, now, stats)
	}
}

func (l *Ladder) notify(ctx context.Context, ticket *models.Ticket, esc *models.SLAEscalation, now time.Time, stats *SweepStats) {
	recipients, err := l.recipients(ctx, ticket, esc)
	if err != nil {
		l.logger.Printf("escalation: recipients for ticket %d level %d: %v", ticket.ID, esc.Level, err)
		return
	}
	if len(recipients) == 0 {
		return
	}

	subject := fmt.Sprintf("[%s] escalated to level %d", ticket.TicketNumber, esc.Level)
	body := fmt.Sprintf("Ticket %s (%s) was opened %s and is still unresolved at escalation level %d.",
		ticket.TicketNumber, ticket.Title, timeago.English.Format(ticket.CreatedAt), esc.Level)
	if esc.ActionDescription != "" {
		body += "\n\nRequired action: " + esc.ActionDescription
	}

	if err := l.notifier.Notify(ctx, recipients, subject, body); err != nil {
		stats.NotificationFailures++
		metrics.NotificationFailures.Inc()
		l.logger.Printf("escalation: notify for ticket %d level %d: %v", ticket.ID, esc.Level, err)
	}
}

// recipients aggregates the configured user, team members and organization
// managers, deduplicated by email.
func (l *Ladder) recipients(ctx context.Context, ticket *models.Ticket, esc *models.SLAEscalation) ([]models.Recipient, error) {
	var recipients []models.Recipient

	if esc.EscalateToUserID != nil {
		user, err := l.directory.UserByID(ctx, *esc.EscalateToUserID)
		if err != nil {
			return nil, err
		}
		if user != nil && user.IsActive {
			recipients = append(recipients, models.RecipientFor(user))
		}
	}
	if esc.EscalateToTeamID != nil {
		members, err := l.directory.TeamMembers(ctx, *esc.EscalateToTeamID)
		if err != nil {
			return nil, err
		}
		for i := range members {
			recipients = append(recipients, models.RecipientFor(&members[i]))
		}
	}
	if esc.NotifyManagers {
		managers, err := l.directory.OrganizationManagers(ctx, ticket.OrganizationID)
		if err != nil {
			return nil, err
		}
		for i := range managers {
			recipients = append(recipients, models.RecipientFor(&managers[i]))
		}
	}

	return models.DedupeRecipients(recipients), nil
}
