// Package breach implements the periodic breach detector and the warning
// pre-notification sweep.
package breach

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

// Detector sweeps open tickets for missed due dates. Each per-ticket write is
// individually guarded and idempotent, so overlapping runs and partial
// progress are safe.
type Detector struct {
	tickets   repository.TicketRepository
	breaches  repository.BreachRepository
	directory repository.DirectoryRepository
	notifier  notifications.Dispatcher
	logger    *log.Logger
	clock     func() time.Time
	actorID   int64
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(d *Detector) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithActor sets the actor ID recorded for sweep-originated writes.
func WithActor(actorID int64) Option {
	return func(d *Detector) {
		d.actorID = actorID
	}
}

// NewDetector creates a breach detector.
func NewDetector(tickets repository.TicketRepository, breaches repository.BreachRepository,
	directory repository.DirectoryRepository, notifier notifications.Dispatcher, opts ...Option) *Detector {
	d := &Detector{
		tickets:   tickets,
		breaches:  breaches,
		directory: directory,
		notifier:  notifier,
		logger:    log.Default(),
		clock:     func() time.Time { return time.Now().UTC() },
		actorID:   1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SweepStats summarizes one detector run.
type SweepStats struct {
	Scanned            int `json:"scanned"`
	ResponseBreaches   int `json:"response_breaches"`
	ResolutionBreaches int `json:"resolution_breaches"`
	OLABreaches        int `json:"ola_breaches"`
	UCBreaches         int `json:"uc_breaches"`
	Errors             int `json:"errors"`
}

// Sweep scans open, unpaused tickets with a past due date and an unset breach
// flag. Response and resolution due dates are evaluated independently; OLA/UC
// dates are flag-only. Per-ticket failures are logged and the sweep moves on.
func (d *Detector) Sweep(ctx context.Context) (SweepStats, error) {
	now := d.clock()
	var stats SweepStats

	tickets, err := d.tickets.FindOverdueOpenTickets(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("breach sweep: %w", err)
	}
	stats.Scanned = len(tickets)
	metrics.TicketsScanned.WithLabelValues("breach_sweep").Add(float64(len(tickets)))

	for _, ticket := range tickets {
		if err := d.checkTicket(ctx, ticket, now, &stats); err != nil {
			stats.Errors++
			d.logger.Printf("breach: ticket %d: %v", ticket.ID, err)
		}
	}
	return stats, nil
}

func (d *Detector) checkTicket(ctx context.Context, t *models.Ticket, now time.Time, stats *SweepStats) error {
	if t.ResponseDueAt != nil && t.ResponseDueAt.Before(now) && !t.ResponseBreached {
		applied, err := d.tickets.MarkResponseBreached(ctx, t.ID, d.actorID)
		if err != nil {
			return err
		}
		if applied {
			if err := d.recordBreach(ctx, t, models.BreachResponse, *t.ResponseDueAt, now); err != nil {
				return err
			}
			stats.ResponseBreaches++
			metrics.BreachesRecorded.WithLabelValues(string(models.BreachResponse)).Inc()
		}
	}

	if t.DueAt != nil && t.DueAt.Before(now) && !t.Breached {
		applied, err := d.tickets.MarkResolutionBreached(ctx, t.ID, d.actorID)
		if err != nil {
			return err
		}
		if applied {
			if err := d.recordBreach(ctx, t, models.BreachResolution, *t.DueAt, now); err != nil {
				return err
			}
			stats.ResolutionBreaches++
			metrics.BreachesRecorded.WithLabelValues(string(models.BreachResolution)).Inc()
		}
	}

	if t.OLADueAt != nil && t.OLADueAt.Before(now) && !t.OLABreached {
		applied, err := d.tickets.MarkOLABreached(ctx, t.ID, d.actorID)
		if err != nil {
			return err
		}
		if applied {
			stats.OLABreaches++
			metrics.BreachesRecorded.WithLabelValues("ola").Inc()
		}
	}

	if t.UCDueAt != nil && t.UCDueAt.Before(now) && !t.UCBreached {
		applied, err := d.tickets.MarkUCBreached(ctx, t.ID, d.actorID)
		if err != nil {
			return err
		}
		if applied {
			stats.UCBreaches++
			metrics.BreachesRecorded.WithLabelValues("uc").Inc()
		}
	}

	return nil
}

func (d *Detector) recordBreach(ctx context.Context, t *models.Ticket, breachType models.BreachType, due, now time.Time) error {
	duration := int(now.Sub(due).Minutes())
	if duration < 0 {
		duration = 0
	}
	created, err := d.breaches.RecordBreach(ctx, &models.SLABreach{
		OrganizationID:        t.OrganizationID,
		TicketID:              t.ID,
		PolicyID:              t.PolicyID,
		BreachType:            breachType,
		TargetTime:            due,
		BreachedAt:            now,
		BreachDurationMinutes: duration,
	})
	if err != nil {
		return err
	}
	if created {
		d.logger.Printf("breach: ticket %s %s breached by %d minutes", t.TicketNumber, breachType, duration)
	}
	return nil
}

// SweepWarnings notifies the assignee (or their team) of tickets whose
// resolution due date falls within the warning window. Delivery failures are
// logged, never retried within the run.
func (d *Detector) SweepWarnings(ctx context.Context, window time.Duration) (int, error) {
	now := d.clock()
	tickets, err := d.tickets.FindDueSoonTickets(ctx, now, window)
	if err != nil {
		return 0, fmt.Errorf("warning sweep: %w", err)
	}
	metrics.TicketsScanned.WithLabelValues("warning_sweep").Add(float64(len(tickets)))

	notified := 0
	for _, ticket := range tickets {
		recipients, err := d.warningRecipients(ctx, ticket)
		if err != nil {
			d.logger.Printf("breach: warning recipients for ticket %d: %v", ticket.ID, err)
			continue
		}
		if len(recipients) == 0 {
			continue
		}
		subject := fmt.Sprintf("[%s] SLA due %s", ticket.TicketNumber, timeago.English.Format(*ticket.DueAt))
		body := fmt.Sprintf("Ticket %s (%s) is due at %s and has not been resolved.\n\n%s",
			ticket.TicketNumber, ticket.Title, ticket.DueAt.Format(time.RFC1123), "Please review before the SLA is breached.")
		if err := d.notifier.Notify(ctx, recipients, subject, body); err != nil {
			metrics.NotificationFailures.Inc()
			d.logger.Printf("breach: warning notification for ticket %d: %v", ticket.ID, err)
			continue
		}
		notified++
	}
	return notified, nil
}

func (d *Detector) warningRecipients(ctx context.Context, t *models.Ticket) ([]models.Recipient, error) {
	var recipients []models.Recipient
	if t.AssignedToID != nil {
		user, err := d.directory.UserByID(ctx, *t.AssignedToID)
		if err != nil {
			return nil, err
		}
		if user != nil && user.IsActive {
			recipients = append(recipients, models.RecipientFor(user))
		}
	}
	if t.AssignedTeamID != nil {
		members, err := d.directory.TeamMembers(ctx, *t.AssignedTeamID)
		if err != nil {
			return nil, err
		}
		for i := range members {
			recipients = append(recipients, models.RecipientFor(&members[i]))
		}
	}
	return models.DedupeRecipients(recipients), nil
}
