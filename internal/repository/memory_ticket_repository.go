package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// MemoryTicketRepository is an in-memory TicketRepository used in tests. The
// conditional mutators mirror the SQL guards exactly so service tests exercise
// the same idempotence semantics.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[int64]*models.Ticket
	nextID  int64
}

func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets: make(map[int64]*models.Ticket),
		nextID:  1,
	}
}

// AddTicket seeds a ticket. Test helper.
func (r *MemoryTicketRepository) AddTicket(t *models.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == 0 {
		t.ID = r.nextID
		r.nextID++
	} else if t.ID >= r.nextID {
		r.nextID = t.ID + 1
	}
	cp := *t
	r.tickets[t.ID] = &cp
}

func (r *MemoryTicketRepository) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tickets[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func isOpen(t *models.Ticket) bool {
	return !t.IsTerminal()
}

func (r *MemoryTicketRepository) FindOpenTicketsWithPolicy(ctx context.Context, policyID int64) ([]*models.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Ticket
	for _, t := range r.tickets {
		if t.PolicyID != nil && *t.PolicyID == policyID && isOpen(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sortByID(out)
	return out, nil
}

func (r *MemoryTicketRepository) FindOverdueOpenTickets(ctx context.Context, asOf time.Time) ([]*models.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Ticket
	for _, t := range r.tickets {
		if !isOpen(t) || t.PausedAt != nil {
			continue
		}
		overdue := (t.ResponseDueAt != nil && t.ResponseDueAt.Before(asOf) && !t.ResponseBreached) ||
			(t.DueAt != nil && t.DueAt.Before(asOf) && !t.Breached) ||
			(t.OLADueAt != nil && t.OLADueAt.Before(asOf) && !t.OLABreached) ||
			(t.UCDueAt != nil && t.UCDueAt.Before(asOf) && !t.UCBreached)
		if overdue {
			cp := *t
			out = append(out, &cp)
		}
	}
	sortByID(out)
	return out, nil
}

func (r *MemoryTicketRepository) FindDueSoonTickets(ctx context.Context, asOf time.Time, window time.Duration) ([]*models.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	until := asOf.Add(window)
	var out []*models.Ticket
	for _, t := range r.tickets {
		if !isOpen(t) || t.PausedAt != nil || t.Breached || t.DueAt == nil {
			continue
		}
		if t.DueAt.After(asOf) && !t.DueAt.After(until) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sortByID(out)
	return out, nil
}

func (r *MemoryTicketRepository) SetDueDates(ctx context.Context, ticketID int64, policyID *int64, responseDueAt, dueAt *time.Time, actorID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tickets[ticketID]
	if !ok {
		return nil
	}
	t.PolicyID = copyInt64(policyID)
	t.ResponseDueAt = copyTime(responseDueAt)
	t.DueAt = copyTime(dueAt)
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryTicketRepository) markBreached(ticketID int64, flag func(*models.Ticket) *bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tickets[ticketID]
	if !ok || !isOpen(t) || t.PausedAt != nil {
		return false, nil
	}
	f := flag(t)
	if *f {
		return false, nil
	}
	*f = true
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryTicketRepository) MarkResponseBreached(ctx context.Context, ticketID int64, actorID int64) (bool, error) {
	return r.markBreached(ticketID, func(t *models.Ticket) *bool { return &t.ResponseBreached })
}

func (r *MemoryTicketRepository) MarkResolutionBreached(ctx context.Context, ticketID int64, actorID int64) (bool, error) {
	return r.markBreached(ticketID, func(t *models.Ticket) *bool { return &t.Breached })
}

func (r *MemoryTicketRepository) MarkOLABreached(ctx context.Context, ticketID int64, actorID int64) (bool, error) {
	return r.markBreached(ticketID, func(t *models.Ticket) *bool { return &t.OLABreached })
}

func (r *MemoryTicketRepository) MarkUCBreached(ctx context.Context, ticketID int64, actorID int64) (bool, error) {
	return r.markBreached(ticketID, func(t *models.Ticket) *bool { return &t.UCBreached })
}

func (r *MemoryTicketRepository) PauseClock(ctx context.Context, ticketID int64, at time.Time, actorID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tickets[ticketID]
	if !ok || t.PausedAt != nil {
		return false, nil
	}
	paused := at
	t.PausedAt = &paused
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryTicketRepository) ResumeClock(ctx context.Context, ticketID int64, at time.Time, actorID int64) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tickets[ticketID]
	if !ok || t.PausedAt == nil {
		return 0, false, nil
	}
	elapsed := int(at.Sub(*t.PausedAt).Minutes())
	if elapsed < 0 {
		elapsed = 0
	}
	shift := time.Duration(elapsed) * time.Minute
	t.ResponseDueAt = shiftTime(t.ResponseDueAt, shift)
	t.DueAt = shiftTime(t.DueAt, shift)
	t.OLADueAt = shiftTime(t.OLADueAt, shift)
	t.UCDueAt = shiftTime(t.UCDueAt, shift)
	t.PauseTotalMinutes += elapsed
	t.PausedAt = nil
	t.UpdatedAt = time.Now().UTC()
	return elapsed, true, nil
}

func (r *MemoryTicketRepository) RaiseEscalation(ctx context.Context, ticketID int64, level, newPriority int, at time.Time, actorID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tickets[ticketID]
	if !ok || !isOpen(t) || t.EscalationLevel >= level {
		return false, nil
	}
	escalated := at
	t.EscalationLevel = level
	t.EscalatedAt = &escalated
	t.Priority = newPriority
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryTicketRepository) FloorPriorityForBreachedRequests(ctx context.Context, actorID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var touched int64
	for _, t := range r.tickets {
		if t.Type == models.TicketServiceRequest && t.Breached && isOpen(t) && t.Priority > models.PriorityCritical {
			t.Priority = models.PriorityCritical
			t.UpdatedAt = time.Now().UTC()
			touched++
		}
	}
	return touched, nil
}

func (r *MemoryTicketRepository) CountTicketsCreated(ctx context.Context, organizationID int64, from, to time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, t := range r.tickets {
		if t.OrganizationID == organizationID && !t.CreatedAt.Before(from) && t.CreatedAt.Before(to) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryTicketRepository) OrganizationIDs(ctx context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int64]struct{})
	var ids []int64
	for _, t := range r.tickets {
		if _, ok := seen[t.OrganizationID]; ok {
			continue
		}
		seen[t.OrganizationID] = struct{}{}
		ids = append(ids, t.OrganizationID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func sortByID(tickets []*models.Ticket) {
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
