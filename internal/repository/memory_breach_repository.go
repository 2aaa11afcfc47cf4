package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// MemoryBreachRepository is an in-memory BreachRepository used in tests.
type MemoryBreachRepository struct {
	mu       sync.RWMutex
	breaches map[int64]models.SLABreach
	nextID   int64
}

func NewMemoryBreachRepository() *MemoryBreachRepository {
	return &MemoryBreachRepository{
		breaches: make(map[int64]models.SLABreach),
		nextID:   1,
	}
}

func (r *MemoryBreachRepository) RecordBreach(ctx context.Context, breach *models.SLABreach) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.breaches {
		if b.TicketID == breach.TicketID && b.BreachType == breach.BreachType {
			return false, nil
		}
	}
	breach.ID = r.nextID
	r.nextID++
	breach.CreatedAt = breach.BreachedAt
	r.breaches[breach.ID] = *breach
	return true, nil
}

func (r *MemoryBreachRepository) CountDistinctBreachedTickets(ctx context.Context, organizationID int64, from, to time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int64]struct{})
	for _, b := range r.breaches {
		if b.OrganizationID != organizationID {
			continue
		}
		if b.CreatedAt.Before(from) || !b.CreatedAt.Before(to) {
			continue
		}
		seen[b.TicketID] = struct{}{}
	}
	return len(seen), nil
}

func (r *MemoryBreachRepository) ListBreaches(ctx context.Context, organizationID int64, acknowledged *bool, limit int) ([]models.SLABreach, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var out []models.SLABreach
	for _, b := range r.breaches {
		if b.OrganizationID != organizationID {
			continue
		}
		if acknowledged != nil && b.IsAcknowledged != *acknowledged {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BreachedAt.After(out[j].BreachedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryBreachRepository) AcknowledgeBreach(ctx context.Context, id int64, actorID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breaches[id]
	if !ok || b.IsAcknowledged {
		return false, nil
	}
	b.IsAcknowledged = true
	actor := actorID
	b.AcknowledgedBy = &actor
	r.breaches[id] = b
	return true, nil
}
