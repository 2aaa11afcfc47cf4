package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// MemoryPolicyRepository is an in-memory PolicyRepository used in tests and
// local development.
type MemoryPolicyRepository struct {
	mu          sync.RWMutex
	policies    map[int64]models.SLAPolicy
	targets     map[int64][]models.SLATarget
	escalations map[int64][]models.SLAEscalation
	nextID      int64
}

func NewMemoryPolicyRepository() *MemoryPolicyRepository {
	return &MemoryPolicyRepository{
		policies:    make(map[int64]models.SLAPolicy),
		targets:     make(map[int64][]models.SLATarget),
		escalations: make(map[int64][]models.SLAEscalation),
		nextID:      1,
	}
}

func (r *MemoryPolicyRepository) ActivePoliciesFor(ctx context.Context, organizationID int64) ([]models.SLAPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.SLAPolicy
	for _, p := range r.policies {
		if p.OrganizationID == organizationID && p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryPolicyRepository) GetPolicy(ctx context.Context, id int64) (*models.SLAPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.policies[id]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (r *MemoryPolicyRepository) ListPolicies(ctx context.Context, organizationID int64, activeOnly bool) ([]models.SLAPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.SLAPolicy
	for _, p := range r.policies {
		if p.OrganizationID != organizationID {
			continue
		}
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryPolicyRepository) CreatePolicy(ctx context.Context, policy *models.SLAPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if policy.ID == 0 {
		policy.ID = r.nextID
		r.nextID++
	} else if policy.ID >= r.nextID {
		r.nextID = policy.ID + 1
	}
	now := time.Now().UTC()
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now
	r.policies[policy.ID] = *policy
	return nil
}

// AddTarget seeds a per-severity override. Test helper, not part of the
// PolicyRepository interface.
func (r *MemoryPolicyRepository) AddTarget(target models.SLATarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[target.PolicyID] = append(r.targets[target.PolicyID], target)
}

// AddEscalation seeds a ladder rung. Test helper.
func (r *MemoryPolicyRepository) AddEscalation(esc models.SLAEscalation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.escalations[esc.PolicyID] = append(r.escalations[esc.PolicyID], esc)
}

func (r *MemoryPolicyRepository) TargetsFor(ctx context.Context, policyID int64) ([]models.SLATarget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.SLATarget, len(r.targets[policyID]))
	copy(out, r.targets[policyID])
	return out, nil
}

func (r *MemoryPolicyRepository) EscalationLevelsFor(ctx context.Context, policyID int64) ([]models.SLAEscalation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.SLAEscalation, len(r.escalations[policyID]))
	copy(out, r.escalations[policyID])
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

func (r *MemoryPolicyRepository) ActiveEscalations(ctx context.Context) ([]models.SLAEscalation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.SLAEscalation
	for policyID, escs := range r.escalations {
		p, ok := r.policies[policyID]
		if !ok || !p.IsActive {
			continue
		}
		out = append(out, escs...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PolicyID != out[j].PolicyID {
			return out[i].PolicyID < out[j].PolicyID
		}
		return out[i].Level < out[j].Level
	})
	return out, nil
}
