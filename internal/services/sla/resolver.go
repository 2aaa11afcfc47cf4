package sla

import (
	"context"
	"fmt"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// ResolvePolicy selects the single best-matching active policy for a ticket,
// or nil when none matches. A policy matches when every criterion it sets
// agrees with the ticket; unset criteria are wildcards. The most specific
// match wins (highest count of set criteria), ties broken by lowest policy ID
// so resolution is reproducible across runs and replicas.
func (e *Engine) ResolvePolicy(ctx context.Context, ticket *models.Ticket) (*models.SLAPolicy, error) {
	candidates, err := e.policies.ActivePoliciesFor(ctx, ticket.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("resolve policy for ticket %d: %w", ticket.ID, err)
	}

	var best *models.SLAPolicy
	bestScore := -1
	for i := range candidates {
		p := &candidates[i]
		score, ok := matchPolicy(p, ticket)
		if !ok {
			continue
		}
		if score > bestScore || (score == bestScore && best != nil && p.ID < best.ID) {
			best = p
			bestScore = score
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// matchPolicy evaluates the enumerated criteria list and returns the
// specificity score. The criteria are explicit so the precedence rule stays
// auditable.
func matchPolicy(p *models.SLAPolicy, t *models.Ticket) (int, bool) {
	score := 0

	if p.ServiceID != nil {
		if t.ServiceID == nil || *t.ServiceID != *p.ServiceID {
			return 0, false
		}
		score++
	}
	if p.ServiceCategory != "" {
		if t.ServiceCategory != p.ServiceCategory {
			return 0, false
		}
		score++
	}
	if p.IncidentCategory != "" {
		if t.Category != p.IncidentCategory {
			return 0, false
		}
		score++
	}
	if p.AppliesToSeverity != "" {
		if models.SeverityForPriority(t.Type, t.Priority) != p.AppliesToSeverity {
			return 0, false
		}
		score++
	}
	if p.AppliesToImpact != 0 {
		if t.Impact != p.AppliesToImpact {
			return 0, false
		}
		score++
	}
	if p.AppliesToUrgency != 0 {
		if t.Urgency != p.AppliesToUrgency {
			return 0, false
		}
		score++
	}
	if p.RequesterID != nil {
		if t.RequesterID == nil || *t.RequesterID != *p.RequesterID {
			return 0, false
		}
		score++
	}
	if p.RequesterDepartment != "" {
		if t.RequesterDepartment != p.RequesterDepartment {
			return 0, false
		}
		score++
	}

	return score, true
}
