package sla

import (
	"context"
	"fmt"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// Budgets are the resolved response and resolution minute budgets for a
// (policy, severity) pair. A zero value on either side means that due date
// cannot be computed.
type Budgets struct {
	ResponseMinutes   int
	ResolutionMinutes int
}

// Usable reports whether at least one budget can produce a due date.
func (b Budgets) Usable() bool {
	return b.ResponseMinutes > 0 || b.ResolutionMinutes > 0
}

// ResolveBudgets looks up the minute budgets for a policy and severity. An
// exact SLATarget row for the severity wins; the policy's own defaults fill
// any field the target leaves unusable. Budgets that still come out
// non-positive are zeroed so callers skip that due date.
func (e *Engine) ResolveBudgets(ctx context.Context, policy *models.SLAPolicy, severity models.Severity) (Budgets, error) {
	targets, err := e.policies.TargetsFor(ctx, policy.ID)
	if err != nil {
		return Budgets{}, fmt.Errorf("targets for policy %d: %w", policy.ID, err)
	}

	b := Budgets{
		ResponseMinutes:   policy.ResponseMinutes,
		ResolutionMinutes: policy.ResolutionMinutes,
	}
	for _, t := range targets {
		if t.Severity != severity {
			continue
		}
		if t.ResponseMinutes > 0 {
			b.ResponseMinutes = t.ResponseMinutes
		}
		if t.ResolutionMinutes > 0 {
			b.ResolutionMinutes = t.ResolutionMinutes
		}
		break
	}

	if b.ResponseMinutes < 0 {
		b.ResponseMinutes = 0
	}
	if b.ResolutionMinutes < 0 {
		b.ResolutionMinutes = 0
	}
	return b, nil
}
