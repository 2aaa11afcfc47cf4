package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opsdesk-io/opsdesk-ce/internal/database"
	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// SQLPolicyRepository backs the policy catalog with the shared database.
type SQLPolicyRepository struct {
	db *sql.DB
}

// NewSQLPolicyRepository wires a repository around the shared connection.
func NewSQLPolicyRepository(db *sql.DB) *SQLPolicyRepository {
	return &SQLPolicyRepository{db: db}
}

const policyColumns = `id, organization_id, name, description, coverage, is_active,
	service_id, service_category, incident_category, applies_to_severity,
	applies_to_impact, applies_to_urgency, requester_id, requester_department,
	response_minutes, resolution_minutes, created_at, updated_at`

func (r *SQLPolicyRepository) ActivePoliciesFor(ctx context.Context, organizationID int64) ([]models.SLAPolicy, error) {
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		SELECT %s FROM sla_policy
		WHERE organization_id = $1 AND is_active = TRUE
		ORDER BY id
	`, policyColumns))
	return r.queryPolicies(ctx, query, organizationID)
}

func (r *SQLPolicyRepository) ListPolicies(ctx context.Context, organizationID int64, activeOnly bool) ([]models.SLAPolicy, error) {
	if activeOnly {
		return r.ActivePoliciesFor(ctx, organizationID)
	}
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		SELECT %s FROM sla_policy
		WHERE organization_id = $1
		ORDER BY id
	`, policyColumns))
	return r.queryPolicies(ctx, query, organizationID)
}

func (r *SQLPolicyRepository) GetPolicy(ctx context.Context, id int64) (*models.SLAPolicy, error) {
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		SELECT %s FROM sla_policy WHERE id = $1
	`, policyColumns))
	row := r.db.QueryRowContext(ctx, query, id)
	policy, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get policy %d: %w", id, err)
	}
	return policy, nil
}

func (r *SQLPolicyRepository) CreatePolicy(ctx context.Context, policy *models.SLAPolicy) error {
	now := time.Now().UTC()
	policy.CreatedAt = now
	policy.UpdatedAt = now
	query := database.ConvertPlaceholders(`
		INSERT INTO sla_policy (organization_id, name, description, coverage, is_active,
			service_id, service_category, incident_category, applies_to_severity,
			applies_to_impact, applies_to_urgency, requester_id, requester_department,
			response_minutes, resolution_minutes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`)
	res, err := r.db.ExecContext(ctx, query,
		policy.OrganizationID, policy.Name, policy.Description, policy.Coverage, policy.IsActive,
		policy.ServiceID, policy.ServiceCategory, policy.IncidentCategory, policy.AppliesToSeverity,
		policy.AppliesToImpact, policy.AppliesToUrgency, policy.RequesterID, policy.RequesterDepartment,
		policy.ResponseMinutes, policy.ResolutionMinutes, policy.CreatedAt, policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		policy.ID = id
	}
	return nil
}

func (r *SQLPolicyRepository) TargetsFor(ctx context.Context, policyID int64) ([]models.SLATarget, error) {
	query := database.ConvertPlaceholders(`
		SELECT id, policy_id, severity, response_minutes, resolution_minutes, created_at
		FROM sla_target
		WHERE policy_id = $1
		ORDER BY severity
	`)
	rows, err := r.db.QueryContext(ctx, query, policyID)
	if err != nil {
		return nil, fmt.Errorf("targets for policy %d: %w", policyID, err)
	}
	defer rows.Close()

	var targets []models.SLATarget
	for rows.Next() {
		var t models.SLATarget
		if err := rows.Scan(&t.ID, &t.PolicyID, &t.Severity, &t.ResponseMinutes, &t.ResolutionMinutes, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

const escalationColumns = `id, organization_id, policy_id, level, escalate_after_minutes,
	escalate_to_team_id, escalate_to_user_id, notify_managers, action_description, created_at`

func (r *SQLPolicyRepository) EscalationLevelsFor(ctx context.Context, policyID int64) ([]models.SLAEscalation, error) {
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		SELECT %s FROM sla_escalation
		WHERE policy_id = $1
		ORDER BY level
	`, escalationColumns))
	return r.queryEscalations(ctx, query, policyID)
}

func (r *SQLPolicyRepository) ActiveEscalations(ctx context.Context) ([]models.SLAEscalation, error) {
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		SELECT %s FROM sla_escalation e
		WHERE EXISTS (SELECT 1 FROM sla_policy p WHERE p.id = e.policy_id AND p.is_active = TRUE)
		ORDER BY policy_id, level
	`, escalationColumns))
	return r.queryEscalations(ctx, query)
}

func (r *SQLPolicyRepository) queryPolicies(ctx context.Context, query string, args ...any) ([]models.SLAPolicy, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	defer rows.Close()

	var policies []models.SLAPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		policies = append(policies, *policy)
	}
	return policies, rows.Err()
}

func (r *SQLPolicyRepository) queryEscalations(ctx context.Context, query string, args ...any) ([]models.SLAEscalation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query escalations: %w", err)
	}
	defer rows.Close()

	var out []models.SLAEscalation
	for rows.Next() {
		var e models.SLAEscalation
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.PolicyID, &e.Level, &e.EscalateAfterMinutes,
			&e.EscalateToTeamID, &e.EscalateToUserID, &e.NotifyManagers, &e.ActionDescription, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*models.SLAPolicy, error) {
	var p models.SLAPolicy
	err := row.Scan(
		&p.ID, &p.OrganizationID, &p.Name, &p.Description, &p.Coverage, &p.IsActive,
		&p.ServiceID, &p.ServiceCategory, &p.IncidentCategory, &p.AppliesToSeverity,
		&p.AppliesToImpact, &p.AppliesToUrgency, &p.RequesterID, &p.RequesterDepartment,
		&p.ResponseMinutes, &p.ResolutionMinutes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
