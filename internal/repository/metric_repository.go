package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opsdesk-io/opsdesk-ce/internal/database"
	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// SQLMetricRepository stores monthly compliance rollups. It leans on sqlx for
// struct scanning since rollup rows map 1:1 onto the model.
type SQLMetricRepository struct {
	db *sqlx.DB
}

// NewSQLMetricRepository wires a repository around the shared connection.
func NewSQLMetricRepository(db *sqlx.DB) *SQLMetricRepository {
	return &SQLMetricRepository{db: db}
}

// UpsertMonthly recomputes the rollup row for (organization, year, month).
// Update-then-insert keeps the statement portable across all three drivers;
// the unique key makes a lost race surface as a constraint error, which the
// caller's next run repairs.
func (r *SQLMetricRepository) UpsertMonthly(ctx context.Context, metric *models.SLAMetric) error {
	now := time.Now().UTC()
	update := database.ConvertPlaceholders(`
		UPDATE sla_metric
		SET total_tickets = $1,
		    breached_tickets = $2,
		    compliance_percentage = $3,
		    target_compliance = $4,
		    is_compliant = $5,
		    updated_at = $6
		WHERE organization_id = $7 AND year = $8 AND month = $9
	`)
	res, err := r.db.ExecContext(ctx, update,
		metric.TotalTickets, metric.BreachedTickets, metric.CompliancePercentage,
		metric.TargetCompliance, metric.IsCompliant, now,
		metric.OrganizationID, metric.Year, metric.Month,
	)
	if err != nil {
		return fmt.Errorf("update metric: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		metric.UpdatedAt = now
		return nil
	}

	insert := database.ConvertPlaceholders(`
		INSERT INTO sla_metric (organization_id, year, month, total_tickets, breached_tickets,
			compliance_percentage, target_compliance, is_compliant, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if _, err := r.db.ExecContext(ctx, insert,
		metric.OrganizationID, metric.Year, metric.Month, metric.TotalTickets, metric.BreachedTickets,
		metric.CompliancePercentage, metric.TargetCompliance, metric.IsCompliant, now, now,
	); err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	metric.CreatedAt = now
	metric.UpdatedAt = now
	return nil
}

func (r *SQLMetricRepository) GetMonthly(ctx context.Context, organizationID int64, year, month int) (*models.SLAMetric, error) {
	query := database.ConvertPlaceholders(`
		SELECT * FROM sla_metric
		WHERE organization_id = $1 AND year = $2 AND month = $3
	`)
	var metric models.SLAMetric
	err := r.db.GetContext(ctx, &metric, query, organizationID, year, month)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metric: %w", err)
	}
	return &metric, nil
}

func (r *SQLMetricRepository) ListForOrganization(ctx context.Context, organizationID int64, limit int) ([]models.SLAMetric, error) {
	if limit <= 0 {
		limit = 24
	}
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		SELECT * FROM sla_metric
		WHERE organization_id = $1
		ORDER BY year DESC, month DESC
		LIMIT %d
	`, limit))
	var metrics []models.SLAMetric
	if err := r.db.SelectContext(ctx, &metrics, query, organizationID); err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	return metrics, nil
}
