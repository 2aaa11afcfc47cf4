package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opsdesk-io/opsdesk-ce/internal/database"
	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// SQLBreachRepository stores breach records in the shared database.
type SQLBreachRepository struct {
	db *sql.DB
}

// NewSQLBreachRepository wires a repository around the shared connection.
func NewSQLBreachRepository(db *sql.DB) *SQLBreachRepository {
	return &SQLBreachRepository{db: db}
}

// RecordBreach inserts a breach row unless one already exists for the same
// (ticket, breach type). The INSERT ... SELECT ... WHERE NOT EXISTS form is a
// single statement, so two concurrent sweeps cannot both insert.
func (r *SQLBreachRepository) RecordBreach(ctx context.Context, breach *models.SLABreach) (bool, error) {
	breach.CreatedAt = breach.BreachedAt
	query := database.ConvertPlaceholders(`
		INSERT INTO sla_breach (organization_id, ticket_id, policy_id, breach_type,
			target_time, breached_at, breach_duration_minutes, is_acknowledged, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, FALSE, $8
		WHERE NOT EXISTS (
			SELECT 1 FROM sla_breach WHERE ticket_id = $9 AND breach_type = $10
		)
	`)
	res, err := r.db.ExecContext(ctx, query,
		breach.OrganizationID, breach.TicketID, breach.PolicyID, breach.BreachType,
		breach.TargetTime, breach.BreachedAt, breach.BreachDurationMinutes, breach.CreatedAt,
		breach.TicketID, breach.BreachType,
	)
	if err != nil {
		return false, fmt.Errorf("record breach for ticket %d: %w", breach.TicketID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		if id, err := res.LastInsertId(); err == nil && id > 0 {
			breach.ID = id
		}
	}
	return affected > 0, nil
}

func (r *SQLBreachRepository) CountDistinctBreachedTickets(ctx context.Context, organizationID int64, from, to time.Time) (int, error) {
	query := database.ConvertPlaceholders(`
		SELECT COUNT(DISTINCT ticket_id) FROM sla_breach
		WHERE organization_id = $1 AND created_at >= $2 AND created_at < $3
	`)
	var count int
	if err := r.db.QueryRowContext(ctx, query, organizationID, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("count breached tickets: %w", err)
	}
	return count, nil
}

const breachColumns = `id, organization_id, ticket_id, policy_id, breach_type,
	target_time, breached_at, breach_duration_minutes, is_acknowledged, acknowledged_by, created_at`

func (r *SQLBreachRepository) ListBreaches(ctx context.Context, organizationID int64, acknowledged *bool, limit int) ([]models.SLABreach, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
		SELECT %s FROM sla_breach
		WHERE organization_id = $1
	`, breachColumns)
	args := []any{organizationID}
	if acknowledged != nil {
		query += ` AND is_acknowledged = $2`
		args = append(args, *acknowledged)
	}
	query += fmt.Sprintf(" ORDER BY breached_at DESC LIMIT %d", limit)

	rows, err := r.db.QueryContext(ctx, database.ConvertPlaceholders(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list breaches: %w", err)
	}
	defer rows.Close()

	var breaches []models.SLABreach
	for rows.Next() {
		var b models.SLABreach
		if err := rows.Scan(&b.ID, &b.OrganizationID, &b.TicketID, &b.PolicyID, &b.BreachType,
			&b.TargetTime, &b.BreachedAt, &b.BreachDurationMinutes, &b.IsAcknowledged, &b.AcknowledgedBy, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan breach: %w", err)
		}
		breaches = append(breaches, b)
	}
	return breaches, rows.Err()
}

func (r *SQLBreachRepository) AcknowledgeBreach(ctx context.Context, id int64, actorID int64) (bool, error) {
	query := database.ConvertPlaceholders(`
		UPDATE sla_breach
		SET is_acknowledged = TRUE,
		    acknowledged_by = $1
		WHERE id = $2 AND is_acknowledged = FALSE
	`)
	res, err := r.db.ExecContext(ctx, query, actorID, id)
	if err != nil {
		return false, fmt.Errorf("acknowledge breach %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
