package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/opsdesk-io/opsdesk-ce/internal/database"
	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// SQLDirectoryRepository resolves escalation recipients from the user store.
type SQLDirectoryRepository struct {
	db *sql.DB
}

// NewSQLDirectoryRepository wires a repository around the shared connection.
func NewSQLDirectoryRepository(db *sql.DB) *SQLDirectoryRepository {
	return &SQLDirectoryRepository{db: db}
}

const userColumns = `id, organization_id, name, email, role, department, is_active`

func (r *SQLDirectoryRepository) UserByID(ctx context.Context, id int64) (*models.User, error) {
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		SELECT %s FROM app_user WHERE id = $1
	`, userColumns))
	var u models.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.OrganizationID, &u.Name, &u.Email, &u.Role, &u.Department, &u.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

func (r *SQLDirectoryRepository) TeamMembers(ctx context.Context, teamID int64) ([]models.User, error) {
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		SELECT %s FROM app_user u
		WHERE u.is_active = TRUE
		  AND EXISTS (SELECT 1 FROM team_member tm WHERE tm.team_id = $1 AND tm.user_id = u.id)
		ORDER BY u.id
	`, userColumns))
	return r.queryUsers(ctx, query, teamID)
}

func (r *SQLDirectoryRepository) OrganizationManagers(ctx context.Context, organizationID int64) ([]models.User, error) {
	query := database.ConvertPlaceholders(fmt.Sprintf(`
		SELECT %s FROM app_user
		WHERE organization_id = $1 AND is_active = TRUE AND role IN ('manager', 'admin')
		ORDER BY id
	`, userColumns))
	return r.queryUsers(ctx, query, organizationID)
}

func (r *SQLDirectoryRepository) queryUsers(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.OrganizationID, &u.Name, &u.Email, &u.Role, &u.Department, &u.IsActive); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
