package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// MemoryDirectoryRepository is an in-memory DirectoryRepository used in tests.
type MemoryDirectoryRepository struct {
	mu    sync.RWMutex
	users map[int64]models.User
	teams map[int64][]int64
}

func NewMemoryDirectoryRepository() *MemoryDirectoryRepository {
	return &MemoryDirectoryRepository{
		users: make(map[int64]models.User),
		teams: make(map[int64][]int64),
	}
}

// AddUser seeds a user. Test helper.
func (r *MemoryDirectoryRepository) AddUser(u models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

// AddTeamMember seeds a team membership. Test helper.
func (r *MemoryDirectoryRepository) AddTeamMember(teamID, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams[teamID] = append(r.teams[teamID], userID)
}

func (r *MemoryDirectoryRepository) UserByID(ctx context.Context, id int64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := u
	return &cp, nil
}

func (r *MemoryDirectoryRepository) TeamMembers(ctx context.Context, teamID int64) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.User
	for _, userID := range r.teams[teamID] {
		if u, ok := r.users[userID]; ok && u.IsActive {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryDirectoryRepository) OrganizationManagers(ctx context.Context, organizationID int64) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.User
	for _, u := range r.users {
		if u.OrganizationID != organizationID || !u.IsActive {
			continue
		}
		if u.Role == "manager" || u.Role == "admin" {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
