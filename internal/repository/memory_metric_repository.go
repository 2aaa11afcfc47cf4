package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

type metricKey struct {
	org   int64
	year  int
	month int
}

// MemoryMetricRepository is an in-memory MetricRepository used in tests.
type MemoryMetricRepository struct {
	mu      sync.RWMutex
	metrics map[metricKey]models.SLAMetric
	nextID  int64
}

func NewMemoryMetricRepository() *MemoryMetricRepository {
	return &MemoryMetricRepository{
		metrics: make(map[metricKey]models.SLAMetric),
		nextID:  1,
	}
}

func (r *MemoryMetricRepository) UpsertMonthly(ctx context.Context, metric *models.SLAMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey{metric.OrganizationID, metric.Year, metric.Month}
	now := time.Now().UTC()
	if existing, ok := r.metrics[key]; ok {
		metric.ID = existing.ID
		metric.CreatedAt = existing.CreatedAt
	} else {
		metric.ID = r.nextID
		r.nextID++
		metric.CreatedAt = now
	}
	metric.UpdatedAt = now
	r.metrics[key] = *metric
	return nil
}

func (r *MemoryMetricRepository) GetMonthly(ctx context.Context, organizationID int64, year, month int) (*models.SLAMetric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.metrics[metricKey{organizationID, year, month}]
	if !ok {
		return nil, nil
	}
	cp := m
	return &cp, nil
}

func (r *MemoryMetricRepository) ListForOrganization(ctx context.Context, organizationID int64, limit int) ([]models.SLAMetric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 24
	}
	var out []models.SLAMetric
	for key, m := range r.metrics {
		if key.org == organizationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
