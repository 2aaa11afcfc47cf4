package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
	"github.com/opsdesk-io/opsdesk-ce/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	policies *repository.MemoryPolicyRepository
	breaches *repository.MemoryBreachRepository
	metrics  *repository.MemoryMetricRepository
	router   *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		policies: repository.NewMemoryPolicyRepository(),
		breaches: repository.NewMemoryBreachRepository(),
		metrics:  repository.NewMemoryMetricRepository(),
	}
	ts.router = NewServer(ts.policies, ts.breaches, ts.metrics).Router()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestCreateAndListPolicies(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/organizations/1/policies", gin.H{
		"name":               "network critical",
		"incident_category":  "network",
		"applies_to_severity": "critical",
		"response_minutes":   15,
		"resolution_minutes": 120,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.SLAPolicy
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.True(t, created.IsActive)
	assert.Equal(t, models.Coverage24x7, created.Coverage)

	w = ts.do(t, http.MethodGet, "/api/v1/organizations/1/policies?active=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Policies []models.SLAPolicy `json:"policies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Policies, 1)
	assert.Equal(t, "network critical", listed.Policies[0].Name)
}

func TestCreatePolicyValidation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/organizations/1/policies", gin.H{
		"name": "missing budgets",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/organizations/1/policies", gin.H{
		"name":                "bad severity",
		"applies_to_severity": "urgent",
		"response_minutes":    10,
		"resolution_minutes":  60,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/organizations/abc/policies", gin.H{
		"name":               "bad org",
		"response_minutes":   10,
		"resolution_minutes": 60,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPolicyWithTargetsAndEscalations(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	policy := models.SLAPolicy{OrganizationID: 1, Name: "standard", IsActive: true, ResponseMinutes: 30, ResolutionMinutes: 240}
	require.NoError(t, ts.policies.CreatePolicy(ctx, &policy))
	ts.policies.AddTarget(models.SLATarget{PolicyID: policy.ID, Severity: models.SeverityHigh, ResponseMinutes: 20, ResolutionMinutes: 180})
	ts.policies.AddEscalation(models.SLAEscalation{PolicyID: policy.ID, Level: 1, EscalateAfterMinutes: 60})

	w := ts.do(t, http.MethodGet, "/api/v1/policies/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Policy      models.SLAPolicy       `json:"policy"`
		Targets     []models.SLATarget     `json:"targets"`
		Escalations []models.SLAEscalation `json:"escalations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "standard", resp.Policy.Name)
	assert.Len(t, resp.Targets, 1)
	assert.Len(t, resp.Escalations, 1)

	w = ts.do(t, http.MethodGet, "/api/v1/policies/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAndAcknowledgeBreaches(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	breach := models.SLABreach{
		OrganizationID: 1, TicketID: 5, BreachType: models.BreachResolution,
		TargetTime: now.Add(-time.Hour), BreachedAt: now, BreachDurationMinutes: 60,
	}
	_, err := ts.breaches.RecordBreach(ctx, &breach)
	require.NoError(t, err)

	w := ts.do(t, http.MethodGet, "/api/v1/organizations/1/breaches?acknowledged=false", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Breaches []models.SLABreach `json:"breaches"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Breaches, 1)

	w = ts.do(t, http.MethodPost, "/api/v1/breaches/1/acknowledge", gin.H{"actor_id": 7})
	assert.Equal(t, http.StatusOK, w.Code)

	// Second acknowledgement conflicts.
	w = ts.do(t, http.MethodPost, "/api/v1/breaches/1/acknowledge", gin.H{"actor_id": 7})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/organizations/1/breaches?acknowledged=false", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Empty(t, listed.Breaches)
}

func TestListComplianceMetrics(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, ts.metrics.UpsertMonthly(ctx, &models.SLAMetric{
		OrganizationID: 1, Year: 2026, Month: 2, TotalTickets: 10, BreachedTickets: 1,
		CompliancePercentage: 90.0, TargetCompliance: 95.0,
	}))
	require.NoError(t, ts.metrics.UpsertMonthly(ctx, &models.SLAMetric{
		OrganizationID: 1, Year: 2026, Month: 3, TotalTickets: 8, BreachedTickets: 0,
		CompliancePercentage: 100.0, TargetCompliance: 95.0, IsCompliant: true,
	}))

	w := ts.do(t, http.MethodGet, "/api/v1/organizations/1/compliance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Metrics []models.SLAMetric `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Metrics, 2)
	assert.Equal(t, 3, resp.Metrics[0].Month, "newest month first")
}

func TestSchedulerJobsUnavailableWithoutScheduler(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/v1/scheduler/jobs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
