package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

func (s *Server) listPolicies(c *gin.Context) {
	orgID, ok := pathID(c, "org")
	if !ok {
		return
	}
	activeOnly := c.Query("active") == "true"

	policies, err := s.policies.ListPolicies(c.Request.Context(), orgID, activeOnly)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"policies": policies})
}

type createPolicyRequest struct {
	Name                string          `json:"name" binding:"required"`
	Description         string          `json:"description"`
	Coverage            models.Coverage `json:"coverage"`
	ServiceID           *int64          `json:"service_id"`
	ServiceCategory     string          `json:"service_category"`
	IncidentCategory    string          `json:"incident_category"`
	AppliesToSeverity   models.Severity `json:"applies_to_severity"`
	AppliesToImpact     int             `json:"applies_to_impact"`
	AppliesToUrgency    int             `json:"applies_to_urgency"`
	RequesterID         *int64          `json:"requester_id"`
	RequesterDepartment string          `json:"requester_department"`
	ResponseMinutes     int             `json:"response_minutes" binding:"required"`
	ResolutionMinutes   int             `json:"resolution_minutes" binding:"required"`
}

func (s *Server) createPolicy(c *gin.Context) {
	orgID, ok := pathID(c, "org")
	if !ok {
		return
	}
	var req createPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.AppliesToSeverity != "" && !req.AppliesToSeverity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity"})
		return
	}
	coverage := req.Coverage
	if coverage == "" {
		coverage = models.Coverage24x7
	}

	policy := &models.SLAPolicy{
		OrganizationID:      orgID,
		Name:                req.Name,
		Description:         req.Description,
		Coverage:            coverage,
		IsActive:            true,
		ServiceID:           req.ServiceID,
		ServiceCategory:     req.ServiceCategory,
		IncidentCategory:    req.IncidentCategory,
		AppliesToSeverity:   req.AppliesToSeverity,
		AppliesToImpact:     req.AppliesToImpact,
		AppliesToUrgency:    req.AppliesToUrgency,
		RequesterID:         req.RequesterID,
		RequesterDepartment: req.RequesterDepartment,
		ResponseMinutes:     req.ResponseMinutes,
		ResolutionMinutes:   req.ResolutionMinutes,
	}
	if err := s.policies.CreatePolicy(c.Request.Context(), policy); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, policy)
}

func (s *Server) getPolicy(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	policy, err := s.policies.GetPolicy(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if policy == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
		return
	}
	targets, err := s.policies.TargetsFor(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	escalations, err := s.policies.EscalationLevelsFor(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"policy":      policy,
		"targets":     targets,
		"escalations": escalations,
	})
}

func (s *Server) listBreaches(c *gin.Context) {
	orgID, ok := pathID(c, "org")
	if !ok {
		return
	}
	var acknowledged *bool
	if raw := c.Query("acknowledged"); raw != "" {
		v := raw == "true"
		acknowledged = &v
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	breaches, err := s.breaches.ListBreaches(c.Request.Context(), orgID, acknowledged, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"breaches": breaches})
}

type acknowledgeRequest struct {
	ActorID int64 `json:"actor_id" binding:"required"`
}

func (s *Server) acknowledgeBreach(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req acknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	applied, err := s.breaches.AcknowledgeBreach(c.Request.Context(), id, req.ActorID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !applied {
		c.JSON(http.StatusConflict, gin.H{"error": "breach not found or already acknowledged"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

func (s *Server) listMetrics(c *gin.Context) {
	orgID, ok := pathID(c, "org")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "12"))

	rollups, err := s.metricsRepo.ListForOrganization(c.Request.Context(), orgID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": rollups})
}

func (s *Server) listJobs(c *gin.Context) {
	if s.schedulerJobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": s.schedulerJobs.Jobs()})
}

func (s *Server) fail(c *gin.Context, err error) {
	s.logger.Printf("api: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
