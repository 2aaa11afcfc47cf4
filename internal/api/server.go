// Package api exposes the read-mostly admin HTTP surface: policy catalog,
// breach listing and acknowledgement, compliance metrics and sweep health.
package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsdesk-io/opsdesk-ce/internal/metrics"
	"github.com/opsdesk-io/opsdesk-ce/internal/models"
	"github.com/opsdesk-io/opsdesk-ce/internal/repository"
	"github.com/opsdesk-io/opsdesk-ce/internal/version"
)

// JobLister reports scheduler job state for the health endpoint.
type JobLister interface {
	Jobs() []*models.ScheduledJob
}

// Server wires the admin API handlers.
type Server struct {
	policies      repository.PolicyRepository
	breaches      repository.BreachRepository
	metricsRepo   repository.MetricRepository
	schedulerJobs JobLister
	logger        *log.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithJobLister enables the scheduler health endpoint.
func WithJobLister(jobs JobLister) Option {
	return func(s *Server) {
		s.schedulerJobs = jobs
	}
}

// NewServer creates the admin API server.
func NewServer(policies repository.PolicyRepository, breaches repository.BreachRepository,
	metricsRepo repository.MetricRepository, opts ...Option) *Server {
	s := &Server{
		policies:    policies,
		breaches:    breaches,
		metricsRepo: metricsRepo,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/organizations/:org/policies", s.listPolicies)
		v1.POST("/organizations/:org/policies", s.createPolicy)
		v1.GET("/policies/:id", s.getPolicy)

		v1.GET("/organizations/:org/breaches", s.listBreaches)
		v1.POST("/breaches/:id/acknowledge", s.acknowledgeBreach)

		v1.GET("/organizations/:org/compliance", s.listMetrics)

		v1.GET("/scheduler/jobs", s.listJobs)
	}
	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Version,
	})
}
