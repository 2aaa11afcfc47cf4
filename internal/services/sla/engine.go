// Package sla implements the synchronous half of the SLA engine: policy
// resolution, target lookup, due-date calculation and pause tracking. The
// periodic half (breach detection, escalation, aggregation) lives in sibling
// packages and shares the same repositories.
package sla

import (
	"log"
	"time"

	"github.com/opsdesk-io/opsdesk-ce/internal/repository"
)

// Clock supplies the current time. Injected so sweeps and tests control time
// explicitly instead of reading it ambiently.
type Clock func() time.Time

// Engine runs the per-ticket SLA pipeline. All operations take an explicit
// context and actor ID; the engine itself holds no request state.
type Engine struct {
	policies repository.PolicyRepository
	tickets  repository.TicketRepository
	logger   *log.Logger
	clock    Clock
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used by the engine.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewEngine creates an SLA engine over the given repositories.
func NewEngine(policies repository.PolicyRepository, tickets repository.TicketRepository, opts ...Option) *Engine {
	e := &Engine{
		policies: policies,
		tickets:  tickets,
		logger:   log.Default(),
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.clock()
}
