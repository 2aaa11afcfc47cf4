package models

import (
	"time"
)

// Severity is the normalized classification used for SLA target lookup.
// Ticket-type specific priority scales are mapped onto this common scale.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Coverage declares the support hours an SLA policy is meant to apply within.
// It is advisory metadata: due-date math uses flat minute addition regardless
// of the declared window.
type Coverage string

const (
	Coverage24x7     Coverage = "24x7"
	CoverageBusiness Coverage = "business"
	CoverageExtended Coverage = "extended"
)

// SLAPolicy defines response/resolution time budgets for matching tickets.
// Criteria left empty act as wildcards during policy resolution.
type SLAPolicy struct {
	ID             int64    `json:"id" db:"id"`
	OrganizationID int64    `json:"organization_id" db:"organization_id"`
	Name           string   `json:"name" db:"name"`
	Description    string   `json:"description" db:"description"`
	Coverage       Coverage `json:"coverage" db:"coverage"`
	IsActive       bool     `json:"is_active" db:"is_active"`

	// Applicability criteria (empty = wildcard)
	ServiceID           *int64   `json:"service_id,omitempty" db:"service_id"`
	ServiceCategory     string   `json:"service_category,omitempty" db:"service_category"`
	IncidentCategory    string   `json:"incident_category,omitempty" db:"incident_category"`
	AppliesToSeverity   Severity `json:"applies_to_severity,omitempty" db:"applies_to_severity"`
	AppliesToImpact     int      `json:"applies_to_impact,omitempty" db:"applies_to_impact"`
	AppliesToUrgency    int      `json:"applies_to_urgency,omitempty" db:"applies_to_urgency"`
	RequesterID         *int64   `json:"requester_id,omitempty" db:"requester_id"`
	RequesterDepartment string   `json:"requester_department,omitempty" db:"requester_department"`

	// Default budgets in minutes, used when no per-severity target exists.
	ResponseMinutes   int `json:"response_minutes" db:"response_minutes"`
	ResolutionMinutes int `json:"resolution_minutes" db:"resolution_minutes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SLATarget overrides the policy's default budgets for one severity.
// Unique per (policy, severity).
type SLATarget struct {
	ID                int64     `json:"id" db:"id"`
	PolicyID          int64     `json:"policy_id" db:"policy_id"`
	Severity          Severity  `json:"severity" db:"severity"`
	ResponseMinutes   int       `json:"response_minutes" db:"response_minutes"`
	ResolutionMinutes int       `json:"resolution_minutes" db:"resolution_minutes"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// BreachType distinguishes which due date was missed.
type BreachType string

const (
	BreachResponse   BreachType = "response"
	BreachResolution BreachType = "resolution"
)

// SLABreach records one missed due date. At most one row exists per
// (ticket, breach type); recording is idempotent.
type SLABreach struct {
	ID                    int64      `json:"id" db:"id"`
	OrganizationID        int64      `json:"organization_id" db:"organization_id"`
	TicketID              int64      `json:"ticket_id" db:"ticket_id"`
	PolicyID              *int64     `json:"policy_id,omitempty" db:"policy_id"`
	BreachType            BreachType `json:"breach_type" db:"breach_type"`
	TargetTime            time.Time  `json:"target_time" db:"target_time"`
	BreachedAt            time.Time  `json:"breached_at" db:"breached_at"`
	BreachDurationMinutes int        `json:"breach_duration_minutes" db:"breach_duration_minutes"`
	IsAcknowledged        bool       `json:"is_acknowledged" db:"is_acknowledged"`
	AcknowledgedBy        *int64     `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
}

// SLAEscalation is one rung of a policy's escalation ladder.
// Unique per (policy, level); levels are walked in ascending order.
type SLAEscalation struct {
	ID                   int64     `json:"id" db:"id"`
	OrganizationID       int64     `json:"organization_id" db:"organization_id"`
	PolicyID             int64     `json:"policy_id" db:"policy_id"`
	Level                int       `json:"level" db:"level"`
	EscalateAfterMinutes int       `json:"escalate_after_minutes" db:"escalate_after_minutes"`
	EscalateToTeamID     *int64    `json:"escalate_to_team_id,omitempty" db:"escalate_to_team_id"`
	EscalateToUserID     *int64    `json:"escalate_to_user_id,omitempty" db:"escalate_to_user_id"`
	NotifyManagers       bool      `json:"notify_managers" db:"notify_managers"`
	ActionDescription    string    `json:"action_description" db:"action_description"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}

// SLAMetric is the monthly compliance rollup for one organization.
// Unique per (organization, year, month); recomputed on every aggregation run.
type SLAMetric struct {
	ID                   int64     `json:"id" db:"id"`
	OrganizationID       int64     `json:"organization_id" db:"organization_id"`
	Year                 int       `json:"year" db:"year"`
	Month                int       `json:"month" db:"month"`
	TotalTickets         int       `json:"total_tickets" db:"total_tickets"`
	BreachedTickets      int       `json:"breached_tickets" db:"breached_tickets"`
	CompliancePercentage float64   `json:"compliance_percentage" db:"compliance_percentage"`
	TargetCompliance     float64   `json:"target_compliance" db:"target_compliance"`
	IsCompliant          bool      `json:"is_compliant" db:"is_compliant"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}
