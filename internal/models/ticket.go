package models

import (
	"time"
)

// TicketType separates the two ticket populations the engine serves.
type TicketType string

const (
	TicketIncident       TicketType = "incident"
	TicketServiceRequest TicketType = "service_request"
)

// Ticket statuses. Which of these are terminal depends on the ticket type:
// incidents end at resolved/closed, service requests at fulfilled/rejected/closed.
const (
	StatusNew          = "new"
	StatusAcknowledged = "acknowledged"
	StatusAssigned     = "assigned"
	StatusInProgress   = "in_progress"
	StatusOnHold       = "on_hold"
	StatusPending      = "pending"
	StatusResolved     = "resolved"
	StatusFulfilled    = "fulfilled"
	StatusRejected     = "rejected"
	StatusClosed       = "closed"
	StatusReopened     = "reopened"
)

// Priority scale shared by both ticket types: 1 is most urgent.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityMedium   = 3
	PriorityLow      = 4
)

// Ticket is the engine's view of a ticket. The ticket store owns the entity;
// the SLA engine only reads attributes and writes the temporal fields below.
type Ticket struct {
	ID             int64      `json:"id" db:"id"`
	OrganizationID int64      `json:"organization_id" db:"organization_id"`
	Type           TicketType `json:"type" db:"ticket_type"`
	TicketNumber   string     `json:"ticket_number" db:"ticket_number"`
	Title          string     `json:"title" db:"title"`
	Status         string     `json:"status" db:"status"`

	// Classification
	Category        string `json:"category" db:"category"`
	ServiceID       *int64 `json:"service_id,omitempty" db:"service_id"`
	ServiceCategory string `json:"service_category,omitempty" db:"service_category"`

	// Priority, impact and urgency on the 1..4 / 1..3 ITIL scales.
	Priority int `json:"priority" db:"priority"`
	Impact   int `json:"impact" db:"impact"`
	Urgency  int `json:"urgency" db:"urgency"`

	// People
	RequesterID         *int64 `json:"requester_id,omitempty" db:"requester_id"`
	RequesterDepartment string `json:"requester_department,omitempty" db:"requester_department"`
	AssignedToID        *int64 `json:"assigned_to_id,omitempty" db:"assigned_to_id"`
	AssignedTeamID      *int64 `json:"assigned_team_id,omitempty" db:"assigned_team_id"`

	// Temporal fields owned by the SLA engine.
	PolicyID             *int64     `json:"sla_policy_id,omitempty" db:"sla_policy_id"`
	ResponseDueAt        *time.Time `json:"sla_response_due_at,omitempty" db:"sla_response_due_at"`
	DueAt                *time.Time `json:"sla_due_at,omitempty" db:"sla_due_at"`
	ResponseBreached     bool       `json:"sla_response_breached" db:"sla_response_breached"`
	Breached             bool       `json:"sla_breached" db:"sla_breached"`
	PausedAt             *time.Time `json:"sla_paused_at,omitempty" db:"sla_paused_at"`
	PauseTotalMinutes    int        `json:"sla_pause_total_minutes" db:"sla_pause_total_minutes"`
	EscalationLevel      int        `json:"escalation_level" db:"escalation_level"`
	EscalatedAt          *time.Time `json:"escalated_at,omitempty" db:"escalated_at"`

	// OLA/UC due dates tracked alongside the SLA (flag-only breach tracking).
	OLADueAt    *time.Time `json:"ola_due_at,omitempty" db:"ola_due_at"`
	OLABreached bool       `json:"ola_breached" db:"ola_breached"`
	UCDueAt     *time.Time `json:"uc_due_at,omitempty" db:"uc_due_at"`
	UCBreached  bool       `json:"uc_breached" db:"uc_breached"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TerminalStatuses returns the statuses that stop the SLA clock for a type.
func TerminalStatuses(t TicketType) []string {
	if t == TicketServiceRequest {
		return []string{StatusFulfilled, StatusRejected, StatusClosed}
	}
	return []string{StatusResolved, StatusClosed}
}

// IsTerminal reports whether the ticket has reached a clock-stopping status.
func (t *Ticket) IsTerminal() bool {
	for _, s := range TerminalStatuses(t.Type) {
		if t.Status == s {
			return true
		}
	}
	return false
}

// IsPaused reports whether the SLA clock is currently stopped.
func (t *Ticket) IsPaused() bool {
	return t.PausedAt != nil
}

// CalculatePriority derives priority from the ITIL impact x urgency matrix.
// Both axes use 1 (high) .. 3 (low).
func CalculatePriority(impact, urgency int) int {
	matrix := map[[2]int]int{
		{1, 1}: PriorityCritical,
		{1, 2}: PriorityHigh,
		{1, 3}: PriorityMedium,
		{2, 1}: PriorityHigh,
		{2, 2}: PriorityMedium,
		{2, 3}: PriorityLow,
		{3, 1}: PriorityMedium,
		{3, 2}: PriorityLow,
		{3, 3}: PriorityLow,
	}
	if p, ok := matrix[[2]int{impact, urgency}]; ok {
		return p
	}
	return PriorityMedium
}

// SeverityForPriority normalizes a ticket-type priority onto the common
// severity scale used for SLA target lookup.
func SeverityForPriority(t TicketType, priority int) Severity {
	// Both scales are ordinal 1..4 today; service requests historically used a
	// wider scale, so clamp instead of failing on out-of-range values.
	switch {
	case priority <= PriorityCritical:
		return SeverityCritical
	case priority == PriorityHigh:
		return SeverityHigh
	case priority == PriorityMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
