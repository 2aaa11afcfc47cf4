package sla

import (
	"time"
)

// DueDates converts minute budgets into absolute due dates by flat addition
// from the base time. Coverage windows are advisory metadata and do not enter
// the arithmetic; a business-hours policy still counts wall-clock minutes.
func DueDates(base time.Time, b Budgets) (responseDueAt, dueAt *time.Time) {
	if b.ResponseMinutes > 0 {
		t := base.Add(time.Duration(b.ResponseMinutes) * time.Minute)
		responseDueAt = &t
	}
	if b.ResolutionMinutes > 0 {
		t := base.Add(time.Duration(b.ResolutionMinutes) * time.Minute)
		dueAt = &t
	}
	return responseDueAt, dueAt
}
