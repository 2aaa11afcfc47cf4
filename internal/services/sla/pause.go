package sla

import (
	"context"
	"fmt"
)

// Pause stops the SLA clock for a ticket. Pausing an already-paused ticket is
// a no-op; the original pause timestamp is kept so the paused span is counted
// once.
func (e *Engine) Pause(ctx context.Context, ticketID int64, actorID int64) (bool, error) {
	applied, err := e.tickets.PauseClock(ctx, ticketID, e.clock(), actorID)
	if err != nil {
		return false, fmt.Errorf("pause ticket %d: %w", ticketID, err)
	}
	return applied, nil
}

// Resume restarts the SLA clock, credits the paused minutes to the pause
// total and shifts every set due date forward by the same amount. Resuming a
// running ticket is a no-op. Returns the minutes credited.
func (e *Engine) Resume(ctx context.Context, ticketID int64, actorID int64) (int, bool, error) {
	minutes, applied, err := e.tickets.ResumeClock(ctx, ticketID, e.clock(), actorID)
	if err != nil {
		return 0, false, fmt.Errorf("resume ticket %d: %w", ticketID, err)
	}
	if applied {
		e.logger.Printf("sla: ticket %d resumed after %d paused minutes", ticketID, minutes)
	}
	return minutes, applied, nil
}
