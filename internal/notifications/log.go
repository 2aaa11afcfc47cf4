package notifications

import (
	"context"
	"log"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// LogDispatcher writes notifications to the log instead of delivering them.
// Used when email delivery is disabled.
type LogDispatcher struct {
	logger *log.Logger
}

// NewLogDispatcher returns a dispatcher that only logs.
func NewLogDispatcher(logger *log.Logger) *LogDispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Notify(_ context.Context, recipients []models.Recipient, subject, _ string) error {
	d.logger.Printf("notifications: delivery disabled, dropping %q to %d recipients", subject, len(recipients))
	return nil
}
