// Package notifications delivers engine alerts to people. Delivery failures
// are reported to callers but are never fatal to the sweeps that raise them.
package notifications

import (
	"context"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// Dispatcher fans a message out to a set of recipients. Implementations must
// tolerate duplicate addresses; callers are expected to dedupe first.
type Dispatcher interface {
	Notify(ctx context.Context, recipients []models.Recipient, subject, body string) error
}
