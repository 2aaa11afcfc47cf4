package notifications

import (
	"context"
	"sync"

	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// Delivery captures one dispatched message for inspection in tests.
type Delivery struct {
	Recipients []models.Recipient
	Subject    string
	Body       string
}

// MemoryDispatcher records deliveries instead of sending them.
type MemoryDispatcher struct {
	mu         sync.Mutex
	deliveries []Delivery

	// FailNext makes the next Notify call return this error, then clears it.
	FailNext error
}

// NewMemoryDispatcher returns an empty in-memory dispatcher.
func NewMemoryDispatcher() *MemoryDispatcher {
	return &MemoryDispatcher{}
}

func (m *MemoryDispatcher) Notify(_ context.Context, recipients []models.Recipient, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return err
	}
	copied := make([]models.Recipient, len(recipients))
	copy(copied, recipients)
	m.deliveries = append(m.deliveries, Delivery{Recipients: copied, Subject: subject, Body: body})
	return nil
}

// Deliveries returns a snapshot of everything dispatched so far.
func (m *MemoryDispatcher) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Delivery, len(m.deliveries))
	copy(out, m.deliveries)
	return out
}
