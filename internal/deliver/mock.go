package deliver

import (
	"context"
	"sync"

	"github.com/journalpost/internal/models"
)

// MockDelivery records one delivery made through a MockAdapter.
type MockDelivery struct {
	Recipient models.Recipient
	Document  []byte
	Meta      Metadata
}

// MockAdapter implements Adapter for testing. FailFor maps recipient
// addresses to the error their delivery should return.
type MockAdapter struct {
	channel models.Channel

	mu        sync.Mutex
	Delivered []MockDelivery
	FailFor   map[string]error
}

func NewMockAdapter(channel models.Channel) *MockAdapter {
	return &MockAdapter{
		channel: channel,
		FailFor: make(map[string]error),
	}
}

func (m *MockAdapter) Channel() models.Channel { return m.channel }

func (m *MockAdapter) Deliver(_ context.Context, rcpt models.Recipient, document []byte, meta Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailFor[rcpt.Address]; ok {
		return err
	}
	m.Delivered = append(m.Delivered, MockDelivery{Recipient: rcpt, Document: document, Meta: meta})
	return nil
}

// Sent returns the number of successful deliveries so far.
func (m *MockAdapter) Sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Delivered)
}
