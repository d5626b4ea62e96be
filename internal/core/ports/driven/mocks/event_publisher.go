package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
)

var _ driven.EventPublisher = (*MockEventPublisher)(nil)

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	events []domain.IndexEvent
	closed bool

	// PublishFn overrides Publish when set
	PublishFn func(event domain.IndexEvent) error
}

// NewMockEventPublisher creates a new MockEventPublisher
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) Publish(ctx context.Context, event domain.IndexEvent) error {
	if m.PublishFn != nil {
		return m.PublishFn(event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Events returns the recorded events in publish order
func (m *MockEventPublisher) Events() []domain.IndexEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.IndexEvent(nil), m.events...)
}

// EventsOfType returns the recorded events of one type
func (m *MockEventPublisher) EventsOfType(t domain.EventType) []domain.IndexEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.IndexEvent
	for _, e := range m.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}
