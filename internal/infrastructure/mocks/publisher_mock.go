package mocks

import (
	"context"
	"sync"

	"github.com/example/storefront/internal/event"
)

// MockPublisher records published events
type MockPublisher struct {
	mu         sync.Mutex
	Events     []event.Event
	PublishErr error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Events: make([]event.Event, 0)}
}

func (m *MockPublisher) Publish(ctx context.Context, e event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, e)
	return m.PublishErr
}

// Types returns the published event types in order
func (m *MockPublisher) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.Events))
	for _, e := range m.Events {
		types = append(types, e.Type)
	}
	return types
}
