package driven

import (
	"context"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

// EventPublisher announces changes to indexed state
type EventPublisher interface {
	// Publish sends one event
	Publish(ctx context.Context, event domain.IndexEvent) error

	// Close flushes pending events and releases resources
	Close() error
}
