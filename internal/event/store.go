package event

import "context"

// Store is the append-only audit trail every mutation writes to.
type Store interface {
	// Append persists one or more events atomically.
	Append(ctx context.Context, events ...Event) error
	// Load returns all events for an aggregate in creation order.
	Load(ctx context.Context, aggregateID string) ([]Event, error)
	// LoadByType returns events of one kind across all aggregates.
	LoadByType(ctx context.Context, eventType Type) ([]Event, error)
}
