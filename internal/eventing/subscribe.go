package eventing

import (
	"context"
	"sync"
)

// ProcessedStore provides idempotency checks.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// Subscribe wraps handler with idempotency if store is provided.
func Subscribe(bus EventBus, eventType, consumerName string, handler EventHandler, store ProcessedStore) {
	if store == nil {
		bus.Subscribe(eventType, handler)
		return
	}
	bus.Subscribe(eventType, WrapHandler(consumerName, handler, store))
}

// WrapHandler enforces idempotency per consumer.
func WrapHandler(consumerName string, handler EventHandler, store ProcessedStore) EventHandler {
	return func(ctx context.Context, event any) error {
		env, ok := EnvelopeFromContext(ctx)
		if !ok || env.EventID == "" {
			return handler(ctx, event)
		}
		processed, err := store.HasProcessed(ctx, env.EventID, consumerName)
		if err != nil {
			return err
		}
		if processed {
			return nil
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
		return store.MarkProcessed(ctx, env.EventID, consumerName)
	}
}

// MemoryProcessedStore keeps processed markers in process memory.
type MemoryProcessedStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryProcessedStore constructs an empty store.
func NewMemoryProcessedStore() *MemoryProcessedStore {
	return &MemoryProcessedStore{seen: make(map[string]struct{})}
}

// HasProcessed reports whether the consumer already handled the event.
func (s *MemoryProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	_, ok := s.seen[consumerName+"|"+eventID]
	s.mu.Unlock()
	return ok, nil
}

// MarkProcessed records the event for the consumer.
func (s *MemoryProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	_ = ctx
	s.mu.Lock()
	s.seen[consumerName+"|"+eventID] = struct{}{}
	s.mu.Unlock()
	return nil
}
