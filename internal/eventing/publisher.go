package eventing

import (
	"context"
	"errors"
)

// Publisher delivers events straight to the bus with a fresh envelope.
// Outbox delivery goes through a Dispatcher instead.
type Publisher struct {
	bus EventBus
}

// NewPublisher constructs a publisher.
func NewPublisher(bus EventBus) (*Publisher, error) {
	if bus == nil {
		return nil, errors.New("publisher: nil bus")
	}
	return &Publisher{bus: bus}, nil
}

// Publish wraps event in an envelope and hands it to subscribers.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		return err
	}
	return p.bus.Publish(WithEnvelope(ctx, env), event)
}
