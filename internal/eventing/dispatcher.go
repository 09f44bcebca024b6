package eventing

import (
	"context"
	"errors"
	"log"
	"time"
)

// OutboxRecord is an undelivered outbox entry.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
	Attempts int
}

// OutboxStore is the dispatcher's view of the outbox.
type OutboxStore interface {
	// ListDue returns records whose next attempt is at or before now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkRetry(ctx context.Context, id string, attempts int, next time.Time, reason string) error
	MarkDead(ctx context.Context, id string, attempts int, reason string) error
}

// RetryPolicy bounds redelivery of failed records. Delays double from
// BaseDelay per attempt up to MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries for roughly ten minutes.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 8, BaseDelay: 2 * time.Second, MaxDelay: 5 * time.Minute}

// Delay returns the wait before the given attempt number (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Dispatcher delivers committed outbox records to the in-process bus.
type Dispatcher struct {
	bus      EventBus
	outbox   OutboxStore
	registry *Registry
	policy   RetryPolicy
	now      func() time.Time
	logger   *log.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(policy RetryPolicy) DispatcherOption {
	return func(d *Dispatcher) {
		if policy.MaxAttempts > 0 {
			d.policy = policy
		}
	}
}

// WithDispatchClock overrides the dispatcher's time source.
func WithDispatchClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithDispatchLogger logs records given up on.
func WithDispatchLogger(logger *log.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(bus EventBus, outbox OutboxStore, registry *Registry, opts ...DispatcherOption) (*Dispatcher, error) {
	if bus == nil {
		return nil, errors.New("dispatcher: nil bus")
	}
	if outbox == nil {
		return nil, errors.New("dispatcher: nil outbox")
	}
	if registry == nil {
		return nil, errors.New("dispatcher: nil registry")
	}
	d := &Dispatcher{
		bus:      bus,
		outbox:   outbox,
		registry: registry,
		policy:   DefaultRetryPolicy,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch delivers up to limit due records and returns how many were sent.
// Handler failures reschedule the record; records that cannot be decoded or
// run out of attempts are marked dead.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	records, err := d.outbox.ListDue(ctx, d.now(), limit)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, record := range records {
		env := record.Envelope
		payload, err := d.registry.DecodePayload(env)
		if err != nil {
			if markErr := d.dead(ctx, record, record.Attempts, err); markErr != nil {
				return sent, markErr
			}
			continue
		}
		if err := d.bus.Publish(WithEnvelope(ctx, env), payload); err != nil {
			if markErr := d.fail(ctx, record, err); markErr != nil {
				return sent, markErr
			}
			continue
		}
		if err := d.outbox.MarkSent(ctx, record.ID, d.now()); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (d *Dispatcher) fail(ctx context.Context, record OutboxRecord, cause error) error {
	attempts := record.Attempts + 1
	if attempts >= d.policy.MaxAttempts {
		return d.dead(ctx, record, attempts, cause)
	}
	next := d.now().Add(d.policy.Delay(attempts))
	return d.outbox.MarkRetry(ctx, record.ID, attempts, next, cause.Error())
}

func (d *Dispatcher) dead(ctx context.Context, record OutboxRecord, attempts int, cause error) error {
	if d.logger != nil {
		d.logger.Printf("outbox: giving up on %s (%s, line=%s) after %d attempts: %v",
			record.ID, record.Envelope.EventType, record.Envelope.LineID, attempts, cause)
	}
	return d.outbox.MarkDead(ctx, record.ID, attempts, cause.Error())
}
