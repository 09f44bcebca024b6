package eventing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type sampleEvent struct {
	LineID     string
	SectionID  string
	Value      int
	OccurredAt time.Time
}

func (e sampleEvent) EventScope() Scope {
	return Scope{LineID: e.LineID, SectionID: e.SectionID, OccurredAt: e.OccurredAt}
}

type unscopedEvent struct {
	Value int
}

type fakeOutbox struct {
	mu      sync.Mutex
	records map[string]*fakeRecord
	order   []string
}

type fakeRecord struct {
	OutboxRecord
	status string
	next   time.Time
	reason string
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{records: make(map[string]*fakeRecord)}
}

func (o *fakeOutbox) add(env Envelope, due time.Time) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := "outbox-" + env.EventID
	o.records[id] = &fakeRecord{OutboxRecord: OutboxRecord{ID: id, Envelope: env}, status: "pending", next: due}
	o.order = append(o.order, id)
	return id
}

func (o *fakeOutbox) ListDue(_ context.Context, now time.Time, limit int) ([]OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []OutboxRecord
	for _, id := range o.order {
		record := o.records[id]
		if record.status == "pending" && !record.next.After(now) && len(out) < limit {
			out = append(out, record.OutboxRecord)
		}
	}
	return out, nil
}

func (o *fakeOutbox) MarkSent(_ context.Context, id string, _ time.Time) error {
	o.mu.Lock()
	o.records[id].status = "sent"
	o.mu.Unlock()
	return nil
}

func (o *fakeOutbox) MarkRetry(_ context.Context, id string, attempts int, next time.Time, reason string) error {
	o.mu.Lock()
	record := o.records[id]
	record.Attempts, record.next, record.reason = attempts, next, reason
	o.mu.Unlock()
	return nil
}

func (o *fakeOutbox) MarkDead(_ context.Context, id string, attempts int, reason string) error {
	o.mu.Lock()
	record := o.records[id]
	record.status, record.Attempts, record.reason = "dead", attempts, reason
	o.mu.Unlock()
	return nil
}

func (o *fakeOutbox) get(id string) fakeRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return *o.records[id]
}

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func TestInMemoryBus_DeliversByType(t *testing.T) {
	bus := NewInMemoryBus()
	var got []int
	bus.Subscribe(EventTypeOf[sampleEvent](), func(_ context.Context, event any) error {
		evt, ok := event.(sampleEvent)
		if !ok {
			return ErrInvalidEventType
		}
		got = append(got, evt.Value)
		return nil
	})
	bus.Subscribe("other", func(context.Context, any) error {
		t.Fatalf("unexpected delivery to other type")
		return nil
	})

	if err := bus.Publish(context.Background(), sampleEvent{Value: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("unexpected deliveries %v", got)
	}
	if err := bus.Publish(context.Background(), nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("expected nil event error, got %v", err)
	}
}

func TestInMemoryBus_ReturnsFirstError(t *testing.T) {
	bus := NewInMemoryBus()
	first := errors.New("first")
	calls := 0
	bus.Subscribe(EventTypeOf[sampleEvent](), func(context.Context, any) error { calls++; return first })
	bus.Subscribe(EventTypeOf[sampleEvent](), func(context.Context, any) error { calls++; return errors.New("second") })
	if err := bus.Publish(context.Background(), sampleEvent{}); !errors.Is(err, first) {
		t.Fatalf("expected first error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both handlers to run, got %d", calls)
	}
}

func TestBuildEnvelope_CarriesScopeAndMeta(t *testing.T) {
	at := time.Date(2026, time.April, 1, 8, 0, 0, 0, time.FixedZone("KST", 9*3600))
	env, err := BuildEnvelope(sampleEvent{LineID: "line-1", SectionID: "sec-2", OccurredAt: at}, Meta{Actor: "user-7"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.LineID != "line-1" || env.SectionID != "sec-2" || env.Actor != "user-7" {
		t.Fatalf("unexpected scope %+v", env)
	}
	if !env.OccurredAt.Equal(at) || env.OccurredAt.Location() != time.UTC {
		t.Fatalf("unexpected occurred at %v", env.OccurredAt)
	}
	if env.EventID == "" || env.CorrelationID != env.EventID {
		t.Fatalf("expected generated event id reused as correlation id")
	}
	if env.EventType != EventTypeOf[sampleEvent]() || env.SchemaVersion != 1 {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestBuildEnvelope_UnscopedEvent(t *testing.T) {
	env, err := BuildEnvelope(unscopedEvent{Value: 3}, Meta{CorrelationID: "req-1"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.LineID != "" || env.CorrelationID != "req-1" || env.OccurredAt.IsZero() {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if _, err := BuildEnvelope(nil, Meta{}); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("expected nil event error, got %v", err)
	}
	if err := (Envelope{}).Validate(); err == nil {
		t.Fatalf("expected empty envelope to be invalid")
	}
}

func TestPublisher_CopiesRequestMeta(t *testing.T) {
	bus := NewInMemoryBus()
	var envelope Envelope
	bus.Subscribe(EventTypeOf[sampleEvent](), func(ctx context.Context, _ any) error {
		env, ok := EnvelopeFromContext(ctx)
		if !ok {
			t.Fatalf("expected envelope in context")
		}
		envelope = env
		return nil
	})
	publisher, err := NewPublisher(bus)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	ctx := WithActor(WithCorrelationID(context.Background(), "corr-1"), "user-1")
	if err := publisher.Publish(ctx, sampleEvent{LineID: "line-9"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if envelope.LineID != "line-9" || envelope.CorrelationID != "corr-1" || envelope.Actor != "user-1" {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
	if _, err := NewPublisher(nil); err == nil {
		t.Fatalf("expected error for nil bus")
	}
}

func TestDispatcher_DeliversDueRecords(t *testing.T) {
	bus := NewInMemoryBus()
	registry := NewRegistry()
	registry.Register(sampleEvent{})
	outbox := newFakeOutbox()
	clock := &manualClock{now: time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)}
	dispatcher, err := NewDispatcher(bus, outbox, registry, WithDispatchClock(clock.Now))
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	var got []sampleEvent
	bus.Subscribe(EventTypeOf[sampleEvent](), func(ctx context.Context, event any) error {
		if env, ok := EnvelopeFromContext(ctx); !ok || env.LineID != "line-1" {
			t.Fatalf("expected envelope for line-1, got %+v", env)
		}
		got = append(got, event.(sampleEvent))
		return nil
	})

	env, err := BuildEnvelope(sampleEvent{LineID: "line-1", Value: 7}, Meta{})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	id := outbox.add(env, clock.now)
	later, _ := BuildEnvelope(sampleEvent{LineID: "line-1", Value: 8}, Meta{})
	outbox.add(later, clock.now.Add(time.Minute))

	sent, err := dispatcher.Dispatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sent != 1 || len(got) != 1 || got[0].Value != 7 {
		t.Fatalf("expected only the due record, sent=%d got=%+v", sent, got)
	}
	if outbox.get(id).status != "sent" {
		t.Fatalf("expected record marked sent")
	}
}

func TestDispatcher_RetriesWithBackoffThenGivesUp(t *testing.T) {
	bus := NewInMemoryBus()
	registry := NewRegistry()
	registry.Register(sampleEvent{})
	outbox := newFakeOutbox()
	clock := &manualClock{now: time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)}
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute}
	dispatcher, err := NewDispatcher(bus, outbox, registry, WithRetryPolicy(policy), WithDispatchClock(clock.Now))
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	failing := true
	calls := 0
	bus.Subscribe(EventTypeOf[sampleEvent](), func(context.Context, any) error {
		calls++
		if failing {
			return errors.New("consumer down")
		}
		return nil
	})
	env, _ := BuildEnvelope(sampleEvent{LineID: "line-1"}, Meta{})
	id := outbox.add(env, clock.now)

	if _, err := dispatcher.Dispatch(context.Background(), 10); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	record := outbox.get(id)
	if record.status != "pending" || record.Attempts != 1 || !record.next.Equal(clock.now.Add(time.Second)) {
		t.Fatalf("expected retry in 1s, got %+v", record)
	}
	if record.reason != "consumer down" {
		t.Fatalf("expected failure reason, got %q", record.reason)
	}

	// Not yet due.
	if _, err := dispatcher.Dispatch(context.Background(), 10); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no redelivery before backoff, got %d calls", calls)
	}

	clock.now = clock.now.Add(time.Second)
	if _, err := dispatcher.Dispatch(context.Background(), 10); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	record = outbox.get(id)
	if record.Attempts != 2 || !record.next.Equal(clock.now.Add(2*time.Second)) {
		t.Fatalf("expected doubled backoff, got %+v", record)
	}

	clock.now = clock.now.Add(2 * time.Second)
	if _, err := dispatcher.Dispatch(context.Background(), 10); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if record = outbox.get(id); record.status != "dead" || record.Attempts != 3 {
		t.Fatalf("expected record dead after 3 attempts, got %+v", record)
	}
	if calls != 3 {
		t.Fatalf("expected 3 deliveries, got %d", calls)
	}
}

func TestDispatcher_RecoversAfterTransientFailure(t *testing.T) {
	bus := NewInMemoryBus()
	registry := NewRegistry()
	registry.Register(sampleEvent{})
	outbox := newFakeOutbox()
	clock := &manualClock{now: time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)}
	dispatcher, err := NewDispatcher(bus, outbox, registry, WithDispatchClock(clock.Now))
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	failures := 1
	bus.Subscribe(EventTypeOf[sampleEvent](), func(context.Context, any) error {
		if failures > 0 {
			failures--
			return errors.New("transient")
		}
		return nil
	})
	env, _ := BuildEnvelope(sampleEvent{LineID: "line-1"}, Meta{})
	id := outbox.add(env, clock.now)

	if sent, _ := dispatcher.Dispatch(context.Background(), 10); sent != 0 {
		t.Fatalf("expected first attempt to fail")
	}
	clock.now = clock.now.Add(DefaultRetryPolicy.BaseDelay)
	if sent, _ := dispatcher.Dispatch(context.Background(), 10); sent != 1 {
		t.Fatalf("expected retry to deliver")
	}
	if outbox.get(id).status != "sent" {
		t.Fatalf("expected record sent after retry")
	}
}

func TestDispatcher_UnknownTypeMarkedDead(t *testing.T) {
	outbox := newFakeOutbox()
	dispatcher, err := NewDispatcher(NewInMemoryBus(), outbox, NewRegistry())
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	env, err := BuildEnvelope(sampleEvent{}, Meta{})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	id := outbox.add(env, time.Time{})
	if _, err := dispatcher.Dispatch(context.Background(), 10); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if outbox.get(id).status != "dead" {
		t.Fatalf("expected undecodable record dead, got %+v", outbox.get(id))
	}
}

func TestRetryPolicy_DelayCapped(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, expected := range want {
		if got := policy.Delay(i + 1); got != expected {
			t.Fatalf("attempt %d: expected %v, got %v", i+1, expected, got)
		}
	}
}

func TestNewDispatcher_RequiresDeps(t *testing.T) {
	if _, err := NewDispatcher(nil, newFakeOutbox(), NewRegistry()); err == nil {
		t.Fatalf("expected error for nil bus")
	}
	if _, err := NewDispatcher(NewInMemoryBus(), nil, NewRegistry()); err == nil {
		t.Fatalf("expected error for nil outbox")
	}
	if _, err := NewDispatcher(NewInMemoryBus(), newFakeOutbox(), nil); err == nil {
		t.Fatalf("expected error for nil registry")
	}
}

func TestSubscribe_SkipsProcessedEvents(t *testing.T) {
	bus := NewInMemoryBus()
	store := NewMemoryProcessedStore()
	calls := 0
	Subscribe(bus, EventTypeOf[sampleEvent](), "test.consumer", func(context.Context, any) error {
		calls++
		return nil
	}, store)

	ctx := WithEnvelope(context.Background(), Envelope{EventID: "evt-1"})
	for i := 0; i < 3; i++ {
		if err := bus.Publish(ctx, sampleEvent{}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single delivery, got %d", calls)
	}
}
