package interfaces

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
	"time"

	"subway-cloud/internal/eventing"
	"subway-cloud/internal/lines/application/events"
)

func TestLoggingSubscriber_LogsEveryLineEvent(t *testing.T) {
	var buf bytes.Buffer
	subscriber := NewLoggingSubscriber(log.New(&buf, "", 0))
	bus := eventing.NewInMemoryBus()
	subscriber.Register(bus, eventing.NewMemoryProcessedStore())
	publisher, err := eventing.NewPublisher(bus)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	for _, event := range []any{
		events.LineCreated{LineID: "line-1", Name: "Line 2", UpStationID: "S1", DownStationID: "S2", Distance: 10, OccurredAt: now},
		events.SectionAppended{LineID: "line-1", UpStationID: "S2", DownStationID: "S3", Distance: 5, Sections: 2, OccurredAt: now},
		events.SectionRemoved{LineID: "line-1", StationID: "S3", Sections: 1, OccurredAt: now},
		events.LineUpdated{LineID: "line-1", Name: "Line 9", OccurredAt: now},
		events.LineDeleted{LineID: "line-1", Sections: 1, OccurredAt: now},
	} {
		if err := publisher.Publish(ctx, event); err != nil {
			t.Fatalf("publish %T: %v", event, err)
		}
	}

	out := buf.String()
	for _, want := range []string{
		"line created: line=line-1",
		"line section appended: line=line-1 up=S2 down=S3",
		"line section removed: line=line-1 station=S3",
		"line updated: line=line-1 name=Line 9",
		"line deleted: line=line-1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestLoggingSubscriber_UnknownEvent(t *testing.T) {
	subscriber := NewLoggingSubscriber(log.New(&bytes.Buffer{}, "", 0))
	if err := subscriber.Handle(context.Background(), struct{}{}); err == nil {
		t.Fatalf("expected error for unknown event")
	}
}
