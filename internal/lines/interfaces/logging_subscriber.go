package interfaces

import (
	"context"
	"errors"
	"log"

	"subway-cloud/internal/eventing"
	"subway-cloud/internal/lines/application/events"
)

// LoggingSubscriber logs line events delivered by the bus.
type LoggingSubscriber struct {
	logger *log.Logger
}

// NewLoggingSubscriber constructs a logging subscriber.
func NewLoggingSubscriber(logger *log.Logger) *LoggingSubscriber {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingSubscriber{logger: logger}
}

// Register subscribes the logger to every line event. store may be nil.
func (s *LoggingSubscriber) Register(bus eventing.EventBus, store eventing.ProcessedStore) {
	for _, sample := range events.All() {
		eventing.Subscribe(bus, eventing.EventType(sample), "lines.log", s.Handle, store)
	}
}

// Handle logs one event.
func (s *LoggingSubscriber) Handle(ctx context.Context, event any) error {
	if s == nil {
		return errors.New("line subscriber: nil subscriber")
	}
	var eventID string
	if env, ok := eventing.EnvelopeFromContext(ctx); ok {
		eventID = env.EventID
	}
	switch evt := event.(type) {
	case events.LineCreated:
		s.logger.Printf("line created: line=%s name=%s up=%s down=%s distance=%d event=%s", evt.LineID, evt.Name, evt.UpStationID, evt.DownStationID, evt.Distance, eventID)
	case events.LineUpdated:
		s.logger.Printf("line updated: line=%s name=%s color=%s event=%s", evt.LineID, evt.Name, evt.Color, eventID)
	case events.LineDeleted:
		s.logger.Printf("line deleted: line=%s sections=%d event=%s", evt.LineID, evt.Sections, eventID)
	case events.SectionAppended:
		s.logger.Printf("line section appended: line=%s up=%s down=%s distance=%d sections=%d event=%s", evt.LineID, evt.UpStationID, evt.DownStationID, evt.Distance, evt.Sections, eventID)
	case events.SectionRemoved:
		s.logger.Printf("line section removed: line=%s station=%s sections=%d event=%s", evt.LineID, evt.StationID, evt.Sections, eventID)
	default:
		return eventing.ErrInvalidEventType
	}
	return nil
}
