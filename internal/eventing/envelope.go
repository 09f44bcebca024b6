package eventing

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Envelope is the stored and delivered form of a line event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	Actor         string          `json:"actor,omitempty"`
	LineID        string          `json:"line_id"`
	SectionID     string          `json:"section_id,omitempty"`
	StationID     string          `json:"station_id,omitempty"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Scope names the line resources an event concerns.
type Scope struct {
	LineID     string
	SectionID  string
	StationID  string
	OccurredAt time.Time
}

// Scoped is implemented by events that carry a Scope. Envelopes of other
// events have empty resource ids.
type Scoped interface {
	EventScope() Scope
}

// Meta carries request-level envelope fields.
type Meta struct {
	CorrelationID string
	Actor         string
}

const schemaVersion = 1

// NewEventID generates a random event identifier.
func NewEventID() string {
	return uuid.NewString()
}

// BuildEnvelope encodes event and stamps ids, scope and request metadata.
// A missing correlation id falls back to the event id.
func BuildEnvelope(event any, meta Meta) (Envelope, error) {
	if event == nil {
		return Envelope{}, ErrNilEvent
	}
	eventType := EventType(event)
	if eventType == "" {
		return Envelope{}, ErrInvalidEventType
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}

	var scope Scope
	if scoped, ok := event.(Scoped); ok {
		scope = scoped.EventScope()
	}
	if scope.OccurredAt.IsZero() {
		scope.OccurredAt = time.Now()
	}

	env := Envelope{
		EventID:       NewEventID(),
		EventType:     eventType,
		OccurredAt:    scope.OccurredAt.UTC(),
		CorrelationID: meta.CorrelationID,
		Actor:         meta.Actor,
		LineID:        scope.LineID,
		SectionID:     scope.SectionID,
		StationID:     scope.StationID,
		SchemaVersion: schemaVersion,
		Payload:       payload,
	}
	if env.CorrelationID == "" {
		env.CorrelationID = env.EventID
	}
	return env, nil
}

// Validate reports envelopes that cannot be stored or routed.
func (e Envelope) Validate() error {
	switch {
	case e.EventID == "":
		return errors.New("eventing: envelope without event id")
	case e.EventType == "":
		return ErrInvalidEventType
	case len(e.Payload) == 0:
		return errors.New("eventing: envelope without payload")
	}
	return nil
}
