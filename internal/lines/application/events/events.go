package events

import (
	"time"

	"subway-cloud/internal/eventing"
)

// LineCreated is published after a line and its first section are stored.
type LineCreated struct {
	LineID        string    `json:"line_id"`
	Name          string    `json:"name"`
	Color         string    `json:"color"`
	SectionID     string    `json:"section_id"`
	UpStationID   string    `json:"up_station_id"`
	DownStationID string    `json:"down_station_id"`
	Distance      int64     `json:"distance"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// LineUpdated is published after a rename.
type LineUpdated struct {
	LineID     string    `json:"line_id"`
	Name       string    `json:"name"`
	Color      string    `json:"color"`
	OccurredAt time.Time `json:"occurred_at"`
}

// LineDeleted is published after a line and all of its sections are removed.
type LineDeleted struct {
	LineID     string    `json:"line_id"`
	Sections   int       `json:"sections"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SectionAppended is published after a section is added at the terminus.
type SectionAppended struct {
	LineID        string    `json:"line_id"`
	SectionID     string    `json:"section_id"`
	UpStationID   string    `json:"up_station_id"`
	DownStationID string    `json:"down_station_id"`
	Distance      int64     `json:"distance"`
	Sections      int       `json:"sections"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// SectionRemoved is published after the terminus section is removed.
type SectionRemoved struct {
	LineID     string    `json:"line_id"`
	SectionID  string    `json:"section_id"`
	StationID  string    `json:"station_id"`
	Sections   int       `json:"sections"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e LineCreated) EventScope() eventing.Scope {
	return eventing.Scope{LineID: e.LineID, SectionID: e.SectionID, OccurredAt: e.OccurredAt}
}

func (e LineUpdated) EventScope() eventing.Scope {
	return eventing.Scope{LineID: e.LineID, OccurredAt: e.OccurredAt}
}

func (e LineDeleted) EventScope() eventing.Scope {
	return eventing.Scope{LineID: e.LineID, OccurredAt: e.OccurredAt}
}

// EventScope names the appended section and its new terminus station.
func (e SectionAppended) EventScope() eventing.Scope {
	return eventing.Scope{LineID: e.LineID, SectionID: e.SectionID, StationID: e.DownStationID, OccurredAt: e.OccurredAt}
}

// EventScope names the removed section and the station it detached.
func (e SectionRemoved) EventScope() eventing.Scope {
	return eventing.Scope{LineID: e.LineID, SectionID: e.SectionID, StationID: e.StationID, OccurredAt: e.OccurredAt}
}

// All returns one sample of every line event for registry registration.
func All() []any {
	return []any{LineCreated{}, LineUpdated{}, LineDeleted{}, SectionAppended{}, SectionRemoved{}}
}
