package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	lines "subway-cloud/internal/lines/domain"
	stations "subway-cloud/internal/stations/domain"
)

// StationView is a station as presented on a line.
type StationView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SectionView is a stored section as presented on a line.
type SectionView struct {
	ID            string `json:"id"`
	UpStationID   string `json:"upStationId"`
	DownStationID string `json:"downStationId"`
	Distance      int64  `json:"distance"`
}

// LineView is a line with its derived station sequence.
type LineView struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Color     string        `json:"color"`
	Distance  int64         `json:"distance"`
	Stations  []StationView `json:"stations"`
	Sections  []SectionView `json:"sections"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// QueryService projects lines into views, resolving station names.
type QueryService struct {
	registry stations.Registry
}

// NewQueryService constructs a QueryService.
func NewQueryService(registry stations.Registry) (*QueryService, error) {
	if registry == nil {
		return nil, errors.New("line query: nil station registry")
	}
	return &QueryService{registry: registry}, nil
}

// View builds the presentation of one line.
func (q *QueryService) View(ctx context.Context, line *lines.Line) (*LineView, error) {
	if line == nil {
		return nil, lines.ErrNilLine
	}
	seq, err := line.Chain().StationSequence()
	if err != nil {
		return nil, err
	}
	view := &LineView{
		ID:        line.ID(),
		Name:      line.Name(),
		Color:     line.Color(),
		Distance:  line.Distance(),
		CreatedAt: line.CreatedAt(),
		UpdatedAt: line.UpdatedAt(),
	}
	for stationID := range seq {
		station, err := q.registry.Get(ctx, stationID)
		if err != nil {
			return nil, err
		}
		if station == nil {
			return nil, fmt.Errorf("%w: station %s on line %s", lines.ErrNotFound, stationID, line.ID())
		}
		view.Stations = append(view.Stations, StationView{ID: station.ID, Name: station.Name})
	}
	for _, section := range line.Chain().Sections() {
		view.Sections = append(view.Sections, SectionView{
			ID:            section.ID(),
			UpStationID:   section.UpStationID(),
			DownStationID: section.DownStationID(),
			Distance:      section.Distance(),
		})
	}
	return view, nil
}

// Views builds views for several lines, preserving order.
func (q *QueryService) Views(ctx context.Context, list []*lines.Line) ([]LineView, error) {
	views := make([]LineView, 0, len(list))
	for _, line := range list {
		view, err := q.View(ctx, line)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}
