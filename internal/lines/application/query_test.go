package application

import (
	"context"
	"errors"
	"testing"
	"time"

	lines "subway-cloud/internal/lines/domain"
	stations "subway-cloud/internal/stations/domain"
)

type mapRegistry map[string]string

func (m mapRegistry) Get(_ context.Context, id string) (*stations.Station, error) {
	name, ok := m[id]
	if !ok {
		return nil, nil
	}
	return &stations.Station{ID: id, Name: name}, nil
}

func TestQueryService_View(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	line, err := lines.NewLine("line-1", "Line 2", "green", lines.SectionSpec{
		ID: "sec-1", UpStationID: "S1", DownStationID: "S2", Distance: 7,
	}, now)
	if err != nil {
		t.Fatalf("new line: %v", err)
	}
	query, err := NewQueryService(mapRegistry{"S1": "Gangnam", "S2": "Yeoksam"})
	if err != nil {
		t.Fatalf("new query: %v", err)
	}
	view, err := query.View(context.Background(), line)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(view.Stations) != 2 || view.Stations[0].Name != "Gangnam" || view.Stations[1].Name != "Yeoksam" {
		t.Fatalf("unexpected stations: %+v", view.Stations)
	}
	if len(view.Sections) != 1 || view.Sections[0].Distance != 7 {
		t.Fatalf("unexpected sections: %+v", view.Sections)
	}
}

func TestQueryService_MissingStation(t *testing.T) {
	line, err := lines.NewLine("line-1", "Line 2", "green", lines.SectionSpec{
		ID: "sec-1", UpStationID: "S1", DownStationID: "S2", Distance: 7,
	}, time.Now())
	if err != nil {
		t.Fatalf("new line: %v", err)
	}
	query, err := NewQueryService(mapRegistry{"S1": "Gangnam"})
	if err != nil {
		t.Fatalf("new query: %v", err)
	}
	if _, err := query.View(context.Background(), line); !errors.Is(err, lines.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := query.View(context.Background(), nil); !errors.Is(err, lines.ErrNilLine) {
		t.Fatalf("expected ErrNilLine, got %v", err)
	}
}
