package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	lines "subway-cloud/internal/lines/domain"
	linesmemory "subway-cloud/internal/lines/infrastructure/memory"
	"subway-cloud/internal/stations/application"
	stations "subway-cloud/internal/stations/domain"
	stationsmemory "subway-cloud/internal/stations/infrastructure/memory"
)

func newService(t *testing.T) (*application.Service, *linesmemory.LineRepository) {
	t.Helper()
	lineRepo := linesmemory.NewLineRepository()
	service, err := application.NewService(stationsmemory.NewStationRepository(), lineRepo)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, lineRepo
}

func TestCreateAndGetStation(t *testing.T) {
	service, _ := newService(t)
	ctx := context.Background()

	created, err := service.CreateStation(ctx, application.CreateStationRequest{Name: "  Gangnam "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.Name != "Gangnam" {
		t.Fatalf("unexpected station: %+v", created)
	}
	got, err := service.GetStation(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Gangnam" {
		t.Fatalf("expected Gangnam, got %s", got.Name)
	}
	list, err := service.ListStations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one station, got %d", len(list))
	}
}

func TestCreateStation_Validation(t *testing.T) {
	service, _ := newService(t)
	for _, name := range []string{"", "   ", strings.Repeat("가", stations.MaxNameLength+1)} {
		if _, err := service.CreateStation(context.Background(), application.CreateStationRequest{Name: name}); !errors.Is(err, stations.ErrValidation) {
			t.Fatalf("name %q: expected ErrValidation, got %v", name, err)
		}
	}
}

func TestDeleteStation(t *testing.T) {
	service, lineRepo := newService(t)
	ctx := context.Background()

	up, err := service.CreateStation(ctx, application.CreateStationRequest{Name: "Gangnam"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	down, err := service.CreateStation(ctx, application.CreateStationRequest{Name: "Yeoksam"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	line, err := lines.NewLine("line-1", "Line 2", "green", lines.SectionSpec{
		ID: "sec-1", UpStationID: up.ID, DownStationID: down.ID, Distance: 10,
	}, time.Now())
	if err != nil {
		t.Fatalf("new line: %v", err)
	}
	if err := lineRepo.Save(ctx, line); err != nil {
		t.Fatalf("save line: %v", err)
	}

	if err := service.DeleteStation(ctx, down.ID); !errors.Is(err, stations.ErrStationInUse) {
		t.Fatalf("expected ErrStationInUse, got %v", err)
	}
	if err := lineRepo.Delete(ctx, line.ID()); err != nil {
		t.Fatalf("delete line: %v", err)
	}
	if err := service.DeleteStation(ctx, down.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := service.GetStation(ctx, down.ID); !errors.Is(err, stations.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := service.DeleteStation(ctx, "missing"); !errors.Is(err, stations.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing, got %v", err)
	}
}
