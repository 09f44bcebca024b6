package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	stations "subway-cloud/internal/stations/domain"
)

// StationRepository is an in-memory station store.
type StationRepository struct {
	mu   sync.RWMutex
	data map[string]stations.Station
}

// NewStationRepository constructs a repository.
func NewStationRepository() *StationRepository {
	return &StationRepository{data: make(map[string]stations.Station)}
}

// Get loads a station by id.
func (r *StationRepository) Get(ctx context.Context, id string) (*stations.Station, error) {
	_ = ctx
	if id == "" {
		return nil, errors.New("station repo: empty id")
	}
	r.mu.RLock()
	station, ok := r.data[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &station, nil
}

// List returns stations ordered by creation time.
func (r *StationRepository) List(ctx context.Context) ([]stations.Station, error) {
	_ = ctx
	r.mu.RLock()
	list := make([]stations.Station, 0, len(r.data))
	for _, station := range r.data {
		list = append(list, station)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

// Save upserts a station.
func (r *StationRepository) Save(ctx context.Context, station *stations.Station) error {
	_ = ctx
	if station == nil {
		return stations.ErrNilStation
	}
	station.Name = strings.TrimSpace(station.Name)
	if err := station.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.mu.Lock()
	if existing, ok := r.data[station.ID]; ok && station.CreatedAt.IsZero() {
		station.CreatedAt = existing.CreatedAt
	}
	if station.CreatedAt.IsZero() {
		station.CreatedAt = now
	}
	station.UpdatedAt = now
	r.data[station.ID] = *station
	r.mu.Unlock()
	return nil
}

// Delete removes a station. Missing stations are ignored.
func (r *StationRepository) Delete(ctx context.Context, id string) error {
	_ = ctx
	r.mu.Lock()
	delete(r.data, id)
	r.mu.Unlock()
	return nil
}
