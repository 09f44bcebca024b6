package memory

import (
	"context"
	"sort"
	"sync"

	lines "subway-cloud/internal/lines/domain"
)

// LineRepository is an in-memory repository for lines and their sections.
type LineRepository struct {
	mu   sync.RWMutex
	data map[string]*lines.Line
}

// NewLineRepository constructs a repository.
func NewLineRepository() *LineRepository {
	return &LineRepository{data: make(map[string]*lines.Line)}
}

// Load returns a detached copy of the line.
func (r *LineRepository) Load(ctx context.Context, id string) (*lines.Line, error) {
	_ = ctx
	r.mu.RLock()
	line := r.data[id]
	r.mu.RUnlock()
	if line == nil {
		return nil, nil
	}
	return line.Clone(), nil
}

// List returns all lines ordered by creation time.
func (r *LineRepository) List(ctx context.Context) ([]*lines.Line, error) {
	_ = ctx
	r.mu.RLock()
	list := make([]*lines.Line, 0, len(r.data))
	for _, line := range r.data {
		list = append(list, line.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt().Equal(list[j].CreatedAt()) {
			return list[i].CreatedAt().Before(list[j].CreatedAt())
		}
		return list[i].ID() < list[j].ID()
	})
	return list, nil
}

// Save persists the line with its chain (overwrites existing).
func (r *LineRepository) Save(ctx context.Context, line *lines.Line) error {
	_ = ctx
	if line == nil {
		return lines.ErrNilLine
	}
	copy := line.Clone()
	r.mu.Lock()
	r.data[line.ID()] = copy
	r.mu.Unlock()

	line.MarkPersisted()
	return nil
}

// Delete removes the line; its sections go with it.
func (r *LineRepository) Delete(ctx context.Context, id string) error {
	_ = ctx
	r.mu.Lock()
	delete(r.data, id)
	r.mu.Unlock()
	return nil
}

// StationInUse reports whether any section references the station.
func (r *LineRepository) StationInUse(ctx context.Context, stationID string) (bool, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, line := range r.data {
		for _, section := range line.Chain().Sections() {
			if section.UpStationID() == stationID || section.DownStationID() == stationID {
				return true, nil
			}
		}
	}
	return false, nil
}
