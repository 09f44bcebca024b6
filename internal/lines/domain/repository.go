package lines

import "context"

// Repository persists line aggregates together with their sections.
// Load returns nil, nil when the line does not exist.
type Repository interface {
	Load(ctx context.Context, id string) (*Line, error)
	List(ctx context.Context) ([]*Line, error)
	Save(ctx context.Context, line *Line) error
	Delete(ctx context.Context, id string) error
	StationInUse(ctx context.Context, stationID string) (bool, error)
}
