package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	stations "subway-cloud/internal/stations/domain"
)

// foreignKeyViolation is the SQLSTATE raised when a section still references the station.
const foreignKeyViolation = "23503"

const defaultStationsTable = "stations"

// StationRepository is a Postgres implementation for stations.
type StationRepository struct {
	db    DBTX
	table string
}

// NewStationRepository constructs a repository.
func NewStationRepository(db DBTX, opts ...StationOption) *StationRepository {
	repo := &StationRepository{db: db, table: defaultStationsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// StationOption configures the repository.
type StationOption func(*StationRepository)

// WithStationTable overrides the default table name.
func WithStationTable(table string) StationOption {
	return func(repo *StationRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a station by id.
func (r *StationRepository) Get(ctx context.Context, id string) (*stations.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	if id == "" {
		return nil, errors.New("station repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, name, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var station stations.Station
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&station.ID,
		&station.Name,
		&station.CreatedAt,
		&station.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	station.CreatedAt = station.CreatedAt.UTC()
	station.UpdatedAt = station.UpdatedAt.UTC()
	return &station, nil
}

// List loads all stations ordered by creation time.
func (r *StationRepository) List(ctx context.Context) ([]stations.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, name, created_at, updated_at
FROM %s
ORDER BY created_at ASC, id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []stations.Station
	for rows.Next() {
		var station stations.Station
		if err := rows.Scan(
			&station.ID,
			&station.Name,
			&station.CreatedAt,
			&station.UpdatedAt,
		); err != nil {
			return nil, err
		}
		station.CreatedAt = station.CreatedAt.UTC()
		station.UpdatedAt = station.UpdatedAt.UTC()
		result = append(result, station)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a station.
func (r *StationRepository) Save(ctx context.Context, station *stations.Station) error {
	if r == nil || r.db == nil {
		return errors.New("station repo: nil db")
	}
	if station == nil {
		return stations.ErrNilStation
	}
	station.Name = strings.TrimSpace(station.Name)
	if err := station.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if station.CreatedAt.IsZero() {
		station.CreatedAt = now
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	name,
	created_at,
	updated_at
) VALUES (
	$1, $2, $3, $4
)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	updated_at = EXCLUDED.updated_at`, r.table)

	if _, err := r.db.ExecContext(ctx, query, station.ID, station.Name, station.CreatedAt, now); err != nil {
		return err
	}
	station.UpdatedAt = now
	return nil
}

// Delete removes a station. Missing stations are ignored; a station still
// referenced by a section fails with ErrStationInUse.
func (r *StationRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("station repo: nil db")
	}
	if id == "" {
		return errors.New("station repo: empty id")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table)
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return fmt.Errorf("%w: station %s (%s)", stations.ErrStationInUse, id, pgErr.ConstraintName)
		}
		return err
	}
	return nil
}
