package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"subway-cloud/internal/eventing"
	eventingrepo "subway-cloud/internal/eventing/infrastructure/postgres"
	lines "subway-cloud/internal/lines/domain"
)

// foreignKeyViolation is the SQLSTATE raised when a section names a missing station.
const foreignKeyViolation = "23503"

const (
	defaultLinesTable    = "lines"
	defaultSectionsTable = "line_sections"
)

// LineRepository persists lines and their ordered sections.
type LineRepository struct {
	db            *sql.DB
	linesTable    string
	sectionsTable string
	outbox        *eventingrepo.OutboxStore
}

// LineOption configures the repository.
type LineOption func(*LineRepository)

// WithLinesTable overrides the default lines table name.
func WithLinesTable(table string) LineOption {
	return func(repo *LineRepository) {
		if table != "" {
			repo.linesTable = table
		}
	}
}

// WithSectionsTable overrides the default sections table name.
func WithSectionsTable(table string) LineOption {
	return func(repo *LineRepository) {
		if table != "" {
			repo.sectionsTable = table
		}
	}
}

// WithOutbox lets SaveWithEvents and DeleteWithEvents record envelopes in
// the same transaction as the line change.
func WithOutbox(outbox *eventingrepo.OutboxStore) LineOption {
	return func(repo *LineRepository) {
		repo.outbox = outbox
	}
}

// NewLineRepository constructs a repository.
func NewLineRepository(db *sql.DB, opts ...LineOption) *LineRepository {
	repo := &LineRepository{db: db, linesTable: defaultLinesTable, sectionsTable: defaultSectionsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

type lineRow struct {
	id        string
	name      string
	color     string
	createdAt time.Time
	updatedAt time.Time
}

// Load reads a line and its sections in chain order.
func (r *LineRepository) Load(ctx context.Context, id string) (*lines.Line, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("line repo: nil db")
	}
	if id == "" {
		return nil, errors.New("line repo: empty id")
	}

	var row lineRow
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT id, name, color, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.linesTable), id).Scan(&row.id, &row.name, &row.color, &row.createdAt, &row.updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, line_id, up_station_id, down_station_id, distance
FROM %s
WHERE line_id = $1
ORDER BY position ASC`, r.sectionsTable), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	grouped, err := scanSections(rows)
	if err != nil {
		return nil, err
	}
	return restore(row, grouped[id])
}

// List reads all lines ordered by creation time.
func (r *LineRepository) List(ctx context.Context) ([]*lines.Line, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("line repo: nil db")
	}

	lineRows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, name, color, created_at, updated_at
FROM %s
ORDER BY created_at ASC, id ASC`, r.linesTable))
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()
	var heads []lineRow
	for lineRows.Next() {
		var row lineRow
		if err := lineRows.Scan(&row.id, &row.name, &row.color, &row.createdAt, &row.updatedAt); err != nil {
			return nil, err
		}
		heads = append(heads, row)
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}
	if len(heads) == 0 {
		return nil, nil
	}

	sectionRows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, line_id, up_station_id, down_station_id, distance
FROM %s
ORDER BY line_id ASC, position ASC`, r.sectionsTable))
	if err != nil {
		return nil, err
	}
	defer sectionRows.Close()
	grouped, err := scanSections(sectionRows)
	if err != nil {
		return nil, err
	}

	result := make([]*lines.Line, 0, len(heads))
	for _, head := range heads {
		line, err := restore(head, grouped[head.id])
		if err != nil {
			return nil, err
		}
		result = append(result, line)
	}
	return result, nil
}

// Save writes the line row and replaces its sections in one transaction.
func (r *LineRepository) Save(ctx context.Context, line *lines.Line) error {
	return r.SaveWithEvents(ctx, line)
}

// SaveWithEvents saves line and inserts envs into the outbox atomically.
func (r *LineRepository) SaveWithEvents(ctx context.Context, line *lines.Line, envs ...eventing.Envelope) error {
	if r == nil || r.db == nil {
		return errors.New("line repo: nil db")
	}
	if line == nil {
		return lines.ErrNilLine
	}
	err := r.inTx(ctx, envs, func(tx *sql.Tx) error {
		return r.saveTx(ctx, tx, line)
	})
	if err != nil {
		return err
	}
	line.MarkPersisted()
	return nil
}

// Delete removes a line. Sections cascade.
func (r *LineRepository) Delete(ctx context.Context, id string) error {
	return r.DeleteWithEvents(ctx, id)
}

// DeleteWithEvents deletes the line and inserts envs into the outbox atomically.
func (r *LineRepository) DeleteWithEvents(ctx context.Context, id string, envs ...eventing.Envelope) error {
	if r == nil || r.db == nil {
		return errors.New("line repo: nil db")
	}
	if id == "" {
		return errors.New("line repo: empty id")
	}
	return r.inTx(ctx, envs, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.linesTable), id)
		return err
	})
}

func (r *LineRepository) inTx(ctx context.Context, envs []eventing.Envelope, fn func(*sql.Tx) error) error {
	if len(envs) > 0 && r.outbox == nil {
		return errors.New("line repo: events given without outbox")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, env := range envs {
		if _, err := r.outbox.Insert(ctx, tx, env); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("line repo: outbox: %w", err)
		}
	}
	return tx.Commit()
}

func (r *LineRepository) saveTx(ctx context.Context, tx *sql.Tx, line *lines.Line) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	id, name, color, distance, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6
)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	color = EXCLUDED.color,
	distance = EXCLUDED.distance,
	updated_at = EXCLUDED.updated_at`, r.linesTable),
		line.ID(), line.Name(), line.Color(), line.Distance(), line.CreatedAt(), line.UpdatedAt(),
	)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE line_id = $1`, r.sectionsTable), line.ID()); err != nil {
		return err
	}
	for position, section := range line.Chain().Sections() {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	id, line_id, position, up_station_id, down_station_id, distance
) VALUES ($1,$2,$3,$4,$5,$6)`, r.sectionsTable),
			section.ID(), line.ID(), position, section.UpStationID(), section.DownStationID(), section.Distance())
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
				return fmt.Errorf("%w: section %s references a missing station", lines.ErrNotFound, section.ID())
			}
			return err
		}
	}
	return nil
}

// StationInUse reports whether any section references the station.
func (r *LineRepository) StationInUse(ctx context.Context, stationID string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("line repo: nil db")
	}
	var exists bool
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT EXISTS (
	SELECT 1 FROM %s
	WHERE up_station_id = $1 OR down_station_id = $1
)`, r.sectionsTable), stationID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func scanSections(rows *sql.Rows) (map[string][]lines.Section, error) {
	grouped := make(map[string][]lines.Section)
	for rows.Next() {
		var (
			id, lineID, up, down string
			distance             int64
		)
		if err := rows.Scan(&id, &lineID, &up, &down, &distance); err != nil {
			return nil, err
		}
		section, err := lines.NewSection(id, lineID, up, down, distance)
		if err != nil {
			return nil, fmt.Errorf("line repo: section %s: %w", id, err)
		}
		grouped[lineID] = append(grouped[lineID], section)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grouped, nil
}

func restore(row lineRow, sections []lines.Section) (*lines.Line, error) {
	return lines.RestoreLine(row.id, row.name, row.color, sections, row.createdAt, row.updatedAt)
}
