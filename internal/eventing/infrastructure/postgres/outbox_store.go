package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"subway-cloud/internal/eventing"
)

const (
	defaultOutboxTable    = "event_outbox"
	defaultProcessedTable = "processed_events"
)

// OutboxStore keeps line event envelopes until the dispatcher delivers them.
type OutboxStore struct {
	db    *sql.DB
	table string
}

var _ eventing.OutboxStore = (*OutboxStore)(nil)

// NewOutboxStore constructs an outbox store.
func NewOutboxStore(db *sql.DB, opts ...OutboxOption) *OutboxStore {
	store := &OutboxStore{db: db, table: defaultOutboxTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// OutboxOption configures the outbox store.
type OutboxOption func(*OutboxStore)

// WithOutboxTable overrides the table name.
func WithOutboxTable(table string) OutboxOption {
	return func(store *OutboxStore) {
		if table != "" {
			store.table = table
		}
	}
}

// Execer runs a statement. *sql.DB and *sql.Tx both satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Insert stores env as pending using exec, so callers can enlist the insert in
// their own transaction. A nil exec uses the store's db.
func (s *OutboxStore) Insert(ctx context.Context, exec Execer, env eventing.Envelope) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("outbox store: nil db")
	}
	if err := env.Validate(); err != nil {
		return "", err
	}
	if exec == nil {
		exec = s.db
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	outboxID := "outbox-" + env.EventID
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, event_id, event_type, line_id, section_id, station_id, correlation_id,
	payload, status, attempts, next_attempt_at, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', 0, $9, $9)
ON CONFLICT (event_id) DO NOTHING`, s.table)

	if _, err := exec.ExecContext(ctx, query,
		outboxID, env.EventID, env.EventType, env.LineID, env.SectionID, env.StationID, env.CorrelationID,
		payload, env.OccurredAt,
	); err != nil {
		return "", err
	}
	return outboxID, nil
}

// ListDue returns pending records due at now, oldest first.
func (s *OutboxStore) ListDue(ctx context.Context, now time.Time, limit int) ([]eventing.OutboxRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("outbox store: nil db")
	}
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT id, payload, attempts
FROM %s
WHERE status = 'pending' AND next_attempt_at <= $1
ORDER BY created_at ASC, id ASC
LIMIT $2`, s.table)

	rows, err := s.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []eventing.OutboxRecord
	for rows.Next() {
		var record eventing.OutboxRecord
		var payload []byte
		if err := rows.Scan(&record.ID, &payload, &record.Attempts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &record.Envelope); err != nil {
			return nil, fmt.Errorf("outbox store: record %s: %w", record.ID, err)
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

// MarkSent records delivery.
func (s *OutboxStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, fmt.Sprintf(`
UPDATE %s SET status = 'sent', sent_at = $2, last_error = ''
WHERE id = $1`, s.table), id, at)
}

// MarkRetry keeps the record pending until next.
func (s *OutboxStore) MarkRetry(ctx context.Context, id string, attempts int, next time.Time, reason string) error {
	return s.update(ctx, fmt.Sprintf(`
UPDATE %s SET attempts = $2, next_attempt_at = $3, last_error = $4
WHERE id = $1`, s.table), id, attempts, next, reason)
}

// MarkDead stops delivery of the record.
func (s *OutboxStore) MarkDead(ctx context.Context, id string, attempts int, reason string) error {
	return s.update(ctx, fmt.Sprintf(`
UPDATE %s SET status = 'dead', attempts = $2, last_error = $3
WHERE id = $1`, s.table), id, attempts, reason)
}

func (s *OutboxStore) update(ctx context.Context, query string, args ...any) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// ProcessedStore records which consumers handled which events.
type ProcessedStore struct {
	db    *sql.DB
	table string
}

// NewProcessedStore constructs a processed store.
func NewProcessedStore(db *sql.DB) *ProcessedStore {
	return &ProcessedStore{db: db, table: defaultProcessedTable}
}

// HasProcessed checks if the event was already processed by the consumer.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("processed store: nil db")
	}
	if eventID == "" || consumerName == "" {
		return false, errors.New("processed store: invalid arguments")
	}
	query := fmt.Sprintf(`
SELECT EXISTS (
	SELECT 1 FROM %s WHERE event_id = $1 AND consumer_name = $2
)`, s.table)
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, eventID, consumerName).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// MarkProcessed records an event as processed.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	if s == nil || s.db == nil {
		return errors.New("processed store: nil db")
	}
	if eventID == "" || consumerName == "" {
		return errors.New("processed store: invalid arguments")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (event_id, consumer_name, processed_at)
VALUES ($1, $2, $3)
ON CONFLICT (event_id, consumer_name) DO NOTHING`, s.table)
	_, err := s.db.ExecContext(ctx, query, eventID, consumerName, time.Now().UTC())
	return err
}
