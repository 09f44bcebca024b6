package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultAuditTable = "audit_logs"

// Repository stores audit entries in Postgres.
type Repository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*Repository)

// WithAuditTable overrides the table name.
func WithAuditTable(table string) RepositoryOption {
	return func(r *Repository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB, opts ...RepositoryOption) (*Repository, error) {
	if db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	repo := &Repository{db: db, table: defaultAuditTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

// Log inserts entry, filling id, time and digest when missing. Replayed ids
// are ignored.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.Action == "" || entry.ResourceType == "" {
		return errors.New("audit repo: action and resource type required")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}

	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	id, actor, role, action, resource_type, resource_id, metadata,
	payload_digest, correlation_id, ip, user_agent, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO NOTHING`, r.table),
		entry.ID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID, metadata,
		entry.PayloadDigest, entry.CorrelationID, entry.IP, entry.UserAgent, entry.CreatedAt)
	return err
}
