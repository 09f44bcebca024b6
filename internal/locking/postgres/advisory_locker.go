package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"hash/fnv"
	"slices"
	"sync"
	"time"

	"subway-cloud/internal/locking"
)

// AdvisoryLocker serializes writers across instances with session-level
// Postgres advisory locks. All keys of one Lock call are taken on a single
// dedicated connection, in ascending lock id order.
type AdvisoryLocker struct {
	db *sql.DB
}

var _ locking.Locker = (*AdvisoryLocker)(nil)

// NewAdvisoryLocker constructs a locker.
func NewAdvisoryLocker(db *sql.DB) (*AdvisoryLocker, error) {
	if db == nil {
		return nil, errors.New("advisory locker: nil db")
	}
	return &AdvisoryLocker{db: db}, nil
}

// LockID maps a key to the bigint advisory lock id.
func LockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// Lock blocks until every advisory lock for keys is held or ctx is done.
func (l *AdvisoryLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	if l == nil || l.db == nil {
		return nil, errors.New("advisory locker: nil db")
	}
	ordered, err := locking.Keys(keys...)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(ordered))
	for _, key := range ordered {
		ids = append(ids, LockID(key))
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	held := 0
	for _, id := range ids {
		if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, id); err != nil {
			release(conn, ids[:held])
			return nil, err
		}
		held++
	}

	var once sync.Once
	return func() {
		once.Do(func() { release(conn, ids) })
	}, nil
}

func release(conn *sql.Conn, ids []int64) {
	// The caller's ctx may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(ids) - 1; i >= 0; i-- {
		if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, ids[i]); err != nil {
			// Discard the session so the server drops its locks.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			break
		}
	}
	_ = conn.Close()
}
