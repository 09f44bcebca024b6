package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

// Entry represents an audit log entry for a change to lines or stations.
type Entry struct {
	ID            string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	Metadata      json.RawMessage
	PayloadDigest string
	CorrelationID string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates an audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StdLogger writes audit entries to a *log.Logger when no database is configured.
type StdLogger struct {
	logger *log.Logger
}

// NewStdLogger constructs a StdLogger. A nil logger disables output.
func NewStdLogger(logger *log.Logger) *StdLogger {
	return &StdLogger{logger: logger}
}

// Log prints the entry on one line.
func (l *StdLogger) Log(_ context.Context, entry Entry) error {
	if l == nil || l.logger == nil {
		return nil
	}
	l.logger.Printf("audit: action=%s resource=%s/%s actor=%s role=%s ip=%s request=%s metadata=%s",
		entry.Action, entry.ResourceType, entry.ResourceID, entry.Actor, entry.Role, entry.IP, entry.CorrelationID, string(entry.Metadata))
	return nil
}
