package audit

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"subway-cloud/internal/auth"
)

const maxUserAgent = 256

// FromRequest builds the entry for a change made through r. payload is
// stored as metadata; nil stores none.
func FromRequest(r *http.Request, action, resourceType, resourceID string, payload any) Entry {
	entry := Entry{
		ID:            NewID(),
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		CorrelationID: r.Header.Get("X-Request-ID"),
		IP:            clientIP(r),
		UserAgent:     truncate(r.UserAgent(), maxUserAgent),
		CreatedAt:     time.Now().UTC(),
	}
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		entry.Actor = id.Subject
		entry.Role = string(id.Role)
	}
	if payload != nil {
		if meta, err := json.Marshal(payload); err == nil {
			entry.Metadata = meta
			entry.PayloadDigest = DigestJSON(meta)
		}
	}
	return entry
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
