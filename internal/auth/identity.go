package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Role is a caller's access level. Higher roles include lower ones.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{RoleViewer: 1, RoleOperator: 2, RoleAdmin: 3}

// ParseRole accepts a role name in any case.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleRank[role]; !ok {
		return "", fmt.Errorf("%w: role %q", ErrInvalidToken, value)
	}
	return role, nil
}

// Covers reports whether r includes required.
func (r Role) Covers(required Role) bool {
	return roleRank[r] > 0 && roleRank[r] >= roleRank[required]
}

// Identity is the authenticated caller.
type Identity struct {
	Subject string
	Role    Role
	// Lines restricts an operator's writes to these line ids. Empty means
	// every line, plus line creation and station changes.
	Lines []string
}

// Scoped reports whether writes are limited to specific lines.
func (id Identity) Scoped() bool {
	return id.Role != RoleAdmin && len(id.Lines) > 0
}

// Allows reports whether the identity satisfies req.
func (id Identity) Allows(req Requirement) bool {
	if !id.Role.Covers(req.Role) {
		return false
	}
	if req.Role == RoleViewer || !id.Scoped() {
		return true
	}
	return req.LineID != "" && slices.Contains(id.Lines, req.LineID)
}

type identityKey struct{}

// WithIdentity stores the caller on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller set by the middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
