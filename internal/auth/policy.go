package auth

import (
	"net/http"
	"strings"
)

// Requirement is what a request needs from the caller. LineID is set for
// writes to one existing line.
type Requirement struct {
	Role   Role
	LineID string
}

// Policy maps API routes to requirements.
type Policy struct {
	exempt map[string]struct{}
}

// NewPolicy builds a policy. Exempt paths skip authentication entirely.
func NewPolicy(exemptPaths ...string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{exempt: set}
}

// Require resolves the requirement for r. ok is false for unprotected paths.
func (p Policy) Require(r *http.Request) (req Requirement, ok bool) {
	if r == nil {
		return Requirement{}, false
	}
	if _, exempt := p.exempt[r.URL.Path]; exempt {
		return Requirement{}, false
	}
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if segments[0] != "api" {
		return Requirement{}, false
	}
	if isRead(r.Method) {
		return Requirement{Role: RoleViewer}, true
	}
	if len(segments) < 3 || segments[1] != "v1" {
		return Requirement{Role: RoleOperator}, true
	}

	// /api/v1/{resource}/{id}/...
	resource := segments[2]
	var id string
	if len(segments) > 3 {
		id = segments[3]
	}
	deleteResource := r.Method == http.MethodDelete && len(segments) == 4

	switch resource {
	case "lines":
		if deleteResource {
			return Requirement{Role: RoleAdmin, LineID: id}, true
		}
		return Requirement{Role: RoleOperator, LineID: id}, true
	case "stations":
		if deleteResource {
			return Requirement{Role: RoleAdmin}, true
		}
		return Requirement{Role: RoleOperator}, true
	}
	return Requirement{Role: RoleOperator}, true
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
