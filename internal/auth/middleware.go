package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Middleware authenticates bearer tokens and enforces the route policy.
type Middleware struct {
	verifier *Verifier
	policy   Policy
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(verifier *Verifier, policy Policy) (*Middleware, error) {
	if verifier == nil {
		return nil, errors.New("auth middleware: nil verifier")
	}
	return &Middleware{verifier: verifier, policy: policy}, nil
}

// Wrap applies authentication and authorization to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, ok := m.policy.Require(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		id, err := m.verifier.Verify(bearerToken(r))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="subway"`)
			deny(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		if !id.Allows(req) {
			message := "requires role " + string(req.Role)
			if id.Scoped() {
				message += " on line " + req.LineID
			}
			deny(w, http.StatusForbidden, "forbidden", message)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func deny(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": message})
}
