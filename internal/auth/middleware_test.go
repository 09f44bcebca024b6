package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func newTestMiddleware(t *testing.T, opts ...VerifierOption) *Middleware {
	t.Helper()
	verifier, err := NewVerifier(testSecret, opts...)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	mw, err := NewMiddleware(verifier, NewPolicy("/healthz", "/metrics"))
	if err != nil {
		t.Fatalf("new middleware: %v", err)
	}
	return mw
}

func TestMiddleware_NoToken(t *testing.T) {
	handler := newTestMiddleware(t).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lines", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if resp.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body["error"] != "unauthorized" {
		t.Fatalf("unexpected body %v (%v)", body, err)
	}
}

func TestMiddleware_ExemptAndUnprotectedPaths(t *testing.T) {
	handler := newTestMiddleware(t).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for _, path := range []string{"/healthz", "/metrics", "/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestMiddleware_Roles(t *testing.T) {
	cases := []struct {
		name   string
		role   string
		lines  []string
		method string
		path   string
		want   int
	}{
		{"viewer reads lines", "viewer", nil, http.MethodGet, "/api/v1/lines", http.StatusOK},
		{"viewer reads line", "viewer", nil, http.MethodGet, "/api/v1/lines/line-1", http.StatusOK},
		{"viewer exports", "viewer", nil, http.MethodGet, "/api/v1/lines/line-1/export.xlsx", http.StatusOK},
		{"viewer cannot create line", "viewer", nil, http.MethodPost, "/api/v1/lines", http.StatusForbidden},
		{"viewer cannot append", "viewer", nil, http.MethodPost, "/api/v1/lines/line-1/sections", http.StatusForbidden},
		{"operator appends", "operator", nil, http.MethodPost, "/api/v1/lines/line-1/sections", http.StatusOK},
		{"operator removes section", "operator", nil, http.MethodDelete, "/api/v1/lines/line-1/sections", http.StatusOK},
		{"operator cannot delete line", "operator", nil, http.MethodDelete, "/api/v1/lines/line-1", http.StatusForbidden},
		{"admin deletes line", "admin", nil, http.MethodDelete, "/api/v1/lines/line-1", http.StatusOK},
		{"operator creates station", "operator", nil, http.MethodPost, "/api/v1/stations", http.StatusOK},
		{"operator cannot delete station", "operator", nil, http.MethodDelete, "/api/v1/stations/s-1", http.StatusForbidden},
		{"role is case insensitive", "Operator", nil, http.MethodPut, "/api/v1/lines/line-1", http.StatusOK},
		{"scoped operator appends to own line", "operator", []string{"line-1"}, http.MethodPost, "/api/v1/lines/line-1/sections", http.StatusOK},
		{"scoped operator renames own line", "operator", []string{"line-1"}, http.MethodPut, "/api/v1/lines/line-1", http.StatusOK},
		{"scoped operator cannot touch other line", "operator", []string{"line-1"}, http.MethodPost, "/api/v1/lines/line-2/sections", http.StatusForbidden},
		{"scoped operator cannot create lines", "operator", []string{"line-1"}, http.MethodPost, "/api/v1/lines", http.StatusForbidden},
		{"scoped operator cannot create stations", "operator", []string{"line-1"}, http.MethodPost, "/api/v1/stations", http.StatusForbidden},
		{"scoped operator still reads everything", "operator", []string{"line-1"}, http.MethodGet, "/api/v1/lines/line-2", http.StatusOK},
		{"admin ignores scope", "admin", []string{"line-1"}, http.MethodDelete, "/api/v1/lines/line-2", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got Identity
			handler := newTestMiddleware(t).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = IdentityFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("Authorization", "Bearer "+mustToken(t, testSecret, tc.role, tc.lines...))
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.Code)
			}
			if tc.want == http.StatusOK && (got.Subject != "user-1" || !got.Role.Covers(RoleViewer)) {
				t.Fatalf("expected identity in context, got %+v", got)
			}
		})
	}
}

func TestVerifier_RejectsBadTokens(t *testing.T) {
	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	verifier, err := NewVerifier(testSecret, WithIssuer("subway"), WithVerifierClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	sign := func(secret []byte, claims Claims) string {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return signed
	}
	valid := Claims{
		Role: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "subway",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	if id, err := verifier.Verify(sign(testSecret, valid)); err != nil || id.Role != RoleOperator {
		t.Fatalf("expected valid token, got %+v, %v", id, err)
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	noExpiry := valid
	noExpiry.ExpiresAt = nil
	wrongIssuer := valid
	wrongIssuer.Issuer = "other"
	noSubject := valid
	noSubject.Subject = ""
	badRole := valid
	badRole.Role = "root"

	cases := map[string]string{
		"wrong secret": sign([]byte("other-secret"), valid),
		"expired":      sign(testSecret, expired),
		"no expiry":    sign(testSecret, noExpiry),
		"wrong issuer": sign(testSecret, wrongIssuer),
		"no subject":   sign(testSecret, noSubject),
		"unknown role": sign(testSecret, badRole),
		"garbage":      "not-a-jwt",
	}
	for name, token := range cases {
		if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
	if _, err := verifier.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if _, err := NewVerifier(nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestRole_Covers(t *testing.T) {
	if !RoleAdmin.Covers(RoleOperator) || !RoleOperator.Covers(RoleViewer) {
		t.Fatalf("expected higher roles to cover lower ones")
	}
	if RoleViewer.Covers(RoleOperator) || Role("").Covers(RoleViewer) {
		t.Fatalf("expected lower or unknown roles not to cover")
	}
}

func mustToken(t *testing.T, secret []byte, role string, lines ...string) string {
	t.Helper()
	claims := Claims{
		Role:  role,
		Lines: lines,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
