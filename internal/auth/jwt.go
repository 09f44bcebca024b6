package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no bearer token is presented.
	ErrMissingToken = errors.New("auth: missing token")
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims are the token claims this service reads. Lines scopes operator
// tokens to specific line ids.
type Claims struct {
	Role  string   `json:"role"`
	Lines []string `json:"lines,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 bearer tokens.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithIssuer requires the iss claim to match.
func WithIssuer(issuer string) VerifierOption {
	return func(v *Verifier) { v.issuer = issuer }
}

// WithLeeway tolerates clock skew on exp and nbf.
func WithLeeway(leeway time.Duration) VerifierOption {
	return func(v *Verifier) { v.leeway = leeway }
}

// WithVerifierClock overrides the time used for expiry checks.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier constructs a verifier for secret.
func NewVerifier(secret []byte, opts ...VerifierOption) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}
	v := &Verifier{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify parses token and returns the caller. Tokens must carry exp, a
// subject and a known role.
func (v *Verifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	claims := &Claims{}
	_, err := jwt.NewParser(parserOpts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Identity{}, err
	}
	var scope []string
	for _, lineID := range claims.Lines {
		if lineID = strings.TrimSpace(lineID); lineID != "" {
			scope = append(scope, lineID)
		}
	}
	return Identity{Subject: claims.Subject, Role: role, Lines: scope}, nil
}
