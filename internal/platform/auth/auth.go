// Package auth resolves the acting person from HS256 bearer tokens.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
)

// Verifier validates bearer tokens and returns the subject as a person id.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a Verifier. An empty issuer skips the issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// PersonID parses token and returns its subject.
func (v *Verifier) PersonID(token string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid bearer token")
	}
	if claims.Subject == "" {
		return "", errors.New(errors.ErrCodeUnauthorized, "bearer token has no subject")
	}
	return claims.Subject, nil
}

// FromHeader extracts and verifies the token in an Authorization header value.
func (v *Verifier) FromHeader(header string) (string, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", errors.New(errors.ErrCodeUnauthorized, "missing bearer token")
	}
	return v.PersonID(strings.TrimSpace(token))
}

// Issue signs a token for personID. Used by the operator CLI and tests.
func Issue(secret, issuer, personID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   personID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
