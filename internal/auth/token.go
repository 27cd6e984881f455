// Package auth verifies bearer tokens and exposes the caller identity to
// downstream handlers. Token issuance lives in the identity service; this
// service only consumes its tokens.
package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/surveyforge/surveyforge/internal/shared"
)

// Claims is the token payload produced at issuance time.
type Claims struct {
	Role              string   `json:"role"`
	CustomPermissions []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// Verifier parses and validates bearer tokens.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier constructs a Verifier for HS256 tokens from the given issuer.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses the raw token and returns the identity it carries.
func (v *Verifier) Verify(raw string) (*shared.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", shared.ErrInvalidToken)
	}
	if !token.Valid {
		return nil, shared.ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, shared.ErrInvalidToken
	}
	return &shared.Identity{
		UserID:            subject,
		Role:              strings.TrimSpace(claims.Role),
		CustomPermissions: claims.CustomPermissions,
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
