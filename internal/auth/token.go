// Package auth verifies bearer tokens issued by the platform's
// authentication service. Credential checks and token issuance happen there;
// this package only decodes and validates what arrives on a request.
package auth

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/novahr/nova-authz/internal/shared"
)

var (
	// ErrInvalidToken covers malformed, unsigned or tampered tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenExpired indicates a token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
)

// Claims mirrors the access-token payload the authentication service signs.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier validates HS256 access tokens against a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier constructs a Verifier for the given signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify parses and validates a token string and returns the subject it
// carries. The subject claim holds the numeric user id.
func (v *Verifier) Verify(tokenString string) (*shared.Subject, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %q", ErrInvalidToken, claims.Subject)
	}
	return &shared.Subject{UserID: userID, TokenID: claims.ID}, nil
}
