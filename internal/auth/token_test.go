package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	raw := signToken(t, testSecret, jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "42",
		ID:        "token-abc",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	sub, err := NewVerifier(testSecret).Verify(raw)
	require.NoError(t, err)
	require.EqualValues(t, 42, sub.UserID)
	require.Equal(t, "token-abc", sub.TokenID)
}

func TestVerifyExpiredToken(t *testing.T) {
	raw := signToken(t, testSecret, jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})

	_, err := NewVerifier(testSecret).Verify(raw)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyWrongSecret(t *testing.T) {
	raw := signToken(t, "other-secret", jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	_, err := NewVerifier(testSecret).Verify(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMissingExpiry(t *testing.T) {
	raw := signToken(t, testSecret, jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "42"})

	_, err := NewVerifier(testSecret).Verify(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyNonNumericSubject(t *testing.T) {
	raw := signToken(t, testSecret, jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	_, err := NewVerifier(testSecret).Verify(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyGarbage(t *testing.T) {
	_, err := NewVerifier(testSecret).Verify("not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
