package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-chars"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims() Claims {
	return Claims{
		Email: "a@b.c",
		Phone: "+2348012345678",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestValidator_ValidToken(t *testing.T) {
	v := NewValidator(testSecret)

	claims, err := v.Validate(signToken(t, testSecret, validClaims()))

	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID())
	assert.Equal(t, "a@b.c", claims.Email)
	assert.Equal(t, "authenticated", claims.Role)
}

func TestValidator_ExpiredToken(t *testing.T) {
	v := NewValidator(testSecret)

	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	_, err := v.Validate(signToken(t, testSecret, claims))
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidator_WrongSecret(t *testing.T) {
	v := NewValidator(testSecret)

	_, err := v.Validate(signToken(t, "another-secret-that-is-also-32-chars!", validClaims()))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidator_WrongSigningMethod(t *testing.T) {
	v := NewValidator(testSecret)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims())
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Validate(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidator_MissingSubject(t *testing.T) {
	v := NewValidator(testSecret)

	claims := validClaims()
	claims.Subject = ""

	_, err := v.Validate(signToken(t, testSecret, claims))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidator_Garbage(t *testing.T) {
	v := NewValidator(testSecret)

	_, err := v.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAPIKey_HashAndCheck(t *testing.T) {
	hash, err := HashAPIKey("relay-key-0123456789abcdef")
	require.NoError(t, err)

	assert.True(t, CheckAPIKey("relay-key-0123456789abcdef", hash))
	assert.False(t, CheckAPIKey("wrong-key-0123456789abcdef", hash))
}

func TestAPIKey_TooShort(t *testing.T) {
	_, err := HashAPIKey("short")
	assert.ErrorIs(t, err, ErrAPIKeyTooShort)
}
