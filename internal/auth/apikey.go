package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrAPIKeyTooShort = errors.New("api key must be at least 16 characters")

const (
	bcryptCost      = 12
	minAPIKeyLength = 16
)

// HashAPIKey hashes a service API key for storage in configuration.
func HashAPIKey(key string) (string, error) {
	if len(key) < minAPIKeyLength {
		return "", ErrAPIKeyTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckAPIKey compares a presented key with its stored hash.
func CheckAPIKey(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
