package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"rollcall/pkg/types"
)

// bcrypt caps input at 72 bytes.
const (
	minPasswordLength = 6
	maxPasswordLength = 72
)

// HashPassword validates and hashes a plaintext password for storage.
func HashPassword(plain string) (string, error) {
	if len(plain) < minPasswordLength || len(plain) > maxPasswordLength {
		return "", types.ErrInvalidPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a stored hash.
func CheckPassword(hash, plain string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		return ErrWrongPassword
	}
	return nil
}
