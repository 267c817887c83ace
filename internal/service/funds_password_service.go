package service

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptFundsPasswordVerifier implements ports.FundsPasswordVerifier
// with bcrypt.
type BcryptFundsPasswordVerifier struct {
	cost int
}

// NewBcryptFundsPasswordVerifier creates a verifier with the given
// bcrypt cost. Costs below the library minimum fall back to the
// default cost.
func NewBcryptFundsPasswordVerifier(cost int) *BcryptFundsPasswordVerifier {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptFundsPasswordVerifier{cost: cost}
}

// Hash generates a bcrypt hash of the funds password.
func (v *BcryptFundsPasswordVerifier) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", fmt.Errorf("hashing funds password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether the password matches the stored hash. A
// mismatch is not an error.
func (v *BcryptFundsPasswordVerifier) Verify(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("comparing funds password: %w", err)
}
