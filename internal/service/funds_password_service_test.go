package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptFundsPasswordVerifier_HashAndVerify(t *testing.T) {
	v := NewBcryptFundsPasswordVerifier(bcrypt.MinCost)

	hash, err := v.Hash("funds-secret-1")
	require.NoError(t, err)
	assert.NotEqual(t, "funds-secret-1", hash)

	ok, err := v.Verify("funds-secret-1", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBcryptFundsPasswordVerifier_MismatchIsNotAnError(t *testing.T) {
	v := NewBcryptFundsPasswordVerifier(bcrypt.MinCost)

	hash, err := v.Hash("funds-secret-1")
	require.NoError(t, err)

	ok, err := v.Verify("wrong-password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBcryptFundsPasswordVerifier_MalformedHash(t *testing.T) {
	v := NewBcryptFundsPasswordVerifier(bcrypt.MinCost)

	ok, err := v.Verify("anything", "not-a-bcrypt-hash")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestNewBcryptFundsPasswordVerifier_LowCostFallsBack(t *testing.T) {
	v := NewBcryptFundsPasswordVerifier(0)
	assert.Equal(t, bcrypt.DefaultCost, v.cost)

	v = NewBcryptFundsPasswordVerifier(bcrypt.MinCost)
	assert.Equal(t, bcrypt.MinCost, v.cost)
}
