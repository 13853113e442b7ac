package utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := "test-secret"
	userID := uuid.New()

	token, err := GenerateToken(secret, userID, "admin", time.Hour)
	require.NoError(t, err)

	gotID, role, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, userID, gotID)
	assert.Equal(t, "admin", role)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("secret-a", uuid.New(), "customer", time.Hour)
	require.NoError(t, err)

	_, _, err = ParseToken("secret-b", token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken("secret", uuid.New(), "customer", -time.Minute)
	require.NoError(t, err)

	_, _, err = ParseToken("secret", token)
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "hunter3"))
}

func TestGenerateInvoiceNumber(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	number := GenerateInvoiceNumber(now)
	assert.Regexp(t, `^INV-20260115-[A-Z2-9]{4}$`, number)
}
