package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newManager(now time.Time) *JWTManager {
	m := NewJWTManager(DefaultJWTConfig("test-secret-key"))
	m.now = func() time.Time { return now }
	return m
}

func TestJWTManagerRoundTrip(t *testing.T) {
	m := newManager(time.Now())

	access, err := m.GenerateAccessToken(7, "a@example.com")
	require.NoError(t, err)
	refresh, err := m.GenerateRefreshToken(7, "a@example.com")
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, "7", claims.Subject)
	assert.NotEmpty(t, claims.ID)

	_, err = m.ValidateRefreshToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateAccessToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err = m.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, tokenTypeRefresh, claims.TokenType)
}

func TestJWTManagerUniqueTokenIDs(t *testing.T) {
	m := newManager(time.Now())
	a, err := m.GenerateAccessToken(1, "a@example.com")
	require.NoError(t, err)
	b, err := m.GenerateAccessToken(1, "a@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestJWTManagerExpiry(t *testing.T) {
	issued := time.Now().Add(-time.Hour)
	token, err := newManager(issued).GenerateAccessToken(1, "a@example.com")
	require.NoError(t, err)

	_, err = newManager(time.Now()).ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTManagerRejectsForeignSignature(t *testing.T) {
	token, err := newManager(time.Now()).GenerateAccessToken(1, "a@example.com")
	require.NoError(t, err)

	other := NewJWTManager(DefaultJWTConfig("another-secret"))
	_, err = other.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = other.Validate("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasherWithCost(bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
	}{
		{"simple password", "password"},
		{"complex password", "P@ssw0rd!#$%^&*()"},
		{"unicode password", "密码123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := h.Hash(tt.password)
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)
			assert.True(t, h.Verify(tt.password, hash))
			assert.False(t, h.Verify(tt.password+"x", hash))
		})
	}

	assert.Equal(t, DefaultBcryptCost, NewPasswordHasher().cost)
}
