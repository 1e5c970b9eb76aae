package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bambubeacon/bambubeacon-server/internal/config"
	"github.com/bambubeacon/bambubeacon-server/pkg/crypto"
)

func newTestManager(t *testing.T) *JWTManager {
	t.Helper()
	return NewJWTManager(&config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 72 * time.Hour,
	})
}

func TestTokenPairRoundTrip(t *testing.T) {
	m := newTestManager(t)

	access, refresh, err := m.GenerateTokenPair("admin")
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	assert.NotEqual(t, access, refresh)

	claims, err := m.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, "bambubeacon", claims.Issuer)
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := newTestManager(t)

	_, err := m.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	m := newTestManager(t)
	access, _, err := m.GenerateTokenPair("admin")
	require.NoError(t, err)

	other := NewJWTManager(&config.JWTConfig{
		Secret:          "different-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 72 * time.Hour,
	})
	_, err = other.ValidateToken(access)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	m := NewJWTManager(&config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  -time.Minute,
		RefreshTokenTTL: 72 * time.Hour,
	})

	access, _, err := m.GenerateTokenPair("admin")
	require.NoError(t, err)

	_, err = m.ValidateToken(access)
	assert.Error(t, err)
}

func TestRefreshToken(t *testing.T) {
	m := newTestManager(t)
	_, refresh, err := m.GenerateTokenPair("admin")
	require.NoError(t, err)

	subject, err := m.Subject(refresh)
	require.NoError(t, err)
	assert.Equal(t, "admin", subject)

	access, newRefresh, err := m.RefreshToken(refresh)
	require.NoError(t, err)
	require.NotEmpty(t, newRefresh)

	claims, err := m.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)

	_, err = m.Subject("junk")
	assert.Error(t, err)
}

func TestEphemeralSecret(t *testing.T) {
	cfg := &config.JWTConfig{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 72 * time.Hour,
	}
	m := NewJWTManager(cfg)
	require.NotEmpty(t, cfg.Secret, "manager generates a secret when none is configured")

	access, _, err := m.GenerateTokenPair("admin")
	require.NoError(t, err)
	_, err = m.ValidateToken(access)
	assert.NoError(t, err)
}

func TestVerifyPassword(t *testing.T) {
	m := newTestManager(t)

	hash, err := crypto.HashPassword("hunter2")
	require.NoError(t, err)

	assert.True(t, m.VerifyPassword("hunter2", hash))
	assert.False(t, m.VerifyPassword("wrong", hash))
}
