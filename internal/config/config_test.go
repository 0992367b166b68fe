package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("S2S_BASE_URL", "http://ballot:8081/")
	t.Setenv("S2S_API_KEY", "k1")

	cfg, err := Load("eligibility")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "http://ballot:8081", cfg.S2S.PeerURL)
	assert.Equal(t, []string{"k1"}, cfg.S2S.AcceptedKeys)
	assert.Equal(t, 24*time.Hour, cfg.Tokens.TTL())
	assert.Equal(t, 5, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.Window())
	assert.Equal(t, "migrations/eligibility", cfg.Postgres.MigrationsDir)
}

func TestLoadBallotDefaultsAndRotation(t *testing.T) {
	t.Setenv("S2S_BASE_URL", "http://eligibility:8080")
	t.Setenv("S2S_API_KEY", "new")
	t.Setenv("S2S_ACCEPTED_KEYS", "new, old ,")
	t.Setenv("S2S_TIMEOUT_MS", "250")

	cfg, err := Load("ballot")
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.App.Port)
	assert.Equal(t, []string{"new", "old"}, cfg.S2S.AcceptedKeys)
	assert.Equal(t, 250*time.Millisecond, cfg.S2S.Timeout())
	assert.Equal(t, "migrations/ballot", cfg.Postgres.MigrationsDir)
}

func TestLoadRequiresPeer(t *testing.T) {
	t.Setenv("S2S_BASE_URL", "")
	t.Setenv("S2S_API_KEY", "k")

	_, err := Load("eligibility")
	assert.Error(t, err)
}

func TestGetEnvAsIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	assert.Equal(t, 7, getEnvAsInt("SOME_INT", 7))
}

func TestLoadAuthNeedsNoPeer(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("AUTH_JWT_ISSUER", "")

	auth := LoadAuth()
	assert.Equal(t, "s3cret", auth.JWTSecret)
	assert.Equal(t, "membership", auth.Issuer)
	assert.Equal(t, 60, auth.AccessTokenTTLMinutes)
}
