package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg := Load()
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "test-secret", cfg.JWTSecret)
	assert.False(t, cfg.EnvironmentProduction)
	assert.Equal(t, 30*time.Second, cfg.BackendTimeout)
	assert.Equal(t, DefaultEvictedContestants, cfg.EvictedContestants)
	assert.True(t, cfg.VotingCutoff.IsZero())
	assert.Equal(t, "@every 1m", cfg.SweepSchedule)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ENVIRONMENT_PRODUCTION", "true")
	t.Setenv("PUBLIC_BASE_URL", "https://tickets.example.com/")
	t.Setenv("BACKEND_TIMEOUT", "5s")
	t.Setenv("EVICTED_CONTESTANTS", "CNT-001, ,CNT-002")
	t.Setenv("VOTING_CUTOFF", "2025-12-13T11:00:00Z")

	cfg := Load()
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.True(t, cfg.EnvironmentProduction)
	assert.Equal(t, "https://tickets.example.com", cfg.PublicBaseURL)
	assert.Equal(t, 5*time.Second, cfg.BackendTimeout)
	assert.Equal(t, []string{"CNT-001", "CNT-002"}, cfg.EvictedContestants)
	assert.Equal(t, time.Date(2025, 12, 13, 11, 0, 0, 0, time.UTC), cfg.VotingCutoff)
}

func TestLoad_GeneratesSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	cfg := Load()
	assert.Len(t, cfg.JWTSecret, 32)
}

func TestGetEnvAsInt_IgnoresGarbage(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")
	assert.Equal(t, 8080, getEnvAsInt("SERVER_PORT", 8080))
}
