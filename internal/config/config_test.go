package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestEnv(t *testing.T) func() {
	keys := []string{
		"PORT", "JWT_SECRET", "REDIS_ENABLED", "REDIS_ADDR", "GO_ENV", "LOG_LEVEL",
		"AUTH_TYPE", "CONFERENCE_SOURCE_SIGNALING_DELAYS", "CONFERENCE_REINVITE_METHOD",
	}
	orig := map[string]string{}
	for _, k := range keys {
		orig[k] = os.Getenv(k)
		os.Unsetenv(k)
	}
	return func() {
		for k, v := range orig {
			if v != "" {
				os.Setenv(k, v)
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

func TestValidateEnv_ValidConfiguration(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "8080")
	os.Setenv("REDIS_ENABLED", "false")

	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "production", cfg.GoEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, AuthNone, cfg.Auth)
	assert.Equal(t, ReinviteTransportReplace, cfg.ReinviteMethod)
}

func TestValidateEnv_MissingPort(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT is required")
}

func TestValidateEnv_InvalidPort(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "99999")

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT must be a valid port number")
}

func TestValidateEnv_InvalidRedisAddr(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "8080")
	os.Setenv("REDIS_ENABLED", "true")
	os.Setenv("REDIS_ADDR", "invalid-format")

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR must be in format 'host:port'")
}

func TestValidateEnv_RedisDefaultAddr(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "8080")
	os.Setenv("REDIS_ENABLED", "true")

	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestValidateEnv_InvalidAuthType(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PORT", "8080")
	os.Setenv("AUTH_TYPE", "BOGUS")

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_TYPE must be one of")
}

func TestDelayForSize(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	os.Setenv("PORT", "8080")
	os.Setenv("CONFERENCE_SOURCE_SIGNALING_DELAYS", "0:0,10:250,20:500")

	cfg, err := ValidateEnv()
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), cfg.DelayForSize(0))
	assert.Equal(t, time.Duration(0), cfg.DelayForSize(5))
	assert.Equal(t, 250*time.Millisecond, cfg.DelayForSize(10))
	assert.Equal(t, 250*time.Millisecond, cfg.DelayForSize(15))
	assert.Equal(t, 500*time.Millisecond, cfg.DelayForSize(30))
}

func TestIsValidHostPort(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		expected bool
	}{
		{"valid localhost", "localhost:8080", true},
		{"valid IP", "127.0.0.1:3000", true},
		{"missing port", "localhost", false},
		{"missing host", ":8080", false},
		{"invalid port", "localhost:99999", false},
		{"non-numeric port", "localhost:abc", false},
		{"multiple colons", "localhost:8080:9090", false},
		{"empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isValidHostPort(tt.addr))
		})
	}
}

func TestParseSourceSignalingDelays_UnsortedInput(t *testing.T) {
	delays := parseSourceSignalingDelays("20:500,0:0,10:250")
	require.Len(t, delays, 3)
	assert.Equal(t, 0, delays[0].FloorSize)
	assert.Equal(t, 10, delays[1].FloorSize)
	assert.Equal(t, 20, delays[2].FloorSize)
}

func TestParseSourceSignalingDelays_SkipsMalformed(t *testing.T) {
	delays := parseSourceSignalingDelays("0:0,garbage,10:250,")
	require.Len(t, delays, 2)
}

func TestValidateEnv_ErrorJoinsMultipleProblems(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "PORT is required"))
}
