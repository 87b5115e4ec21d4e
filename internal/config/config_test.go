package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeTempConfig(t, `
mode = "full"
log_level = "debug"

[engine]
platform_fee_bps = 100
fee_recipient = "0x000000000000000000000000000000000000dEaD"

[server]
port = 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int64(100), cfg.Engine.PlatformFeeBps)
	assert.Equal(t, 9090, cfg.Server.Port)

	// Untouched fields keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Minute, cfg.Engine.MinDuration.Duration)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
[engine]
fee_recipient = "0x000000000000000000000000000000000000dEaD"
`)

	t.Setenv("AUCTIOND_MODE", "archive")
	t.Setenv("AUCTIOND_SERVER_PORT", "8123")
	t.Setenv("AUCTIOND_REDIS_PRICE_TTL", "5s")
	t.Setenv("AUCTIOND_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "archive", cfg.Mode)
	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Redis.PriceTTL.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.FeeRecipient = "0x000000000000000000000000000000000000dEaD"
	cfg.Chain.PrivateKey = "ab"

	require.NoError(t, cfg.Validate())

	cfg.Engine.PlatformFeeBps = 2000
	cfg.Mode = "banana"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform_fee_bps")
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateRequiresFeeRecipient(t *testing.T) {
	cfg := Defaults()
	cfg.Chain.PrivateKey = "ab"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fee_recipient")
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Chain.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "api-key"
	cfg.S3.SecretKey = "s3-secret"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Chain.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.S3.SecretKey)

	// The original is untouched.
	assert.Equal(t, "deadbeef", cfg.Chain.PrivateKey)
}
