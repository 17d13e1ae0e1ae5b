package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "secret")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DIGEST_INTERVAL_HOURS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.TelegramToken)
	assert.Equal(t, "taskhub.db", cfg.DatabaseURL)
	assert.Equal(t, 5*time.Hour, cfg.DigestInterval())
	assert.Equal(t, 64, cfg.MaxTreeDepth)
	assert.Equal(t, 5, cfg.RateBurst)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "TELEGRAM_TOKEN=from-file\nDIGEST_INTERVAL_HOURS=2\nADMIN_TELEGRAM_IDS=10, 20\nMAX_TREE_DEPTH=8\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	for _, key := range []string{"TELEGRAM_TOKEN", "DIGEST_INTERVAL_HOURS", "ADMIN_TELEGRAM_IDS", "MAX_TREE_DEPTH"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.TelegramToken)
	assert.Equal(t, 2*time.Hour, cfg.DigestInterval())
	assert.Equal(t, 8, cfg.MaxTreeDepth)

	admins, err := cfg.AdminTelegramIDs()
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{10: true, 20: true}, admins)
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{TelegramToken: "x", AdminIDs: "abc"}.Validate())
	assert.NoError(t, Config{TelegramToken: "x", AdminIDs: "1,2"}.Validate())
}

func TestDigestDisabled(t *testing.T) {
	assert.Zero(t, Config{DigestHours: 0}.DigestInterval())
}
