package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "TELEGRAM_TOKEN", "DATABASE_URL", "REPORT_INTERVAL_HOURS", "MORNING_REPORT",
		"TIMEZONE", "CALENDAR_WINDOW_DAYS", "SNAPSHOT_DIR", "DEBUG",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultDatabaseURL, cfg.DatabaseURL)
	assert.Equal(t, 5*time.Hour, cfg.ReportInterval)
	assert.Equal(t, "08:00", cfg.MorningReport)
	assert.Equal(t, 45, cfg.CalendarWindow)
	assert.Equal(t, "snapshots", cfg.SnapshotDir)
	assert.False(t, cfg.Debug)
	assert.Equal(t, time.Local, cfg.Location())
	assert.Error(t, cfg.Validate(), "token is required to serve")
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", " secret ")
	t.Setenv("DATABASE_URL", "data/court.db")
	t.Setenv("REPORT_INTERVAL_HOURS", "3")
	t.Setenv("MORNING_REPORT", "07:30")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("CALENDAR_WINDOW_DAYS", "10")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.TelegramToken)
	assert.Equal(t, "data/court.db", cfg.DatabaseURL)
	assert.Equal(t, 3*time.Hour, cfg.ReportInterval)
	assert.Equal(t, "07:30", cfg.MorningReport)
	assert.Equal(t, 10, cfg.CalendarWindow)
	assert.True(t, cfg.Debug)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.NoError(t, cfg.Validate())
}

func TestFileIsOverriddenByEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "telegram_token: from-file\n" +
		"database_url: file.db\n" +
		"report_interval: 90m\n" +
		"calendar_window_days: 30\n" +
		"snapshot_dir: /var/lib/decrees\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DATABASE_URL", "env.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.TelegramToken)
	assert.Equal(t, "env.db", cfg.DatabaseURL)
	assert.Equal(t, 90*time.Minute, cfg.ReportInterval)
	assert.Equal(t, 30, cfg.CalendarWindow)
	assert.Equal(t, "/var/lib/decrees", cfg.SnapshotDir)
}

func TestLoadErrors(t *testing.T) {
	t.Run("bad window", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CALENDAR_WINDOW_DAYS", "many")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad timezone", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TIMEZONE", "Mars/Olympus_Mons")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestParseInterval(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseInterval(""))
	assert.Equal(t, time.Duration(0), parseInterval("-2"))
	assert.Equal(t, time.Duration(0), parseInterval("abc"))
	assert.Equal(t, 6*time.Hour, parseInterval("6"))
}
