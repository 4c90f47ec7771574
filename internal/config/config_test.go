package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryms/internal/maintenance"
	"libraryms/internal/store/sqlstore"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, sqlstore.DriverSQLite, cfg.DBDriver)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 5, cfg.Tx.MaxAttempts)
	assert.Equal(t, maintenance.DefaultSchedule(), cfg.Schedule)
	assert.Error(t, cfg.RequireJWTSecret())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("STORE_TIMEOUT", "2s")
	t.Setenv("SCHEDULE_OVERDUE", "0 9 * * *")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, sqlstore.DriverPgx, cfg.DBDriver)
	assert.Equal(t, 2*time.Second, cfg.Tx.Timeout)
	assert.Equal(t, "0 9 * * *", cfg.Schedule[maintenance.SweepOverdue])
	assert.False(t, cfg.AutoMigrate)
	assert.NoError(t, cfg.RequireJWTSecret())
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Setenv("STORE_TIMEOUT", "soon")
	t.Setenv("STORE_MAX_ATTEMPTS", "many")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_TIMEOUT")
	assert.Contains(t, err.Error(), "STORE_MAX_ATTEMPTS")

	t.Setenv("STORE_TIMEOUT", "1s")
	t.Setenv("STORE_MAX_ATTEMPTS", "3")
	t.Setenv("DB_DRIVER", "oracle")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("REPORT_DIR=/tmp/libraryms-reports\nLOG_FORMAT=json\n"), 0o600))
	t.Setenv("LOG_FORMAT", "text")
	t.Cleanup(func() { os.Unsetenv("REPORT_DIR") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/libraryms-reports", cfg.ReportDir)
	assert.Equal(t, "text", cfg.LogFormat)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}
