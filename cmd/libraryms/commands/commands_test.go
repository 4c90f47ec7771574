package commands

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryms/internal/store/sqlstore"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func useSQLite(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", sqlstore.DriverSQLite)
	t.Setenv("DATABASE_URL", sqlstore.SQLiteDSN(filepath.Join(dir, "library.db")))
	t.Setenv("REPORT_DIR", filepath.Join(dir, "reports"))
	t.Setenv("LOG_LEVEL", "error")
}

func TestMigrateSweepReport(t *testing.T) {
	useSQLite(t)

	_, err := execute(t, "migrate")
	require.NoError(t, err)

	out, err := execute(t, "sweep", "all")
	require.NoError(t, err)
	assert.Contains(t, out, "expire")
	assert.Contains(t, out, "overdue")

	out, err = execute(t, "report", "generate", "--type", "overdue", "--by", "librarian")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")

	out, err = execute(t, "report", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "overdue")
	assert.Contains(t, out, "librarian")
}

func TestSweep_UnknownName(t *testing.T) {
	useSQLite(t)
	_, err := execute(t, "sweep", "vacuum")
	assert.ErrorContains(t, err, `unknown sweep "vacuum"`)
}

func TestServe_RequiresSecret(t *testing.T) {
	useSQLite(t)
	t.Setenv("JWT_SECRET", "")
	_, err := execute(t, "serve")
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestBadConfig(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	_, err := execute(t, "migrate")
	assert.ErrorContains(t, err, "unsupported database driver")
}
