package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
}

func TestLoadMigrations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "002_backtest_runs.sql", "CREATE TABLE b();")
	writeFile(t, dir, "001_prices.sql", "CREATE TABLE a();")
	writeFile(t, dir, "001_prices_down.sql", "DROP TABLE a;")
	writeFile(t, dir, "README.md", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0700))

	migrations, err := LoadMigrations(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "prices", migrations[0].Description)
	assert.Equal(t, "CREATE TABLE a();", migrations[0].SQL)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, "backtest runs", migrations[1].Description)
}

func TestLoadMigrations_BadName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "prices.sql", "CREATE TABLE a();")

	_, err := LoadMigrations(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid migration filename")
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "001_a.sql", "")
	writeFile(t, dir, "001_b.sql", "")

	_, err := LoadMigrations(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate migration version 1")
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	_, err := LoadMigrations(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestRepositoryMigrations(t *testing.T) {
	migrations, err := LoadMigrations("../../migrations")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(migrations), 2)

	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS prices")
	assert.Contains(t, migrations[1].SQL, "CREATE TABLE IF NOT EXISTS backtest_runs")
}
