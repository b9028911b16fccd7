package database

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kruthika/companion/internal/config"
)

func TestEmbeddedMigrationsContainSchema(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	data, err := fs.ReadFile(embeddedMigrations, "migrations/00001_init.sql")
	require.NoError(t, err)
	sql := string(data)
	for _, table := range []string{"app_configurations", "messages_log", "daily_activity_log"} {
		require.True(t, strings.Contains(sql, "CREATE TABLE IF NOT EXISTS "+table), table)
	}
	require.Contains(t, sql, "-- +goose Down")
}

func TestResolveMigrationsDir(t *testing.T) {
	dir := t.TempDir()
	got, err := resolveMigrationsDir(dir)
	require.NoError(t, err)
	abs, _ := filepath.Abs(dir)
	require.Equal(t, abs, got)

	_, err = resolveMigrationsDir("")
	require.Error(t, err)

	missing := filepath.Join(dir, "nope")
	_, err = resolveMigrationsDir(missing)
	require.Error(t, err)

	file := filepath.Join(dir, "file.sql")
	require.NoError(t, os.WriteFile(file, []byte("--"), 0o600))
	_, err = resolveMigrationsDir(file)
	require.Error(t, err)
}

func TestRunMigrationsDisabled(t *testing.T) {
	require.NoError(t, RunMigrations(context.Background(), config.DatabaseConfig{RunMigrations: false}))
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), config.DatabaseConfig{URL: "://bad"})
	require.Error(t, err)
}
