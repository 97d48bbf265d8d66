package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/pulse/internal/domain/model"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"serve", "batch", "profile"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}

	names = make(map[string]bool)
	for _, c := range profileCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "create", "activate"} {
		assert.True(t, names[name], "expected profile subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "pulse", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("timeframe")
	require.NotNil(t, flag)
	assert.Equal(t, "weekly", flag.DefValue)
	require.NotNil(t, batchCmd.Flags().Lookup("start"))
	require.NotNil(t, batchCmd.Flags().Lookup("end"))
	require.NotNil(t, batchCmd.Flags().Lookup("rank-only"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("addr")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
}

func TestResolvePeriod(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

	p, err := resolvePeriod(model.Weekly, "", "", now)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-11..2024-03-17", p.String())

	p, err = resolvePeriod(model.Season, "2023-08-01", "2024-05-31", now)
	require.NoError(t, err)
	assert.Equal(t, "2023-08-01..2024-05-31", p.String())

	_, err = resolvePeriod(model.Weekly, "2024-03-11", "", now)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = resolvePeriod(model.Season, "", "", now)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestReadProfile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "v1.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
version: v1
description: balanced
weights:
  - category: technical
    weight: 0.6
  - category: physical
    weight: 0.4
role_adjustments:
  keeper:
    physical: 0.5
`), 0o600))

	p, err := readProfile(good)
	require.NoError(t, err)
	assert.Equal(t, "v1", p.Version)
	assert.Equal(t, []string{"technical", "physical"}, p.Categories())
	assert.Equal(t, 0.5, p.RoleAdjustments["keeper"]["physical"])

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: v2\ncolour: red\n"), 0o600))
	_, err = readProfile(bad)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = readProfile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestProfileCommands_SQLite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PULSE_STORE_DRIVER", "sqlite")
	t.Setenv("PULSE_SQLITE_PATH", filepath.Join(dir, "pulse.db"))

	file := filepath.Join(dir, "v1.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
version: v1
weights:
  - category: technical
    weight: 0.5
  - category: physical
    weight: 0.5
`), 0o600))

	out, err := execute(t, "profile", "create", "-f", file)
	require.NoError(t, err)
	assert.Contains(t, out, "created profile v1 with 2 categories")

	_, err = execute(t, "profile", "create", "-f", file)
	assert.ErrorIs(t, err, model.ErrProfileExists)

	out, err = execute(t, "profile", "activate", "v1")
	require.NoError(t, err)
	assert.Contains(t, out, "activated profile v1")

	out, err = execute(t, "profile", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "v1")
	assert.Contains(t, out, "true")

	_, err = execute(t, "profile", "activate", "v9")
	assert.ErrorIs(t, err, model.ErrNotFound)

	out, err = execute(t, "batch", "--timeframe", "weekly", "--start", "2024-03-04", "--end", "2024-03-10")
	require.NoError(t, err)
	assert.Contains(t, out, `"profile_version": "v1"`)
	assert.Contains(t, out, `"succeeded": 0`)
}
