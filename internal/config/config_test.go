package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, DefaultProvider, cfg.Provider)
	require.Equal(t, DefaultBatchCeiling, cfg.Batch.Ceiling)
	require.Equal(t, DefaultDateFixBatchSize, cfg.Batch.DateFixSize)
	require.Equal(t, DefaultPageSize, cfg.Drive.PageSize)
	require.True(t, cfg.Ledger.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DRIVETIDY_BATCH_CEILING", "500")
	t.Setenv("DRIVETIDY_PROVIDER", "rclone")
	t.Setenv("DRIVETIDY_RCLONE_REMOTE", "gdrive:")
	t.Setenv("DRIVETIDY_LEDGER_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 500, cfg.Batch.Ceiling)
	require.Equal(t, "rclone", cfg.Provider)
	require.Equal(t, "gdrive:", cfg.Rclone.Remote)
	require.False(t, cfg.Ledger.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
batch:
  ceiling: 250
  datefix_size: 50
drive:
  parallelism: 2
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 250, cfg.Batch.Ceiling)
	require.Equal(t, 50, cfg.Batch.DateFixSize)
	require.Equal(t, 2, cfg.Drive.Parallelism)
	require.Equal(t, "debug", cfg.Logging.Level)
	// Untouched keys keep their defaults.
	require.Equal(t, DefaultPageSize, cfg.Drive.PageSize)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero ceiling", func(c *Config) { c.Batch.Ceiling = 0 }},
		{"ceiling above drive limit", func(c *Config) { c.Batch.Ceiling = MaxBatchCeiling + 1 }},
		{"datefix size above drive limit", func(c *Config) { c.Batch.DateFixSize = MaxBatchCeiling + 1 }},
		{"zero datefix size", func(c *Config) { c.Batch.DateFixSize = 0 }},
		{"zero page size", func(c *Config) { c.Drive.PageSize = 0 }},
		{"zero parallelism", func(c *Config) { c.Drive.Parallelism = 0 }},
		{"rclone without remote", func(c *Config) { c.Provider = "rclone" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_LargeBatchesOutsideDrive(t *testing.T) {
	cfg := Default()
	cfg.Provider = "rclone"
	cfg.Rclone.Remote = "s3remote:"
	cfg.Batch.Ceiling = 5000
	cfg.Batch.DateFixSize = 2000
	require.NoError(t, cfg.Validate())

	cfg.Batch.Ceiling = 0
	require.Error(t, cfg.Validate())
}

func TestLoadTrashDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DRIVETIDY_RCLONE_TRASH_DIR", ".drivetidy-trash")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ".drivetidy-trash", cfg.Rclone.TrashDir)
}
