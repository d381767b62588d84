// Package config loads drivetidy settings from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultBatchCeiling is the largest batch Drive accepts.
	DefaultBatchCeiling = 1000
	// ReliableBatchCeiling trades throughput for fewer provider-side batch errors.
	ReliableBatchCeiling = 500
	// MaxBatchCeiling is Google Drive's hard limit on operations per batch.
	MaxBatchCeiling = 1000
	// DefaultDateFixBatchSize matches the conservative size used for patches.
	DefaultDateFixBatchSize = 100

	DefaultPageSize    = 100
	DefaultParallelism = 8
	DefaultProvider    = "gdrive"
)

// Config aggregates configuration for the application.
type Config struct {
	Provider string        `mapstructure:"provider"`
	Drive    DriveConfig   `mapstructure:"drive"`
	Rclone   RcloneConfig  `mapstructure:"rclone"`
	Batch    BatchConfig   `mapstructure:"batch"`
	Ledger   LedgerConfig  `mapstructure:"ledger"`
	Logging  LoggingConfig `mapstructure:"logging"`
}

// DriveConfig configures the Google Drive backend.
type DriveConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
	PageSize        int    `mapstructure:"page_size"`
	Parallelism     int    `mapstructure:"parallelism"`
}

// RcloneConfig configures the rclone backend.
type RcloneConfig struct {
	Remote     string `mapstructure:"remote"`
	ConfigPath string `mapstructure:"config_path"`
	Binary     string `mapstructure:"binary"`
	HashType   string `mapstructure:"hash_type"`
	// TrashDir receives trashed files; without it rclone cannot trash.
	TrashDir string `mapstructure:"trash_dir"`
}

// BatchConfig holds batch ceilings.
type BatchConfig struct {
	Ceiling     int `mapstructure:"ceiling"`
	DateFixSize int `mapstructure:"datefix_size"`
}

// LedgerConfig configures the run ledger database.
type LedgerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	Passphrase string `mapstructure:"passphrase"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Dir returns the per-user state directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".drivetidy"
	}
	return filepath.Join(home, ".drivetidy")
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := Dir()
	return &Config{
		Provider: DefaultProvider,
		Drive: DriveConfig{
			CredentialsFile: "client_secrets.json",
			TokenFile:       filepath.Join(dir, "token.json"),
			PageSize:        DefaultPageSize,
			Parallelism:     DefaultParallelism,
		},
		Rclone: RcloneConfig{
			Binary:   "rclone",
			HashType: "md5",
		},
		Batch: BatchConfig{
			Ceiling:     DefaultBatchCeiling,
			DateFixSize: DefaultDateFixBatchSize,
		},
		Ledger: LedgerConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "ledger.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from file and environment variables.
// Environment variables use the prefix "DRIVETIDY" and the dot character
// in keys is replaced by an underscore. For example, "batch.ceiling"
// becomes "DRIVETIDY_BATCH_CEILING". An empty path searches ~/.drivetidy
// and the working directory for config.yaml.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("DRIVETIDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would make a run unsafe or meaningless.
func (c *Config) Validate() error {
	if err := c.checkBatchSize("batch.ceiling", c.Batch.Ceiling); err != nil {
		return err
	}
	if err := c.checkBatchSize("batch.datefix_size", c.Batch.DateFixSize); err != nil {
		return err
	}
	if c.Drive.PageSize < 1 || c.Drive.PageSize > 1000 {
		return fmt.Errorf("drive.page_size must be between 1 and 1000, got %d", c.Drive.PageSize)
	}
	if c.Drive.Parallelism < 1 {
		return fmt.Errorf("drive.parallelism must be at least 1, got %d", c.Drive.Parallelism)
	}
	if c.Provider == "rclone" && c.Rclone.Remote == "" {
		return fmt.Errorf("rclone.remote is required when provider is rclone")
	}
	return nil
}

// checkBatchSize applies the Drive limit only to Drive. Other backends
// enforce their own limit when the batch loop starts.
func (c *Config) checkBatchSize(key string, n int) error {
	if n < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", key, n)
	}
	if c.Provider == DefaultProvider && n > MaxBatchCeiling {
		return fmt.Errorf("%s must be at most %d for %s, got %d", key, MaxBatchCeiling, c.Provider, n)
	}
	return nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
