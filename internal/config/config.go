package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration represents the complete daemon configuration
type Configuration struct {
	Database DatabaseConfig      `yaml:"database"`
	Crypto   CryptoConfig        `yaml:"crypto"`
	FUSE     FUSEConfig          `yaml:"fuse"`
	Vault    VaultDefaultsConfig `yaml:"vault"`
	Sync     SyncConfig          `yaml:"sync"`
	S3       S3Config            `yaml:"s3"`
	Metrics  MetricsConfig       `yaml:"metrics"`
	Logging  LoggingConfig       `yaml:"logging"`
}

// DatabaseConfig represents the metadata store connection
type DatabaseConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	User             string `yaml:"user"`
	Password         string `yaml:"password"`
	Name             string `yaml:"name"`
}

// CryptoConfig represents master-key and vault-key settings
type CryptoConfig struct {
	SealedMasterKeyPath string `yaml:"sealed_master_key_path"`
}

// FUSEConfig represents the mount point and default POSIX attributes
// exposed through the FUSE adapter
type FUSEConfig struct {
	MountRoot         string `yaml:"mount_root"`
	AllowOther        bool   `yaml:"allow_other"`
	DefaultUID        uint32 `yaml:"default_uid"`
	DefaultGID        uint32 `yaml:"default_gid"`
	DefaultMode       uint32 `yaml:"default_mode"`
	ContentCacheBytes int64  `yaml:"content_cache_bytes"`
}

// VaultDefaultsConfig represents defaults applied to newly created vaults
type VaultDefaultsConfig struct {
	BackingRootBase  string `yaml:"backing_root_base"`
	DefaultQuotaByte int64  `yaml:"default_quota_bytes"`
}

// SyncConfig represents the sync engine's tunables
type SyncConfig struct {
	DefaultIntervalSeconds int           `yaml:"default_interval_seconds"`
	MaxInFlightUploads     int           `yaml:"max_in_flight_uploads"`
	PartSizeBytes          int64         `yaml:"part_size_bytes"`
	FreeSpaceReserveBytes  int64         `yaml:"free_space_reserve_bytes"`
	ConnectTimeout         time.Duration `yaml:"connect_timeout"`
	RequestTimeout         time.Duration `yaml:"request_timeout"`
	// StaleUploadMaxAge bounds how long a completed, failed, or aborted
	// multipart upload's state is kept in memory before the maintenance
	// sweep prunes it.
	StaleUploadMaxAge time.Duration `yaml:"stale_upload_max_age"`
}

// S3Config represents the default S3-compatible endpoint settings applied
// to a vault's bucket when no per-vault override is configured. Per-vault
// credentials and bucket names live in the relational store (§6); these are
// process-wide fallbacks for region/part-size/timeout tuning.
type S3Config struct {
	Endpoint        string        `yaml:"endpoint"`
	Region          string        `yaml:"region"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	PartSizeBytes   int64         `yaml:"part_size_bytes"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// MetricsConfig represents Prometheus exposition settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// LoggingConfig represents structured logger settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// NewDefault returns a configuration with sensible defaults for a
// single-node deployment.
func NewDefault() *Configuration {
	return &Configuration{
		Database: DatabaseConfig{
			Host: "localhost",
			Port: 5432,
			Name: "vaulthalla",
		},
		Crypto: CryptoConfig{
			SealedMasterKeyPath: "/var/lib/vaulthalla/sealed_master.blob",
		},
		FUSE: FUSEConfig{
			MountRoot:         "/mnt/vaulthalla",
			AllowOther:        false,
			DefaultUID:        0,
			DefaultGID:        0,
			DefaultMode:       0755,
			ContentCacheBytes: 256 * 1024 * 1024, // 256MiB per mounted vault
		},
		Vault: VaultDefaultsConfig{
			BackingRootBase:  "/var/lib/vaulthalla/vaults",
			DefaultQuotaByte: 10 * 1024 * 1024 * 1024, // 10GB
		},
		Sync: SyncConfig{
			DefaultIntervalSeconds: 300,
			MaxInFlightUploads:     8,
			PartSizeBytes:          5 * 1024 * 1024, // 5MiB, the S3 multipart minimum
			FreeSpaceReserveBytes:  64 * 1024 * 1024, // 64MiB
			ConnectTimeout:         30 * time.Second,
			RequestTimeout:         5 * time.Minute,
			StaleUploadMaxAge:      24 * time.Hour,
		},
		S3: S3Config{
			Region:         "us-east-1",
			PartSizeBytes:  5 * 1024 * 1024,
			ConnectTimeout: 30 * time.Second,
			RequestTimeout: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Port:      9090,
			Namespace: "vaulthalla",
			Subsystem: "daemon",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "json",
			File:   "",
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv overlays configuration from VAULTHALLA_* environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("VAULTHALLA_DB_CONNECTION_STR"); val != "" {
		c.Database.ConnectionString = val
	}
	if val := os.Getenv("VAULTHALLA_DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("VAULTHALLA_DB_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Database.Port = port
		}
	}
	if val := os.Getenv("VAULTHALLA_DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("VAULTHALLA_DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("VAULTHALLA_DB_NAME"); val != "" {
		c.Database.Name = val
	}

	if val := os.Getenv("VAULTHALLA_SEALED_MASTER_KEY_PATH"); val != "" {
		c.Crypto.SealedMasterKeyPath = val
	}

	if val := os.Getenv("VAULTHALLA_MOUNT_ROOT"); val != "" {
		c.FUSE.MountRoot = val
	}
	if val := os.Getenv("VAULTHALLA_ALLOW_OTHER"); val != "" {
		c.FUSE.AllowOther = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("VAULTHALLA_VAULT_BACKING_ROOT"); val != "" {
		c.Vault.BackingRootBase = val
	}
	if val := os.Getenv("VAULTHALLA_VAULT_DEFAULT_QUOTA_BYTES"); val != "" {
		if quota, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Vault.DefaultQuotaByte = quota
		}
	}

	if val := os.Getenv("VAULTHALLA_SYNC_INTERVAL_SECONDS"); val != "" {
		if secs, err := strconv.Atoi(val); err == nil {
			c.Sync.DefaultIntervalSeconds = secs
		}
	}
	if val := os.Getenv("VAULTHALLA_SYNC_MAX_IN_FLIGHT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Sync.MaxInFlightUploads = n
		}
	}

	if val := os.Getenv("VAULTHALLA_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Metrics.Port = port
		}
	}
	if val := os.Getenv("VAULTHALLA_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("VAULTHALLA_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("VAULTHALLA_LOG_FILE"); val != "" {
		c.Logging.File = val
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if c.Sync.MaxInFlightUploads <= 0 {
		return fmt.Errorf("sync.max_in_flight_uploads must be greater than 0")
	}

	if c.Sync.PartSizeBytes < 5*1024*1024 {
		return fmt.Errorf("sync.part_size_bytes must be at least 5MiB (S3 multipart minimum)")
	}

	if c.Vault.DefaultQuotaByte <= 0 {
		return fmt.Errorf("vault.default_quota_bytes must be greater than 0")
	}

	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be set when metrics are enabled")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Logging.Level == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid logging.level: %s (must be one of: %s)",
			c.Logging.Level, strings.Join(validLogLevels, ", "))
	}

	return nil
}
