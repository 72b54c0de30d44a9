package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Database.Host != "localhost" {
		t.Errorf("Expected Database.Host to be localhost, got %s", cfg.Database.Host)
	}
	if cfg.Crypto.SealedMasterKeyPath != "/var/lib/vaulthalla/sealed_master.blob" {
		t.Errorf("Expected default sealed master key path, got %s", cfg.Crypto.SealedMasterKeyPath)
	}
	if cfg.FUSE.MountRoot != "/mnt/vaulthalla" {
		t.Errorf("Expected FUSE.MountRoot to be /mnt/vaulthalla, got %s", cfg.FUSE.MountRoot)
	}
	if cfg.Sync.MaxInFlightUploads != 8 {
		t.Errorf("Expected Sync.MaxInFlightUploads to be 8, got %d", cfg.Sync.MaxInFlightUploads)
	}
	if cfg.Sync.PartSizeBytes != 5*1024*1024 {
		t.Errorf("Expected Sync.PartSizeBytes to be 5MiB, got %d", cfg.Sync.PartSizeBytes)
	}
	if cfg.Sync.FreeSpaceReserveBytes != 64*1024*1024 {
		t.Errorf("Expected Sync.FreeSpaceReserveBytes to be 64MiB, got %d", cfg.Sync.FreeSpaceReserveBytes)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Expected Metrics.Enabled to be true by default")
	}
	if cfg.Metrics.Namespace != "vaulthalla" {
		t.Errorf("Expected Metrics.Namespace to be vaulthalla, got %s", cfg.Metrics.Namespace)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected Logging.Level to be INFO, got %s", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  func() *Configuration
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			config:  func() *Configuration { return NewDefault() },
			wantErr: false,
		},
		{
			name: "invalid max in flight uploads",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Sync.MaxInFlightUploads = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "max_in_flight_uploads must be greater than 0",
		},
		{
			name: "part size below multipart minimum",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Sync.PartSizeBytes = 1024
				return cfg
			},
			wantErr: true,
			errMsg:  "part_size_bytes must be at least 5MiB",
		},
		{
			name: "zero vault quota",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Vault.DefaultQuotaByte = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "default_quota_bytes must be greater than 0",
		},
		{
			name: "metrics enabled without port",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Metrics.Port = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "metrics.port must be set",
		},
		{
			name: "invalid log level",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Logging.Level = "INVALID"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config()
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && tt.errMsg != "" && !contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  host: dbhost
  port: 5433

fuse:
  mount_root: /mnt/custom

sync:
  default_interval_seconds: 120
  max_in_flight_uploads: 16
`

	err := os.WriteFile(configFile, []byte(configContent), 0600)
	if err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg := NewDefault()
	err = cfg.LoadFromFile(configFile)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Database.Host != "dbhost" {
		t.Errorf("Expected Database.Host to be dbhost, got %s", cfg.Database.Host)
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("Expected Database.Port to be 5433, got %d", cfg.Database.Port)
	}
	if cfg.FUSE.MountRoot != "/mnt/custom" {
		t.Errorf("Expected FUSE.MountRoot to be /mnt/custom, got %s", cfg.FUSE.MountRoot)
	}
	if cfg.Sync.MaxInFlightUploads != 16 {
		t.Errorf("Expected Sync.MaxInFlightUploads to be 16, got %d", cfg.Sync.MaxInFlightUploads)
	}
}

func TestLoadFromFileNonExistent(t *testing.T) {
	cfg := NewDefault()
	err := cfg.LoadFromFile("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error when loading non-existent config file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	testEnvVars := map[string]string{
		"VAULTHALLA_DB_HOST":               "envhost",
		"VAULTHALLA_DB_PORT":               "5555",
		"VAULTHALLA_MOUNT_ROOT":            "/mnt/env",
		"VAULTHALLA_SYNC_MAX_IN_FLIGHT":    "20",
		"VAULTHALLA_METRICS_ENABLED":       "false",
		"VAULTHALLA_LOG_LEVEL":             "ERROR",
	}

	for key, value := range testEnvVars {
		t.Setenv(key, value)
	}

	cfg := NewDefault()
	err := cfg.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Database.Host != "envhost" {
		t.Errorf("Expected Database.Host to be envhost, got %s", cfg.Database.Host)
	}
	if cfg.Database.Port != 5555 {
		t.Errorf("Expected Database.Port to be 5555, got %d", cfg.Database.Port)
	}
	if cfg.FUSE.MountRoot != "/mnt/env" {
		t.Errorf("Expected FUSE.MountRoot to be /mnt/env, got %s", cfg.FUSE.MountRoot)
	}
	if cfg.Sync.MaxInFlightUploads != 20 {
		t.Errorf("Expected Sync.MaxInFlightUploads to be 20, got %d", cfg.Sync.MaxInFlightUploads)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected Metrics.Enabled to be false")
	}
	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected Logging.Level to be ERROR, got %s", cfg.Logging.Level)
	}
}

func TestSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "saved_config.yaml")

	cfg := NewDefault()
	cfg.Logging.Level = "DEBUG"
	cfg.Database.Host = "saved-host"

	err := cfg.SaveToFile(configFile)
	if err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	newCfg := NewDefault()
	err = newCfg.LoadFromFile(configFile)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	if newCfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected Logging.Level to be DEBUG, got %s", newCfg.Logging.Level)
	}
	if newCfg.Database.Host != "saved-host" {
		t.Errorf("Expected Database.Host to be saved-host, got %s", newCfg.Database.Host)
	}
}

func TestSaveToFileCreateDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := NewDefault()
	err := cfg.SaveToFile(configFile)
	if err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	if _, err := os.Stat(filepath.Dir(configFile)); os.IsNotExist(err) {
		t.Error("Config directory was not created")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	if substr == "" {
		return 0
	}
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
