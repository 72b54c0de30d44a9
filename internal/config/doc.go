/*
Package config provides configuration management for the vaulthallad daemon,
with layered precedence across defaults, a YAML file, and environment
variables.

# Precedence

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│           (VAULTHALLA_*)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File                  │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Configuration Sections

Database: metadata store connection (host/port/credentials or a single
connection string).

Crypto: path to the TPM-sealed master key blob.

FUSE: mount point and default POSIX attributes exposed to the kernel for
entries that have no explicit owner/mode recorded.

Vault: defaults applied when a vault is created (backing directory base,
default quota).

Sync: tunables for the sync engine (cycle interval, multipart part size,
in-flight upload concurrency, free-space reserve, transport timeouts).

Metrics: Prometheus exposition settings.

Logging: structured logger level, format, and output file.

# Usage

	cfg := config.NewDefault()

	if err := cfg.LoadFromFile("/etc/vaulthalla/config.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

Configuration file format:

	database:
	  host: localhost
	  port: 5432
	  name: vaulthalla

	crypto:
	  sealed_master_key_path: /var/lib/vaulthalla/sealed_master.blob

	fuse:
	  mount_root: /mnt/vaulthalla

	sync:
	  default_interval_seconds: 300
	  max_in_flight_uploads: 8
	  part_size_bytes: 5242880

Environment variable mapping:

	VAULTHALLA_DB_HOST=localhost
	VAULTHALLA_DB_PORT=5432
	VAULTHALLA_MOUNT_ROOT=/mnt/vaulthalla
	VAULTHALLA_SYNC_MAX_IN_FLIGHT=8
	VAULTHALLA_METRICS_PORT=9090
	VAULTHALLA_LOG_LEVEL=INFO

# Validation

Validate() rejects a part size below the S3 multipart minimum (5MiB), a
non-positive default vault quota, a zero in-flight upload concurrency, a
metrics port of zero while metrics are enabled, and any logging level
outside DEBUG/INFO/WARN/ERROR.
*/
package config
