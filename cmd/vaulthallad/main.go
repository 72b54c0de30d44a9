// Command vaulthallad is the Vaulthalla daemon entrypoint. It wires the
// sync engine's collaborators (storage manager, FS cache, vault key
// manager, controller) together from configuration and keeps every active
// vault's FUSE mount alive until interrupted. WebSocket/HTTP command
// dispatch, RBAC, and the relational store are out of the core's scope
// (spec §1); this binary runs against in-memory collaborator stores so the
// sync engine and FUSE mount can be exercised standalone.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vaulthalla/vaulthalla/internal/cache"
	"github.com/vaulthalla/vaulthalla/internal/config"
	"github.com/vaulthalla/vaulthalla/internal/crypto"
	"github.com/vaulthalla/vaulthalla/internal/fscache"
	"github.com/vaulthalla/vaulthalla/internal/fuseadapter"
	"github.com/vaulthalla/vaulthalla/internal/metrics"
	"github.com/vaulthalla/vaulthalla/internal/storage"
	"github.com/vaulthalla/vaulthalla/internal/syncengine"
	"github.com/vaulthalla/vaulthalla/internal/syncengine/memstore"
	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
	"github.com/vaulthalla/vaulthalla/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file; defaults are used if omitted")
	flag.Parse()

	cfg := config.NewDefault()
	if *configPath != "" {
		if err := cfg.LoadFromFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "vaulthallad: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "vaulthallad: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "vaulthallad: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := utils.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		level = utils.INFO
	}
	format := utils.FormatText
	if cfg.Logging.Format == "json" {
		format = utils.FormatJSON
	}
	logger, err := utils.NewStructuredLogger(&utils.StructuredLoggerConfig{
		Level:         level,
		Output:        os.Stdout,
		Format:        format,
		IncludeCaller: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "vaulthallad: failed to construct logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	if err := run(cfg, logger); err != nil {
		logger.Errorf("vaulthallad exited with error: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Configuration, logger *utils.StructuredLogger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	master := crypto.NewMasterKeyProvider(cfg.Crypto.SealedMasterKeyPath)
	if err := master.Init(); err != nil {
		return fmt.Errorf("master key init: %w", err)
	}
	keyStore := memstore.NewVaultKeyStore()
	keys := crypto.NewVaultKeyManager(master, keyStore)

	fsCache := fscache.New()
	buckets := memstore.NewBucketStore()
	engines := storage.NewManager(cfg.S3, buckets, logger)

	vaults := memstore.NewVaultStore()
	policies := memstore.NewPolicyStore()
	ops := memstore.NewOperationStore()
	throughput := memstore.NewThroughputSink()
	seedLocalVault(cfg, vaults, policies)

	service := syncengine.NewService(vaults, policies, ops, throughput, fsCache, keys, engines,
		cfg.Sync.MaxInFlightUploads, cfg.Sync.FreeSpaceReserveBytes, logger)

	controller := syncengine.NewController(service, logger)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		var err error
		collector, err = metrics.NewCollector(&metrics.Config{
			Enabled:   cfg.Metrics.Enabled,
			Port:      cfg.Metrics.Port,
			Namespace: cfg.Metrics.Namespace,
			Subsystem: cfg.Metrics.Subsystem,
		})
		if err != nil {
			return fmt.Errorf("metrics collector: %w", err)
		}
		if err := collector.Start(ctx); err != nil {
			return fmt.Errorf("metrics collector start: %w", err)
		}
		defer collector.Stop(context.Background())
		service.Metrics = collector
	}

	mounts, err := mountActiveVaults(ctx, cfg, vaults, fsCache, engines, logger, collector)
	if err != nil {
		return err
	}
	defer unmountAll(mounts, logger)

	controller.Start(ctx)
	scheduleDueVaults(ctx, controller, vaults, policies, cfg, logger)
	go pruneStaleUploadsPeriodically(ctx, engines, cfg.Sync.StaleUploadMaxAge, logger)

	logger.Infof("vaulthallad started, mount root=%s", cfg.FUSE.MountRoot)
	<-ctx.Done()
	logger.Infof("vaulthallad shutting down")
	return nil
}

// seedLocalVault installs a single default vault so the daemon has
// something to mount and sync out of the box when no relational store is
// configured. Real deployments populate VaultStore/PolicyStore from the
// persisted schema (§6) instead.
func seedLocalVault(cfg *config.Configuration, vaults *memstore.VaultStore, policies *memstore.PolicyStore) {
	vault := vaulttypes.Vault{
		ID:          1,
		OwnerID:     1,
		Name:        "default",
		Quota:       cfg.Vault.DefaultQuotaByte,
		Type:        vaulttypes.VaultLocal,
		MountPoint:  cfg.FUSE.MountRoot,
		BackingPath: cfg.Vault.BackingRootBase,
		Active:      true,
	}
	vaults.Put(vault)

	now := time.Now()
	policies.Put(vault.ID, vaulttypes.Policy{
		VaultID:     vault.ID,
		IntervalSec: int64(cfg.Sync.DefaultIntervalSeconds),
		Enabled:     false, // local-only vault: no remote counterpart to sync against
		LastSyncAt:  &now,
	})
}

func mountActiveVaults(ctx context.Context, cfg *config.Configuration, vaults *memstore.VaultStore, fsCache *fscache.Cache, engines *storage.Manager, logger *utils.StructuredLogger, collector *metrics.Collector) ([]*fuseadapter.Session, error) {
	list, err := vaults.List(ctx)
	if err != nil {
		return nil, err
	}

	var sessions []*fuseadapter.Session
	for _, vault := range list {
		if !vault.Active {
			continue
		}
		engine, err := engines.Local(ctx, vault)
		if err != nil {
			return sessions, fmt.Errorf("resolving engine for vault %d: %w", vault.ID, err)
		}
		var content *cache.LRUCache
		if cfg.FUSE.ContentCacheBytes > 0 {
			content = cache.NewWeightedLRUCache(&cache.CacheConfig{MaxSize: cfg.FUSE.ContentCacheBytes}).LRUCache
		}
		adapter := fuseadapter.New(fsCache, engine, content, cfg.FUSE.DefaultUID, cfg.FUSE.DefaultGID, cfg.FUSE.DefaultMode, logger)
		if collector != nil {
			adapter.Metrics = collector
		}
		session, err := fuseadapter.Mount(adapter, fuseadapter.MountOptions{
			MountPoint: vault.MountPoint,
			AllowOther: cfg.FUSE.AllowOther,
		})
		if err != nil {
			return sessions, fmt.Errorf("mounting vault %d at %s: %w", vault.ID, vault.MountPoint, err)
		}
		logger.Infof("vault %d (%s) mounted at %s", vault.ID, vault.Name, vault.MountPoint)
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func unmountAll(sessions []*fuseadapter.Session, logger *utils.StructuredLogger) {
	for _, s := range sessions {
		if err := s.Unmount(); err != nil {
			logger.Warnf("unmount failed: %v", err)
		}
	}
}

// pruneStaleUploadsPeriodically sweeps every S3 vault's multipart-upload
// tracking state once per maxAge/4 (or hourly, whichever is shorter), so a
// long-running daemon's in-memory upload bookkeeping doesn't grow
// unbounded across restarts-free deployments.
func pruneStaleUploadsPeriodically(ctx context.Context, engines *storage.Manager, maxAge time.Duration, logger *utils.StructuredLogger) {
	if maxAge <= 0 {
		return
	}
	interval := maxAge / 4
	if interval > time.Hour {
		interval = time.Hour
	}
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := engines.PruneStaleUploads(maxAge); removed > 0 {
				logger.Infof("pruned %d stale multipart upload(s)", removed)
			}
		}
	}
}

// scheduleDueVaults enqueues every active S3 vault with an enabled policy
// onto the controller's priority queue, due immediately on startup.
func scheduleDueVaults(ctx context.Context, controller *syncengine.Controller, vaults *memstore.VaultStore, policies *memstore.PolicyStore, cfg *config.Configuration, logger *utils.StructuredLogger) {
	list, err := vaults.List(ctx)
	if err != nil {
		logger.Warnf("listing vaults for scheduling: %v", err)
		return
	}
	for _, vault := range list {
		if !vault.Active || vault.Type != vaulttypes.VaultS3 {
			continue
		}
		policy, ok, err := policies.Get(ctx, vault.ID)
		if err != nil || !ok || !policy.Enabled {
			continue
		}
		interval := time.Duration(policy.IntervalSec) * time.Second
		if interval <= 0 {
			interval = time.Duration(cfg.Sync.DefaultIntervalSeconds) * time.Second
		}
		controller.EnqueueWithInterval(vault.ID, time.Now(), interval)
	}
}
