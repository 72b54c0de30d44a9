package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/vaulthalla/vaulthalla/internal/config"
	"github.com/vaulthalla/vaulthalla/internal/storage/local"
	"github.com/vaulthalla/vaulthalla/internal/storage/s3"
	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
	"github.com/vaulthalla/vaulthalla/pkg/utils"
	"github.com/vaulthalla/vaulthalla/pkg/vherrors"
)

// staleUploadPruner is the capability a remote engine exposes to let a
// maintenance sweep drop finished multipart-upload tracking state; only the
// S3 engine implements it.
type staleUploadPruner interface {
	PruneStaleUploads(maxAge time.Duration) int
}

// BucketResolver supplies the per-vault S3 bucket and, optionally,
// credentials that override the process-wide config.S3Config defaults.
// Bucket/credential storage is persisted state (§6) and out of core scope;
// this is the narrow seam a relational-backed implementation fills in.
type BucketResolver interface {
	Bucket(ctx context.Context, vaultID int64) (bucket string, override *config.S3Config, err error)
}

// engineEntry pairs a vault's local-view engine (always present) with its
// remote S3 engine (present only for VaultS3 vaults).
type engineEntry struct {
	local  Engine
	remote Engine
}

// Manager owns the shared map of storage engines keyed by vault id, per
// §9's "shared ownership of engines" design note: StorageManager,
// SyncController, and FUSE handlers all resolve engines through it rather
// than constructing their own. Reads resolve once and the caller holds onto
// the returned Engine reference; mutation (add/remove) is serialised behind
// the map's write lock.
type Manager struct {
	mu      sync.RWMutex
	engines map[int64]*engineEntry

	s3Defaults config.S3Config
	buckets    BucketResolver
	logger     *utils.StructuredLogger
}

// NewManager constructs a Manager. s3Defaults supplies the process-wide
// endpoint/region/credential/timeout fallbacks (config.S3Config); buckets
// resolves per-vault bucket names (and, optionally, per-vault credential
// overrides).
func NewManager(s3Defaults config.S3Config, buckets BucketResolver, logger *utils.StructuredLogger) *Manager {
	if logger == nil {
		logger, _ = utils.NewStructuredLogger(nil)
	}
	return &Manager{
		engines:    make(map[int64]*engineEntry),
		s3Defaults: s3Defaults,
		buckets:    buckets,
		logger:     logger.WithComponent("storage.manager"),
	}
}

// Local returns the backing-directory engine for vault. For VaultLocal
// vaults this is the vault's sole engine, rooted at BackingPath; for
// VaultS3 vaults it is the local cache view rooted at the same path.
func (m *Manager) Local(ctx context.Context, vault vaulttypes.Vault) (Engine, error) {
	if e := m.cached(vault.ID); e != nil && e.local != nil {
		return e.local, nil
	}

	engine, err := local.New(vault.BackingPath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.engines[vault.ID]
	if entry == nil {
		entry = &engineEntry{}
		m.engines[vault.ID] = entry
	}
	if entry.local == nil {
		entry.local = engine
	}
	return entry.local, nil
}

// Remote returns the S3 engine backing vault's bucket. It is an error to
// call Remote for a VaultLocal vault.
func (m *Manager) Remote(ctx context.Context, vault vaulttypes.Vault) (Engine, error) {
	if vault.Type != vaulttypes.VaultS3 {
		return nil, vherrors.New(vherrors.Internal, fmt.Sprintf("vault %d is not an S3 vault", vault.ID)).
			WithComponent("storage.manager").WithOperation("remote")
	}
	if e := m.cached(vault.ID); e != nil && e.remote != nil {
		return e.remote, nil
	}

	// Bucket defaults to the vault's own name when no resolver is
	// configured, a reasonable single-tenant fallback; a resolver may also
	// override region/credentials per vault (e.g. cross-account buckets).
	bucket := vault.Name
	cfg := m.s3Defaults
	if m.buckets != nil {
		resolvedBucket, override, err := m.buckets.Bucket(ctx, vault.ID)
		if err != nil {
			return nil, err
		}
		if resolvedBucket != "" {
			bucket = resolvedBucket
		}
		if override != nil {
			cfg = *override
		}
	}

	engine := s3.New(s3.Config{
		Endpoint:        m.s3Defaults.Endpoint,
		Region:          valueOr(cfg.Region, m.s3Defaults.Region),
		Bucket:          bucket,
		AccessKeyID:     valueOr(cfg.AccessKeyID, m.s3Defaults.AccessKeyID),
		SecretAccessKey: valueOr(cfg.SecretAccessKey, m.s3Defaults.SecretAccessKey),
		PartSize:        m.s3Defaults.PartSizeBytes,
		ConnectTimeout:  m.s3Defaults.ConnectTimeout,
		RequestTimeout:  m.s3Defaults.RequestTimeout,
	}, m.logger)
	return m.installRemote(vault.ID, engine), nil
}

func (m *Manager) installRemote(vaultID int64, engine Engine) Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.engines[vaultID]
	if entry == nil {
		entry = &engineEntry{}
		m.engines[vaultID] = entry
	}
	if entry.remote == nil {
		entry.remote = engine
	}
	return entry.remote
}

func (m *Manager) cached(vaultID int64) *engineEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engines[vaultID]
}

// Evict removes every engine handle cached for vaultID, used when a vault
// is destroyed (§3 "removal cascades to policies, keys, and entries").
func (m *Manager) Evict(vaultID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.engines, vaultID)
}

// PruneStaleUploads sweeps every cached S3 remote engine's multipart-upload
// tracking state, dropping entries that reached a terminal status more than
// maxAge ago. It returns the total number of entries removed across all
// vaults.
func (m *Manager) PruneStaleUploads(maxAge time.Duration) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var removed int
	for _, entry := range m.engines {
		if entry.remote == nil {
			continue
		}
		if pruner, ok := entry.remote.(staleUploadPruner); ok {
			removed += pruner.PruneStaleUploads(maxAge)
		}
	}
	return removed
}

// LocalCachePath joins a vault's configured backing root with its relative
// cache subdirectory, used by deployments without a per-vault BackingPath
// already resolved in the VaultStore.
func LocalCachePath(backingRootBase string, vaultID int64) string {
	return filepath.Join(backingRootBase, fmt.Sprintf("vault-%d", vaultID))
}

func valueOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
