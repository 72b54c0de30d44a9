package syncengine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vaulthalla/vaulthalla/internal/crypto"
	"github.com/vaulthalla/vaulthalla/internal/fscache"
	"github.com/vaulthalla/vaulthalla/internal/storage"
	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
	"github.com/vaulthalla/vaulthalla/pkg/utils"
)

// EngineResolver produces the local and remote storage engines backing one
// vault. Local-type vaults have nothing to sync and are never resolved;
// only S3-type vaults (local cache view + remote bucket) reach here.
type EngineResolver interface {
	Local(ctx context.Context, vault vaulttypes.Vault) (storage.Engine, error)
	Remote(ctx context.Context, vault vaulttypes.Vault) (storage.Engine, error)
}

// Service implements CycleRunner: it is the glue the Controller (C8) calls
// into for one vault's sync cycle, in the order operation replay (C9),
// planning (C6), preflight (C10), execution (C7).
type Service struct {
	Vaults     VaultStore
	Policies   PolicyStore
	Operations OperationStore
	Throughput ThroughputSink
	Cache      *fscache.Cache
	Keys       *crypto.VaultKeyManager
	Engines    EngineResolver

	// Metrics receives per-action timing and outcome from every cycle's
	// Executor, if set. Left nil for deployments with no Prometheus
	// collector configured.
	Metrics MetricsRecorder

	MaxInFlight           int
	FreeSpaceReserveBytes int64
	FreeSpace             FreeSpaceChecker

	logger      *utils.StructuredLogger
	syncEventID int64
}

// NewService wires the sync cycle's collaborators together. keys may be nil
// for deployments with no vault carries upstream encryption configured.
func NewService(vaults VaultStore, policies PolicyStore, ops OperationStore, throughput ThroughputSink, cache *fscache.Cache, keys *crypto.VaultKeyManager, engines EngineResolver, maxInFlight int, freeSpaceReserve int64, logger *utils.StructuredLogger) *Service {
	if logger == nil {
		logger, _ = utils.NewStructuredLogger(nil)
	}
	return &Service{
		Vaults:                vaults,
		Policies:              policies,
		Operations:            ops,
		Throughput:            throughput,
		Cache:                 cache,
		Keys:                  keys,
		Engines:               engines,
		MaxInFlight:           maxInFlight,
		FreeSpaceReserveBytes: freeSpaceReserve,
		FreeSpace:             StatfsFreeSpace,
		logger:                logger.WithComponent("syncengine.service"),
	}
}

// RunCycle performs one complete sync cycle for vaultID. Local-type vaults,
// inactive vaults, and vaults with no enabled policy are no-ops.
func (s *Service) RunCycle(ctx context.Context, vaultID int64) error {
	vault, ok, err := s.Vaults.Get(ctx, vaultID)
	if err != nil {
		return err
	}
	if !ok || !vault.Active || vault.Type != vaulttypes.VaultS3 {
		return nil
	}

	policy, ok, err := s.Policies.Get(ctx, vaultID)
	if err != nil {
		return err
	}
	if !ok || !policy.Enabled {
		return nil
	}

	if err := s.Policies.ReportSyncStarted(ctx, vaultID); err != nil {
		s.logger.Warnf("failed to record sync start for vault %d: %v", vaultID, err)
	}

	localEngine, err := s.Engines.Local(ctx, vault)
	if err != nil {
		return s.fail(ctx, vaultID, err)
	}
	remoteEngine, err := s.Engines.Remote(ctx, vault)
	if err != nil {
		return s.fail(ctx, vaultID, err)
	}

	replayer := NewOperationReplayer(s.Operations, s.logger)
	if err := replayer.Replay(ctx, vaultID, localEngine); err != nil {
		s.logger.Warnf("operation replay for vault %d returned an error: %v", vaultID, err)
	}

	localFiles, localUsage, err := listAsMap(ctx, localEngine)
	if err != nil {
		return s.fail(ctx, vaultID, err)
	}
	remoteFiles, _, err := listAsMap(ctx, remoteEngine)
	if err != nil {
		return s.fail(ctx, vaultID, err)
	}

	plan := Build(localFiles, remoteFiles, policy)

	var encryptor *crypto.VaultEncryptionManager
	if s.Keys != nil {
		encryptor = crypto.NewVaultEncryptionManager(vaultID, s.Keys)
	}

	preflight := NewPreflight(s.FreeSpace, s.FreeSpaceReserveBytes, encryptor != nil)
	if err := preflight.Check(plan, vault, localUsage); err != nil {
		return s.fail(ctx, vaultID, err)
	}

	executor := NewExecutor(localEngine, remoteEngine, s.Cache, encryptor, s.MaxInFlight, s.logger)
	executor.Metrics = s.Metrics
	records, execErr := executor.Execute(ctx, atomic.AddInt64(&s.syncEventID, 1), plan)

	if s.Throughput != nil {
		for _, record := range records {
			if err := s.Throughput.Record(ctx, record); err != nil {
				s.logger.Warnf("failed to record %s throughput for vault %d: %v", record.Metric, vaultID, err)
			}
		}
	}

	if err := s.Policies.ReportSyncResult(ctx, vaultID, execErr == nil, time.Now()); err != nil {
		s.logger.Warnf("failed to record sync result for vault %d: %v", vaultID, err)
	}
	return execErr
}

func (s *Service) fail(ctx context.Context, vaultID int64, cause error) error {
	if err := s.Policies.ReportSyncResult(ctx, vaultID, false, time.Now()); err != nil {
		s.logger.Warnf("failed to record sync failure for vault %d: %v", vaultID, err)
	}
	return cause
}

func listAsMap(ctx context.Context, engine storage.Engine) (map[string]vaulttypes.ListedFile, int64, error) {
	listed, err := engine.List(ctx, "/", true)
	if err != nil {
		return nil, 0, err
	}
	out := make(map[string]vaulttypes.ListedFile, len(listed))
	var total int64
	for _, f := range listed {
		out[f.Path] = f
		total += f.Size
	}
	return out, total, nil
}
