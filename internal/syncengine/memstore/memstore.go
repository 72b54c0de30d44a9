// Package memstore provides in-memory implementations of the sync engine's
// collaborator interfaces (OperationStore, PolicyStore, VaultStore,
// ThroughputSink), used by tests and by the daemon's standalone mode when
// no relational store is configured.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/vaulthalla/vaulthalla/internal/config"
	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
)

// OperationStore is an in-memory, mutex-guarded OperationStore. Operation
// itself has no vault_id column (a real store joins through fs_entries, per
// the persisted schema's (vault_id, parent_id, name) keying); this
// in-memory version keeps that association in a side map populated by
// AssociateWithVault, which callers invoke after Add; cmd/vaulthallad does
// not call it.
type OperationStore struct {
	mu          sync.Mutex
	nextID      int64
	ops         map[int64]*vaulttypes.Operation
	vaultOfOp   map[int64]int64
}

// NewOperationStore constructs an empty OperationStore.
func NewOperationStore() *OperationStore {
	return &OperationStore{
		nextID:    1,
		ops:       make(map[int64]*vaulttypes.Operation),
		vaultOfOp: make(map[int64]int64),
	}
}

// Pending returns every operation still awaiting replay for vaultID.
func (s *OperationStore) Pending(ctx context.Context, vaultID int64) ([]vaulttypes.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []vaulttypes.Operation
	for id, op := range s.ops {
		if op.Status == vaulttypes.OpPending && s.vaultOfOp[id] == vaultID {
			out = append(out, *op)
		}
	}
	return out, nil
}

// Add enqueues a new operation, assigning it an ID if unset.
func (s *OperationStore) Add(ctx context.Context, op vaulttypes.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if op.ID == 0 {
		op.ID = s.nextID
		s.nextID++
	}
	op.Status = vaulttypes.OpPending
	stored := op
	s.ops[op.ID] = &stored
	return nil
}

// AssociateWithVault records which vault an operation belongs to, since
// Operation carries no vault_id of its own.
func (s *OperationStore) AssociateWithVault(opID, vaultID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vaultOfOp[opID] = vaultID
}

// MarkInProgress transitions op id from Pending to InProgress.
func (s *OperationStore) MarkInProgress(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return nil
	}
	op.Status = vaulttypes.OpInProgress
	return nil
}

// MarkCompleted transitions op id to Success (opErr == nil) or Failed,
// recording opErr's message.
func (s *OperationStore) MarkCompleted(ctx context.Context, id int64, opErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return nil
	}
	now := time.Now()
	op.CompletedAt = &now
	if opErr != nil {
		op.Status = vaulttypes.OpFailed
		op.Error = opErr.Error()
		return nil
	}
	op.Status = vaulttypes.OpSuccess
	return nil
}

// PolicyStore is an in-memory, mutex-guarded PolicyStore.
type PolicyStore struct {
	mu       sync.Mutex
	policies map[int64]vaulttypes.Policy
}

// NewPolicyStore constructs an empty PolicyStore.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{policies: make(map[int64]vaulttypes.Policy)}
}

// Put installs or replaces the policy for vaultID.
func (s *PolicyStore) Put(vaultID int64, policy vaulttypes.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	policy.VaultID = vaultID
	s.policies[vaultID] = policy
}

// Get returns the policy for vaultID, if one is configured.
func (s *PolicyStore) Get(ctx context.Context, vaultID int64) (vaulttypes.Policy, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[vaultID]
	return p, ok, nil
}

// ReportSyncStarted stamps LastSyncAt for vaultID's policy.
func (s *PolicyStore) ReportSyncStarted(ctx context.Context, vaultID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[vaultID]
	if !ok {
		return nil
	}
	now := time.Now()
	p.LastSyncAt = &now
	s.policies[vaultID] = p
	return nil
}

// ReportSyncResult stamps LastSuccessAt on success, leaving it unchanged on
// failure.
func (s *PolicyStore) ReportSyncResult(ctx context.Context, vaultID int64, success bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[vaultID]
	if !ok {
		return nil
	}
	if success {
		p.LastSuccessAt = &at
	}
	s.policies[vaultID] = p
	return nil
}

// VaultStore is an in-memory, mutex-guarded VaultStore.
type VaultStore struct {
	mu     sync.Mutex
	vaults map[int64]vaulttypes.Vault
}

// NewVaultStore constructs an empty VaultStore.
func NewVaultStore() *VaultStore {
	return &VaultStore{vaults: make(map[int64]vaulttypes.Vault)}
}

// Put installs or replaces vault.
func (s *VaultStore) Put(vault vaulttypes.Vault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vaults[vault.ID] = vault
}

// Get returns the vault with the given id, if any.
func (s *VaultStore) Get(ctx context.Context, id int64) (vaulttypes.Vault, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vaults[id]
	return v, ok, nil
}

// List returns every registered vault in no particular order.
func (s *VaultStore) List(ctx context.Context) ([]vaulttypes.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vaulttypes.Vault, 0, len(s.vaults))
	for _, v := range s.vaults {
		out = append(out, v)
	}
	return out, nil
}

// ThroughputSink is an in-memory ThroughputSink that retains every record,
// useful for assertions in tests.
type ThroughputSink struct {
	mu      sync.Mutex
	records []vaulttypes.ThroughputRecord
}

// NewThroughputSink constructs an empty ThroughputSink.
func NewThroughputSink() *ThroughputSink {
	return &ThroughputSink{}
}

// Record appends rec to the sink.
func (s *ThroughputSink) Record(ctx context.Context, rec vaulttypes.ThroughputRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of every recorded ThroughputRecord.
func (s *ThroughputSink) Records() []vaulttypes.ThroughputRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vaulttypes.ThroughputRecord, len(s.records))
	copy(out, s.records)
	return out
}

// VaultKeyStore is an in-memory, mutex-guarded crypto.VaultKeyStore.
type VaultKeyStore struct {
	mu   sync.Mutex
	keys map[int64][]*vaulttypes.VaultKey
}

// NewVaultKeyStore constructs an empty VaultKeyStore.
func NewVaultKeyStore() *VaultKeyStore {
	return &VaultKeyStore{keys: make(map[int64][]*vaulttypes.VaultKey)}
}

// Load returns every retained key version for vaultID, newest last.
func (s *VaultKeyStore) Load(vaultID int64) ([]*vaulttypes.VaultKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*vaulttypes.VaultKey(nil), s.keys[vaultID]...), nil
}

// Save appends or replaces key by (vault_id, version).
func (s *VaultKeyStore) Save(key *vaulttypes.VaultKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.keys[key.VaultID]
	for i, existing := range versions {
		if existing.Version == key.Version {
			versions[i] = key
			s.keys[key.VaultID] = versions
			return nil
		}
	}
	s.keys[key.VaultID] = append(versions, key)
	return nil
}

// BucketStore is an in-memory, mutex-guarded storage.BucketResolver.
type BucketStore struct {
	mu      sync.Mutex
	buckets map[int64]string
	configs map[int64]config.S3Config
}

// NewBucketStore constructs an empty BucketStore.
func NewBucketStore() *BucketStore {
	return &BucketStore{
		buckets: make(map[int64]string),
		configs: make(map[int64]config.S3Config),
	}
}

// Put installs the bucket name for vaultID, with an optional per-vault
// config override (pass a zero config.S3Config to use process defaults).
func (s *BucketStore) Put(vaultID int64, bucket string, override config.S3Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[vaultID] = bucket
	s.configs[vaultID] = override
}

// Bucket returns the bucket name and, if one was installed, a per-vault
// config override for vaultID.
func (s *BucketStore) Bucket(ctx context.Context, vaultID int64) (string, *config.S3Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.buckets[vaultID]
	if cfg, ok := s.configs[vaultID]; ok && cfg != (config.S3Config{}) {
		return bucket, &cfg, nil
	}
	return bucket, nil, nil
}
