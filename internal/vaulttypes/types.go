// Package vaulttypes defines the data model shared by the storage engines,
// the FS cache, and the sync engine: entries, vaults, sync policies, plan
// actions, user-initiated operations, vault keys, and throughput records.
package vaulttypes

import "time"

// EntryKind distinguishes a file from a directory.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
)

func (k EntryKind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// Entry is a filesystem object visible inside a vault. Entries form a tree
// rooted at the vault's "/" entry, which has no parent.
type Entry struct {
	ID        int64     `json:"id"`
	VaultID   int64     `json:"vault_id"`
	Alias     string    `json:"alias"` // base32, used as the S3 object key
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	Size      int64     `json:"size"`
	OwnerID   int64     `json:"owner_id"`
	GroupID   int64     `json:"group_id"`
	Mode      uint32    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Kind      EntryKind `json:"kind"`
	// ContentHash is populated once the entry has been materialised locally
	// or remotely. For S3-origin entries this is the (quote-stripped) ETag,
	// treated as an opaque equality token rather than a byte hash.
	ContentHash string `json:"content_hash,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	// Inode is assigned the first time the entry is observed through FUSE.
	Inode *uint64 `json:"inode,omitempty"`
	// Path is vault-relative, e.g. "/docs/report.pdf".
	Path string `json:"path"`
	// BackingPath is the local cache file for S3-origin entries; empty for
	// entries native to a Local vault, whose backing path is derived from
	// Path and the vault's backing root instead.
	BackingPath string `json:"backing_path,omitempty"`
}

// IsRoot reports whether e is the root entry of its vault.
func (e *Entry) IsRoot() bool {
	return e.ParentID == nil && e.Name == "/"
}

// VaultType selects the storage engine backing a vault.
type VaultType int

const (
	VaultLocal VaultType = iota
	VaultS3
)

func (t VaultType) String() string {
	if t == VaultS3 {
		return "s3"
	}
	return "local"
}

// Vault is a user-scoped filesystem namespace backed by exactly one engine.
type Vault struct {
	ID      int64     `json:"id"`
	OwnerID int64     `json:"owner_id"`
	Name    string    `json:"name"`
	Quota   int64     `json:"quota"` // bytes
	Type    VaultType `json:"type"`
	// MountPoint is the FUSE path the vault is exposed under.
	MountPoint string `json:"mount_point"`
	// BackingPath is the local cache root for S3 vaults, or the storage
	// root for Local vaults.
	BackingPath string `json:"backing_path"`
	Active      bool   `json:"active"`
}

// SyncStrategy is the reconciliation mode a Policy applies between a
// vault's local and remote views.
type SyncStrategy int

const (
	// StrategyCache pulls remote-only entries on demand and trims the local
	// cache back to quota after use.
	StrategyCache SyncStrategy = iota
	// StrategySync is bidirectional: local-only uploads, remote-only
	// downloads, and overlaps resolved by ConflictPolicy.
	StrategySync
	// StrategyMirror is unidirectional; the non-preferred side's leftovers
	// are deleted.
	StrategyMirror
)

func (s SyncStrategy) String() string {
	switch s {
	case StrategySync:
		return "sync"
	case StrategyMirror:
		return "mirror"
	default:
		return "cache"
	}
}

// ConflictPolicy decides the winner when a path exists on both sides with
// differing content.
type ConflictPolicy int

const (
	KeepLocal ConflictPolicy = iota
	KeepRemote
	KeepNewest
	Ask
)

func (c ConflictPolicy) String() string {
	switch c {
	case KeepRemote:
		return "keep_remote"
	case KeepNewest:
		return "keep_newest"
	case Ask:
		return "ask"
	default:
		return "keep_local"
	}
}

// Policy is the declarative remote-sync configuration for one vault.
type Policy struct {
	VaultID        int64          `json:"vault_id"`
	IntervalSec    int64          `json:"interval_seconds"`
	Enabled        bool           `json:"enabled"`
	LastSyncAt     *time.Time     `json:"last_sync_at,omitempty"`
	LastSuccessAt  *time.Time     `json:"last_success_at,omitempty"`
	Strategy       SyncStrategy   `json:"strategy"`
	ConflictPolicy ConflictPolicy `json:"conflict_policy"`
	// ConfigHash is a stable digest over the policy fields above, used to
	// detect a policy change that should pull a task's next run forward.
	ConfigHash string `json:"config_hash"`
}

// WantsEnsureDirectories reports whether the planner should emit a leading
// EnsureDirectories action for this policy. All strategies that write in
// either direction need it; a pure Cache policy with nothing pulled yet
// still benefits from pre-creating directories observed on the remote side.
func (p Policy) WantsEnsureDirectories() bool {
	return true
}

// UploadLocalOnly reports whether paths present only locally should be
// pushed to the remote side.
func (p Policy) UploadLocalOnly() bool {
	switch p.Strategy {
	case StrategySync:
		return true
	case StrategyMirror:
		return p.ConflictPolicy == KeepLocal
	default: // Cache
		return false
	}
}

// DownloadRemoteOnly reports whether paths present only remotely should be
// pulled to the local side.
func (p Policy) DownloadRemoteOnly() bool {
	switch p.Strategy {
	case StrategySync:
		return true
	case StrategyMirror:
		return p.ConflictPolicy == KeepRemote
	default: // Cache
		return false
	}
}

// DeleteRemoteLeftovers reports whether remote-only paths absent on the
// preferred (local) Mirror side should be deleted remotely.
func (p Policy) DeleteRemoteLeftovers() bool {
	return p.Strategy == StrategyMirror && p.ConflictPolicy == KeepLocal
}

// DeleteLocalLeftovers reports whether local-only paths absent on the
// preferred (remote) Mirror side should be deleted locally.
func (p Policy) DeleteLocalLeftovers() bool {
	return p.Strategy == StrategyMirror && p.ConflictPolicy == KeepRemote
}

// ActionKind enumerates the atomic sync steps a Planner can emit.
type ActionKind int

const (
	ActionEnsureDirectories ActionKind = iota
	ActionUpload
	ActionDownload
	ActionDeleteLocal
	ActionDeleteRemote
)

func (k ActionKind) String() string {
	switch k {
	case ActionEnsureDirectories:
		return "ensure_directories"
	case ActionUpload:
		return "upload"
	case ActionDownload:
		return "download"
	case ActionDeleteLocal:
		return "delete_local"
	case ActionDeleteRemote:
		return "delete_remote"
	default:
		return "unknown"
	}
}

// Action is one step of a sync plan. EntryKey is the vault-relative path
// the action applies to; LocalFile/RemoteFile carry whichever side's
// listing entry is relevant (both nil for EnsureDirectories, whose target
// paths live in Directories instead).
type Action struct {
	Kind     ActionKind `json:"kind"`
	EntryKey string     `json:"entry_key"`
	LocalFile  *ListedFile `json:"local_file,omitempty"`
	RemoteFile *ListedFile `json:"remote_file,omitempty"`
	// FreeAfterDownload marks a Download whose backing file should be
	// removed once the referencing request completes (Cache strategy).
	FreeAfterDownload bool `json:"free_after_download,omitempty"`
	// Directories carries the set of directory paths to ensure, only
	// populated on an ActionEnsureDirectories step.
	Directories []string `json:"directories,omitempty"`
}

// ListedFile is the minimal per-path record a StorageEngine listing yields,
// used as the Planner's comparison unit for both sides.
type ListedFile struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
	ContentHash string    `json:"content_hash,omitempty"`
	Kind        EntryKind `json:"kind"`
}

// OperationKind is a user-initiated filesystem operation replayed by
// syncengine's OperationReplayer ahead of planning.
type OperationKind int

const (
	OpCopy OperationKind = iota
	OpMove
	OpRename
)

func (k OperationKind) String() string {
	switch k {
	case OpMove:
		return "move"
	case OpRename:
		return "rename"
	default:
		return "copy"
	}
}

// OperationTarget is the kind of filesystem object an Operation applies to.
type OperationTarget int

const (
	TargetFile OperationTarget = iota
	TargetDirectory
)

func (t OperationTarget) String() string {
	if t == TargetDirectory {
		return "directory"
	}
	return "file"
}

// OperationStatus is the lifecycle state of an Operation.
type OperationStatus int

const (
	OpPending OperationStatus = iota
	OpInProgress
	OpSuccess
	OpFailed
	OpCancelled
)

func (s OperationStatus) String() string {
	switch s {
	case OpInProgress:
		return "in_progress"
	case OpSuccess:
		return "success"
	case OpFailed:
		return "failed"
	case OpCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// Operation is a user-initiated move/rename/copy, queued for replay at the
// head of the next sync cycle for its vault.
type Operation struct {
	ID             int64           `json:"id"`
	FSEntryID      int64           `json:"fs_entry_id"`
	ExecutorUserID int64           `json:"executor_user"`
	Op             OperationKind   `json:"op"`
	Target         OperationTarget `json:"target"`
	Status         OperationStatus `json:"status"`
	SourcePath      string     `json:"source_path"`
	DestinationPath string     `json:"destination_path"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// VaultKeyState marks whether a VaultKey is the active key for its vault or
// a superseded version still needed to finish re-wrapping ciphertext.
type VaultKeyState int

const (
	KeyActive VaultKeyState = iota
	KeyRotationInProgress
	KeyRetired
)

func (s VaultKeyState) String() string {
	switch s {
	case KeyRotationInProgress:
		return "rotation_in_progress"
	case KeyRetired:
		return "retired"
	default:
		return "active"
	}
}

// VaultKey is one version of a vault's data key. DataKey holds the unwrapped
// key material and exists only in memory; WrappedKeyBytes and IV are the
// persisted, master-key-wrapped form.
type VaultKey struct {
	VaultID         int64         `json:"vault_id"`
	Version         int           `json:"version"`
	DataKey         []byte        `json:"-"`
	WrappedKeyBytes []byte        `json:"wrapped_key_bytes"`
	IV              []byte        `json:"iv"`
	State           VaultKeyState `json:"state"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ThroughputMetric classifies a ThroughputRecord by the kind of I/O it
// accounts for.
type ThroughputMetric int

const (
	MetricUpload ThroughputMetric = iota
	MetricDownload
	MetricRename
	MetricCopy
	MetricDelete
)

func (m ThroughputMetric) String() string {
	switch m {
	case MetricDownload:
		return "download"
	case MetricRename:
		return "rename"
	case MetricCopy:
		return "copy"
	case MetricDelete:
		return "delete"
	default:
		return "upload"
	}
}

// ThroughputRecord accumulates per-metric I/O counters over one sync event.
type ThroughputRecord struct {
	SyncEventID int64            `json:"sync_event_id"`
	Metric      ThroughputMetric `json:"metric"`
	NumOps      int64            `json:"num_ops"`
	SizeBytes   int64            `json:"size_bytes"`
	StartedAt   time.Time        `json:"started_at"`
	EndedAt     time.Time        `json:"ended_at"`
}

// Add folds one action's byte count into the record.
func (t *ThroughputRecord) Add(bytes int64) {
	t.NumOps++
	t.SizeBytes += bytes
}
