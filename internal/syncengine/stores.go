package syncengine

import (
	"context"
	"time"

	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
)

// OperationStore persists user-initiated move/rename/copy operations
// awaiting replay ahead of planning (C9).
type OperationStore interface {
	Pending(ctx context.Context, vaultID int64) ([]vaulttypes.Operation, error)
	Add(ctx context.Context, op vaulttypes.Operation) error
	MarkInProgress(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64, opErr error) error
}

// PolicyStore reads and updates a vault's sync policy and its last-run
// bookkeeping.
type PolicyStore interface {
	Get(ctx context.Context, vaultID int64) (vaulttypes.Policy, bool, error)
	ReportSyncStarted(ctx context.Context, vaultID int64) error
	ReportSyncResult(ctx context.Context, vaultID int64, success bool, at time.Time) error
}

// VaultStore resolves vault metadata the planner and preflight checks need
// (quota, active flag, mount/backing paths).
type VaultStore interface {
	Get(ctx context.Context, id int64) (vaulttypes.Vault, bool, error)
	List(ctx context.Context) ([]vaulttypes.Vault, error)
}

// ThroughputSink records per-sync-event throughput for observability.
type ThroughputSink interface {
	Record(ctx context.Context, rec vaulttypes.ThroughputRecord) error
}
