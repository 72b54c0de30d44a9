package syncengine

import (
	"context"

	"github.com/vaulthalla/vaulthalla/internal/storage"
	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
	"github.com/vaulthalla/vaulthalla/pkg/utils"
)

// OperationReplayer drains a vault's pending Operations and replays each
// move/rename/copy through the storage engine ahead of planning (C9). A
// failed replay surfaces an error but never blocks the plan: its source
// entry is left for the planner to treat as a conflict in the same cycle if
// it remains divergent, per the operation log's documented non-blocking
// contract.
type OperationReplayer struct {
	store  OperationStore
	logger *utils.StructuredLogger
}

// NewOperationReplayer constructs a replayer over store.
func NewOperationReplayer(store OperationStore, logger *utils.StructuredLogger) *OperationReplayer {
	if logger == nil {
		logger, _ = utils.NewStructuredLogger(nil)
	}
	return &OperationReplayer{store: store, logger: logger.WithComponent("syncengine.oplog")}
}

// Replay drains and applies every pending operation for vaultID against
// engine. It returns an error only when the pending list cannot be read or
// ctx is cancelled; individual operation failures are recorded on the
// operation and logged.
func (r *OperationReplayer) Replay(ctx context.Context, vaultID int64, engine storage.Engine) error {
	pending, err := r.store.Pending(ctx, vaultID)
	if err != nil {
		return err
	}

	for _, op := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		r.replayOne(ctx, op, engine)
	}
	return nil
}

func (r *OperationReplayer) replayOne(ctx context.Context, op vaulttypes.Operation, engine storage.Engine) {
	if err := r.store.MarkInProgress(ctx, op.ID); err != nil {
		r.logger.Warnf("failed to mark operation %d in progress: %v", op.ID, err)
	}

	applyErr := r.apply(ctx, op, engine)
	if applyErr != nil {
		r.logger.Warnf("operation %d (%s) failed to replay: %v", op.ID, op.Op, applyErr)
	}

	if err := r.store.MarkCompleted(ctx, op.ID, applyErr); err != nil {
		r.logger.Warnf("failed to mark operation %d completed: %v", op.ID, err)
	}
}

func (r *OperationReplayer) apply(ctx context.Context, op vaulttypes.Operation, engine storage.Engine) error {
	switch op.Op {
	case vaulttypes.OpMove, vaulttypes.OpRename:
		return r.moveOrRename(ctx, op, engine)
	case vaulttypes.OpCopy:
		return r.copy(ctx, op, engine)
	default:
		return nil
	}
}

func (r *OperationReplayer) moveOrRename(ctx context.Context, op vaulttypes.Operation, engine storage.Engine) error {
	data, err := engine.Read(ctx, op.SourcePath)
	if err != nil {
		return err
	}
	if err := engine.Write(ctx, op.DestinationPath, data, true); err != nil {
		return err
	}
	return engine.Delete(ctx, op.SourcePath)
}

func (r *OperationReplayer) copy(ctx context.Context, op vaulttypes.Operation, engine storage.Engine) error {
	data, err := engine.Read(ctx, op.SourcePath)
	if err != nil {
		return err
	}
	return engine.Write(ctx, op.DestinationPath, data, true)
}
