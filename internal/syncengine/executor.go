package syncengine

import (
	"context"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vaulthalla/vaulthalla/internal/crypto"
	"github.com/vaulthalla/vaulthalla/internal/fscache"
	"github.com/vaulthalla/vaulthalla/internal/storage"
	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
	"github.com/vaulthalla/vaulthalla/pkg/utils"
	"github.com/vaulthalla/vaulthalla/pkg/vherrors"
)

// DefaultMaxInFlight bounds the Executor's worker pool when the caller
// doesn't override it, matching the sync HTTP pool's default (§5).
const DefaultMaxInFlight = 8

// metadataWriter is the optional capability an Engine exposes when it can
// attach encryption metadata headers to a write (S3's x-amz-meta-iv /
// x-amz-meta-keyver). Engines without it (Local) never carry encrypted
// payloads upstream.
type metadataWriter interface {
	PutObjectWithMetadata(ctx context.Context, rel string, data []byte, metadata map[string]string) error
}

// metadataReader is the read-side counterpart of metadataWriter.
type metadataReader interface {
	ReadWithMetadata(ctx context.Context, rel string) ([]byte, map[string]string, error)
}

// MetricsRecorder is the observability sink an Executor reports per-action
// timing and outcome to. internal/metrics.Collector implements this; a nil
// Executor.Metrics is a valid no-op.
type MetricsRecorder interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
	RecordError(operation string, err error)
}

// Executor is the Sync Executor (C7): it dispatches one Plan's actions to a
// bounded worker pool, calling into the local/remote engines and crypto,
// updating the FS cache, and accumulating throughput.
type Executor struct {
	Local  storage.Engine
	Remote storage.Engine
	Cache  *fscache.Cache
	// Encryptor is nil when the vault carries no upstream encryption.
	Encryptor *crypto.VaultEncryptionManager
	// OnFreeAfterDownload is invoked with the vault-relative path after a
	// Cache-strategy Download completes, once the caller's own reference
	// counting (FS cache open-handle tracking) determines it's safe to
	// reclaim the backing file. Executor itself never deletes it directly.
	OnFreeAfterDownload func(path string)

	// Metrics receives per-action timing and outcome, if set. Left nil for
	// deployments with no Prometheus collector configured.
	Metrics MetricsRecorder

	MaxInFlight int
	logger      *utils.StructuredLogger
}

// NewExecutor constructs an Executor. maxInFlight <= 0 uses DefaultMaxInFlight.
func NewExecutor(local, remote storage.Engine, cache *fscache.Cache, encryptor *crypto.VaultEncryptionManager, maxInFlight int, logger *utils.StructuredLogger) *Executor {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	if logger == nil {
		logger, _ = utils.NewStructuredLogger(nil)
	}
	return &Executor{
		Local:       local,
		Remote:      remote,
		Cache:       cache,
		Encryptor:   encryptor,
		MaxInFlight: maxInFlight,
		logger:      logger.WithComponent("syncengine.executor"),
	}
}

// metricForAction maps a planner action to the throughput metric it counts
// against. EnsureDirectories moves no bytes and is not accounted for.
func metricForAction(kind vaulttypes.ActionKind) (vaulttypes.ThroughputMetric, bool) {
	switch kind {
	case vaulttypes.ActionUpload:
		return vaulttypes.MetricUpload, true
	case vaulttypes.ActionDownload:
		return vaulttypes.MetricDownload, true
	case vaulttypes.ActionDeleteLocal, vaulttypes.ActionDeleteRemote:
		return vaulttypes.MetricDelete, true
	default:
		return 0, false
	}
}

// Execute runs plan to completion, group by group in the planner's emitted
// order (EnsureDirectories, Upload, Download, DeleteRemote, DeleteLocal),
// with bounded concurrency within each group. It aborts the remainder of
// the plan immediately on PreflightSpace or Cancelled; any other action
// failure is recorded and execution continues with the rest of the plan.
// The returned records are one per metric actually touched by the plan
// (Upload, Download, Delete), never a single record mislabeled across
// every kind of action.
func (e *Executor) Execute(ctx context.Context, syncEventID int64, plan Plan) ([]vaulttypes.ThroughputRecord, error) {
	startedAt := time.Now()
	var mu sync.Mutex
	records := make(map[vaulttypes.ThroughputMetric]*vaulttypes.ThroughputRecord)

	addBytes := func(kind vaulttypes.ActionKind, bytes int64) {
		metric, ok := metricForAction(kind)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		rec, ok := records[metric]
		if !ok {
			rec = &vaulttypes.ThroughputRecord{SyncEventID: syncEventID, Metric: metric, StartedAt: startedAt}
			records[metric] = rec
		}
		rec.Add(bytes)
	}

	finish := func() []vaulttypes.ThroughputRecord {
		mu.Lock()
		defer mu.Unlock()
		endedAt := time.Now()
		out := make([]vaulttypes.ThroughputRecord, 0, len(records))
		for _, rec := range records {
			rec.EndedAt = endedAt
			out = append(out, *rec)
		}
		return out
	}

	groups := [][]vaulttypes.Action{
		filterActions(plan.Actions, vaulttypes.ActionEnsureDirectories),
		filterActions(plan.Actions, vaulttypes.ActionUpload),
		filterActions(plan.Actions, vaulttypes.ActionDownload),
		filterActions(plan.Actions, vaulttypes.ActionDeleteRemote),
		filterActions(plan.Actions, vaulttypes.ActionDeleteLocal),
	}

	for _, group := range groups {
		if len(group) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return finish(), vherrors.Wrap(vherrors.Cancelled, err, "execution cancelled").
				WithComponent("syncengine.executor")
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.MaxInFlight)

		for _, action := range group {
			action := action
			g.Go(func() error {
				start := time.Now()
				bytes, actionErr := e.runAction(gctx, action)
				e.reportMetrics(action.Kind, start, bytes, actionErr)
				if actionErr != nil {
					if vherrors.Is(actionErr, vherrors.PreflightSpace) || vherrors.Is(actionErr, vherrors.Cancelled) {
						return actionErr
					}
					e.logger.Warnf("action %s %s failed: %v", action.Kind, action.EntryKey, actionErr)
					return nil
				}
				addBytes(action.Kind, bytes)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return finish(), err
		}
	}

	return finish(), nil
}

func (e *Executor) reportMetrics(kind vaulttypes.ActionKind, start time.Time, bytes int64, actionErr error) {
	if e.Metrics == nil {
		return
	}
	operation := kind.String()
	e.Metrics.RecordOperation(operation, time.Since(start), bytes, actionErr == nil)
	if actionErr != nil {
		e.Metrics.RecordError(operation, actionErr)
	}
}

func filterActions(actions []vaulttypes.Action, kind vaulttypes.ActionKind) []vaulttypes.Action {
	var out []vaulttypes.Action
	for _, a := range actions {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func (e *Executor) runAction(ctx context.Context, action vaulttypes.Action) (int64, error) {
	switch action.Kind {
	case vaulttypes.ActionEnsureDirectories:
		return 0, e.ensureDirectories(ctx, action.Directories)
	case vaulttypes.ActionUpload:
		return e.upload(ctx, action)
	case vaulttypes.ActionDownload:
		return e.download(ctx, action)
	case vaulttypes.ActionDeleteLocal:
		return 0, e.deleteLocal(ctx, action)
	case vaulttypes.ActionDeleteRemote:
		return 0, e.deleteRemote(ctx, action)
	default:
		return 0, vherrors.New(vherrors.Internal, "unknown action kind").
			WithComponent("syncengine.executor").WithDetail("kind", int(action.Kind))
	}
}

func (e *Executor) ensureDirectories(ctx context.Context, dirs []string) error {
	for _, dir := range dirs {
		if err := e.Local.Mkdir(ctx, dir); err != nil {
			return err
		}
		if err := e.Remote.Mkdir(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) upload(ctx context.Context, action vaulttypes.Action) (int64, error) {
	data, err := e.Local.Read(ctx, action.EntryKey)
	if err != nil {
		return 0, err
	}

	if e.Encryptor != nil {
		ciphertext, iv, keyVersion, encErr := e.Encryptor.Encrypt(data)
		if encErr != nil {
			return 0, encErr
		}
		mw, ok := e.Remote.(metadataWriter)
		if !ok {
			return 0, vherrors.New(vherrors.Internal, "remote engine cannot carry encryption metadata").
				WithComponent("syncengine.executor").WithDetail("path", action.EntryKey)
		}
		metadata := map[string]string{
			"iv":     hex.EncodeToString(iv),
			"keyver": strconv.Itoa(keyVersion),
		}
		if err := mw.PutObjectWithMetadata(ctx, action.EntryKey, ciphertext, metadata); err != nil {
			return 0, err
		}
	} else if err := e.Remote.Write(ctx, action.EntryKey, data, true); err != nil {
		return 0, err
	}

	stat, err := e.Remote.Stat(ctx, action.EntryKey)
	if err != nil {
		return int64(len(data)), err
	}
	if stat.ContentHash == "" {
		return int64(len(data)), vherrors.New(vherrors.Corruption, "upload returned empty content hash").
			WithComponent("syncengine.executor").WithDetail("path", action.EntryKey)
	}

	entry := vaulttypes.Entry{Path: action.EntryKey, Size: int64(len(data)), Kind: vaulttypes.KindFile, ContentHash: stat.ContentHash, ModifiedAt: stat.Modified}
	if e.Cache != nil {
		e.Cache.Cache(entry, e.Local.Abs(action.EntryKey))
	}
	return int64(len(data)), nil
}

func (e *Executor) download(ctx context.Context, action vaulttypes.Action) (int64, error) {
	var data []byte
	var err error

	if mr, ok := e.Remote.(metadataReader); ok {
		var metadata map[string]string
		data, metadata, err = mr.ReadWithMetadata(ctx, action.EntryKey)
		if err != nil {
			return 0, err
		}
		if iv, ivOK := metadata["iv"]; ivOK {
			if e.Encryptor == nil {
				return 0, vherrors.New(vherrors.Internal, "object is encrypted but no vault key manager configured").
					WithComponent("syncengine.executor").WithDetail("path", action.EntryKey)
			}
			ivBytes, hexErr := hex.DecodeString(iv)
			if hexErr != nil {
				return 0, vherrors.Wrap(vherrors.Corruption, hexErr, "invalid iv metadata").
					WithComponent("syncengine.executor").WithDetail("path", action.EntryKey)
			}
			keyVersion, _ := strconv.Atoi(metadata["keyver"])
			data, err = e.Encryptor.Decrypt(data, ivBytes, keyVersion)
			if err != nil {
				return 0, err
			}
		}
	} else {
		data, err = e.Remote.Read(ctx, action.EntryKey)
		if err != nil {
			return 0, err
		}
	}

	if err := e.Local.Write(ctx, action.EntryKey, data, true); err != nil {
		return 0, err
	}

	entry := vaulttypes.Entry{Path: action.EntryKey, Size: int64(len(data)), Kind: vaulttypes.KindFile}
	if action.RemoteFile != nil {
		entry.ContentHash = action.RemoteFile.ContentHash
		entry.ModifiedAt = action.RemoteFile.Modified
	}
	if e.Cache != nil {
		e.Cache.Cache(entry, e.Local.Abs(action.EntryKey))
	}

	if action.FreeAfterDownload && e.OnFreeAfterDownload != nil {
		e.OnFreeAfterDownload(action.EntryKey)
	}

	return int64(len(data)), nil
}

func (e *Executor) deleteLocal(ctx context.Context, action vaulttypes.Action) error {
	if err := e.Local.Delete(ctx, action.EntryKey); err != nil && vherrors.KindOf(err) != vherrors.NotFound {
		return err
	}
	if e.Cache != nil {
		e.Cache.EvictByPath(action.EntryKey)
	}
	return nil
}

func (e *Executor) deleteRemote(ctx context.Context, action vaulttypes.Action) error {
	if err := e.Remote.Delete(ctx, action.EntryKey); err != nil && vherrors.KindOf(err) != vherrors.NotFound {
		return err
	}
	return nil
}
