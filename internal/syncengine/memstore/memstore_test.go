package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
)

func TestOperationStoreAddAndPending(t *testing.T) {
	ctx := context.Background()
	s := NewOperationStore()

	err := s.Add(ctx, vaulttypes.Operation{FSEntryID: 1, Op: vaulttypes.OpMove})
	require.NoError(t, err)

	// Unassociated operations default to vault id 0.
	pending, err := s.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	other, err := s.Pending(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestOperationStoreAssociateAndLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewOperationStore()

	err := s.Add(ctx, vaulttypes.Operation{FSEntryID: 1, Op: vaulttypes.OpMove})
	require.NoError(t, err)

	s.AssociateWithVault(1, 5)
	pending, _ := s.Pending(ctx, 5)
	require.Len(t, pending, 1)
	assert.Equal(t, vaulttypes.OpPending, pending[0].Status)

	require.NoError(t, s.MarkInProgress(ctx, 1))
	require.NoError(t, s.MarkCompleted(ctx, 1, nil))

	pending, _ = s.Pending(ctx, 5)
	assert.Empty(t, pending, "completed operations are no longer pending")
}

func TestOperationStoreMarkCompletedWithError(t *testing.T) {
	ctx := context.Background()
	s := NewOperationStore()
	_ = s.Add(ctx, vaulttypes.Operation{FSEntryID: 2})

	require.NoError(t, s.MarkCompleted(ctx, 1, errors.New("replay failed")))
}

func TestPolicyStoreGetAndReportResult(t *testing.T) {
	ctx := context.Background()
	s := NewPolicyStore()
	s.Put(1, vaulttypes.Policy{Strategy: vaulttypes.StrategySync, IntervalSec: 300})

	policy, ok, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), policy.VaultID)

	require.NoError(t, s.ReportSyncStarted(ctx, 1))
	policy, _, _ = s.Get(ctx, 1)
	require.NotNil(t, policy.LastSyncAt)

	now := time.Now()
	require.NoError(t, s.ReportSyncResult(ctx, 1, true, now))
	policy, _, _ = s.Get(ctx, 1)
	require.NotNil(t, policy.LastSuccessAt)
}

func TestPolicyStoreGetMissingReturnsFalse(t *testing.T) {
	s := NewPolicyStore()
	_, ok, err := s.Get(context.Background(), 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVaultStorePutGetList(t *testing.T) {
	ctx := context.Background()
	s := NewVaultStore()
	s.Put(vaulttypes.Vault{ID: 1, Name: "primary"})
	s.Put(vaulttypes.Vault{ID: 2, Name: "backup"})

	v, ok, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "primary", v.Name)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestThroughputSinkRecordsInOrder(t *testing.T) {
	ctx := context.Background()
	s := NewThroughputSink()

	require.NoError(t, s.Record(ctx, vaulttypes.ThroughputRecord{Metric: vaulttypes.MetricUpload, NumOps: 1}))
	require.NoError(t, s.Record(ctx, vaulttypes.ThroughputRecord{Metric: vaulttypes.MetricDownload, NumOps: 2}))

	records := s.Records()
	require.Len(t, records, 2)
	assert.Equal(t, vaulttypes.MetricUpload, records[0].Metric)
	assert.Equal(t, vaulttypes.MetricDownload, records[1].Metric)
}
