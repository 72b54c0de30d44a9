package syncengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaulthalla/vaulthalla/internal/storage/local"
	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
)

func file(path, hash string, modified time.Time) vaulttypes.ListedFile {
	return vaulttypes.ListedFile{Path: path, ContentHash: hash, Modified: modified, Kind: vaulttypes.KindFile}
}

func syncPolicy(conflict vaulttypes.ConflictPolicy) vaulttypes.Policy {
	return vaulttypes.Policy{Strategy: vaulttypes.StrategySync, ConflictPolicy: conflict}
}

func actionKinds(actions []vaulttypes.Action) []vaulttypes.ActionKind {
	kinds := make([]vaulttypes.ActionKind, len(actions))
	for i, a := range actions {
		kinds[i] = a.Kind
	}
	return kinds
}

func TestBuildIsDeterministic(t *testing.T) {
	now := time.Now()
	local := map[string]vaulttypes.ListedFile{"/a.txt": file("/a.txt", "h1", now)}
	remote := map[string]vaulttypes.ListedFile{}
	policy := syncPolicy(vaulttypes.KeepLocal)

	p1 := Build(local, remote, policy)
	p2 := Build(local, remote, policy)

	require.Equal(t, len(p1.Actions), len(p2.Actions))
	for i := range p1.Actions {
		assert.Equal(t, p1.Actions[i].Kind, p2.Actions[i].Kind)
		assert.Equal(t, p1.Actions[i].EntryKey, p2.Actions[i].EntryKey)
	}
}

func TestContentIdempotenceProducesNoActions(t *testing.T) {
	now := time.Now()
	local := map[string]vaulttypes.ListedFile{
		"/a.txt": file("/a.txt", "same", now),
		"/b.txt": file("/b.txt", "same2", now),
	}
	remote := map[string]vaulttypes.ListedFile{
		"/a.txt": file("/a.txt", "same", now),
		"/b.txt": file("/b.txt", "same2", now),
	}
	policy := syncPolicy(vaulttypes.KeepLocal)

	plan := Build(local, remote, policy)
	for _, a := range plan.Actions {
		assert.NotEqual(t, vaulttypes.ActionUpload, a.Kind)
		assert.NotEqual(t, vaulttypes.ActionDownload, a.Kind)
		assert.NotEqual(t, vaulttypes.ActionDeleteLocal, a.Kind)
		assert.NotEqual(t, vaulttypes.ActionDeleteRemote, a.Kind)
	}
}

// TestContentIdempotenceWithRealLocalEngineHasNoActionsOnSecondCycle exercises
// the Local Disk Engine's own List, rather than hand-constructed ListedFile
// fixtures, to catch an engine that never populates ContentHash: without it
// decideForBoth can never take the no-action branch, so a byte-identical
// file on both sides would be re-transferred forever.
func TestContentIdempotenceWithRealLocalEngineHasNoActionsOnSecondCycle(t *testing.T) {
	ctx := context.Background()

	localDir, err := local.New(t.TempDir())
	require.NoError(t, err)
	remoteDir, err := local.New(t.TempDir())
	require.NoError(t, err)

	content := []byte("identical contents on both sides")
	require.NoError(t, localDir.Write(ctx, "/a.txt", content, true))
	require.NoError(t, remoteDir.Write(ctx, "/a.txt", content, true))

	policy := syncPolicy(vaulttypes.KeepLocal)

	runCycle := func() Plan {
		localListed, err := localDir.List(ctx, "/", true)
		require.NoError(t, err)
		remoteListed, err := remoteDir.List(ctx, "/", true)
		require.NoError(t, err)

		localFiles := make(map[string]vaulttypes.ListedFile, len(localListed))
		for _, f := range localListed {
			localFiles[f.Path] = f
		}
		remoteFiles := make(map[string]vaulttypes.ListedFile, len(remoteListed))
		for _, f := range remoteListed {
			remoteFiles[f.Path] = f
		}

		require.NotEmpty(t, localFiles["/a.txt"].ContentHash, "local engine must populate ContentHash")
		require.NotEmpty(t, remoteFiles["/a.txt"].ContentHash, "remote engine must populate ContentHash")
		require.Equal(t, localFiles["/a.txt"].ContentHash, remoteFiles["/a.txt"].ContentHash,
			"identical bytes must hash identically")

		return Build(localFiles, remoteFiles, policy)
	}

	first := runCycle()
	assert.Empty(t, first.Actions, "byte-identical files must not be re-transferred on the first cycle")
	assert.Empty(t, first.Conflicts)

	second := runCycle()
	assert.Empty(t, second.Actions, "byte-identical files must still produce no actions on a second cycle")
	assert.Empty(t, second.Conflicts)
}

func TestUploadLocalOnlyUnderSyncStrategy(t *testing.T) {
	now := time.Now()
	local := map[string]vaulttypes.ListedFile{"/only-local.txt": file("/only-local.txt", "h1", now)}
	remote := map[string]vaulttypes.ListedFile{}
	policy := syncPolicy(vaulttypes.KeepLocal)

	plan := Build(local, remote, policy)

	require.Len(t, plan.Actions, 1)
	assert.Equal(t, vaulttypes.ActionUpload, plan.Actions[0].Kind)
	assert.Equal(t, "/only-local.txt", plan.Actions[0].EntryKey)
}

func TestDownloadRemoteOnlyUnderSyncStrategy(t *testing.T) {
	now := time.Now()
	local := map[string]vaulttypes.ListedFile{}
	remote := map[string]vaulttypes.ListedFile{"/only-remote.txt": file("/only-remote.txt", "h1", now)}
	policy := syncPolicy(vaulttypes.KeepLocal)

	plan := Build(local, remote, policy)

	require.Len(t, plan.Actions, 1)
	assert.Equal(t, vaulttypes.ActionDownload, plan.Actions[0].Kind)
}

func TestCacheStrategySkipsLocalOnlyUpload(t *testing.T) {
	now := time.Now()
	local := map[string]vaulttypes.ListedFile{"/local-only.txt": file("/local-only.txt", "h1", now)}
	remote := map[string]vaulttypes.ListedFile{}
	policy := vaulttypes.Policy{Strategy: vaulttypes.StrategyCache, ConflictPolicy: vaulttypes.KeepLocal}

	plan := Build(local, remote, policy)
	assert.Empty(t, plan.Actions)
}

func TestConflictPolicyKeepLocalWins(t *testing.T) {
	now := time.Now()
	local := map[string]vaulttypes.ListedFile{"/c.txt": file("/c.txt", "local-hash", now)}
	remote := map[string]vaulttypes.ListedFile{"/c.txt": file("/c.txt", "remote-hash", now)}
	policy := syncPolicy(vaulttypes.KeepLocal)

	plan := Build(local, remote, policy)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, vaulttypes.ActionUpload, plan.Actions[0].Kind)
}

func TestConflictPolicyKeepRemoteWins(t *testing.T) {
	now := time.Now()
	local := map[string]vaulttypes.ListedFile{"/c.txt": file("/c.txt", "local-hash", now)}
	remote := map[string]vaulttypes.ListedFile{"/c.txt": file("/c.txt", "remote-hash", now)}
	policy := syncPolicy(vaulttypes.KeepRemote)

	plan := Build(local, remote, policy)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, vaulttypes.ActionDownload, plan.Actions[0].Kind)
}

func TestConflictPolicyKeepNewestPicksLaterModified(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	local := map[string]vaulttypes.ListedFile{"/c.txt": file("/c.txt", "local-hash", newer)}
	remote := map[string]vaulttypes.ListedFile{"/c.txt": file("/c.txt", "remote-hash", older)}
	policy := syncPolicy(vaulttypes.KeepNewest)

	plan := Build(local, remote, policy)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, vaulttypes.ActionUpload, plan.Actions[0].Kind)
}

func TestConflictPolicyKeepNewestTieResolvesToLocal(t *testing.T) {
	same := time.Now()
	local := map[string]vaulttypes.ListedFile{"/c.txt": file("/c.txt", "local-hash", same)}
	remote := map[string]vaulttypes.ListedFile{"/c.txt": file("/c.txt", "remote-hash", same)}
	policy := syncPolicy(vaulttypes.KeepNewest)

	plan := Build(local, remote, policy)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, vaulttypes.ActionUpload, plan.Actions[0].Kind)
}

func TestConflictPolicyAskEmitsNoActionButRecordsConflict(t *testing.T) {
	now := time.Now()
	local := map[string]vaulttypes.ListedFile{"/c.txt": file("/c.txt", "local-hash", now)}
	remote := map[string]vaulttypes.ListedFile{"/c.txt": file("/c.txt", "remote-hash", now)}
	policy := syncPolicy(vaulttypes.Ask)

	plan := Build(local, remote, policy)
	assert.Empty(t, plan.Actions)
	require.Len(t, plan.Conflicts, 1)
	assert.Equal(t, "/c.txt", plan.Conflicts[0].Path)
}

func TestMirrorExclusivityDeletesExactlyOneSide(t *testing.T) {
	now := time.Now()
	local := map[string]vaulttypes.ListedFile{"/local-only.txt": file("/local-only.txt", "h", now)}
	remote := map[string]vaulttypes.ListedFile{"/remote-only.txt": file("/remote-only.txt", "h", now)}
	policy := vaulttypes.Policy{Strategy: vaulttypes.StrategyMirror, ConflictPolicy: vaulttypes.KeepLocal}

	plan := Build(local, remote, policy)

	var sawDeleteRemote, sawDeleteLocal bool
	for _, a := range plan.Actions {
		if a.Kind == vaulttypes.ActionDeleteRemote {
			sawDeleteRemote = true
		}
		if a.Kind == vaulttypes.ActionDeleteLocal {
			sawDeleteLocal = true
		}
	}
	assert.True(t, sawDeleteRemote, "KeepLocal mirror should delete remote leftovers")
	assert.False(t, sawDeleteLocal, "KeepLocal mirror should never delete local leftovers")
}

func TestOrderingEnsureDirectoriesBeforeWritesBeforeDeletes(t *testing.T) {
	now := time.Now()
	local := map[string]vaulttypes.ListedFile{
		"/dir/upload.txt": file("/dir/upload.txt", "h1", now),
	}
	remote := map[string]vaulttypes.ListedFile{
		"/dir/download.txt": file("/dir/download.txt", "h2", now),
		"/dir/extra.txt":    file("/dir/extra.txt", "h3", now),
	}
	policy := vaulttypes.Policy{Strategy: vaulttypes.StrategyMirror, ConflictPolicy: vaulttypes.KeepLocal}

	plan := Build(local, remote, policy)
	kinds := actionKinds(plan.Actions)

	require.NotEmpty(t, kinds)
	assert.Equal(t, vaulttypes.ActionEnsureDirectories, kinds[0])

	lastUploadOrDownloadIdx := -1
	firstDeleteIdx := -1
	for i, k := range kinds {
		if k == vaulttypes.ActionUpload || k == vaulttypes.ActionDownload {
			lastUploadOrDownloadIdx = i
		}
		if firstDeleteIdx == -1 && (k == vaulttypes.ActionDeleteRemote || k == vaulttypes.ActionDeleteLocal) {
			firstDeleteIdx = i
		}
	}
	if lastUploadOrDownloadIdx != -1 && firstDeleteIdx != -1 {
		assert.Less(t, lastUploadOrDownloadIdx, firstDeleteIdx)
	}
}

func TestEmptyInputsProduceEmptyPlan(t *testing.T) {
	plan := Build(map[string]vaulttypes.ListedFile{}, map[string]vaulttypes.ListedFile{}, syncPolicy(vaulttypes.KeepLocal))
	assert.Empty(t, plan.Actions)
	assert.Empty(t, plan.Conflicts)
}
