// Package syncengine implements the Sync Planner (C6), Quota/preflight
// (C10), Sync Executor (C7), Operation log (C9), and Sync Controller (C8).
package syncengine

import (
	"path"
	"sort"
	"strings"

	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
)

// Plan is the ordered sequence of actions a Build call produces for one
// sync cycle, plus any conflicts left for out-of-band (Ask) resolution.
type Plan struct {
	Actions   []vaulttypes.Action
	Conflicts []Conflict
}

// Conflict records a path where both sides disagree and the policy defers
// resolution to the user (ConflictPolicy Ask).
type Conflict struct {
	Path  string
	Local vaulttypes.ListedFile
	Remote vaulttypes.ListedFile
}

// Build computes the plan for reconciling local against remote under
// policy. It is a pure function: identical inputs always yield an
// identical plan, with actions grouped EnsureDirectories, Upload, Download,
// DeleteRemote, DeleteLocal, each group sorted lexicographically by path.
func Build(local, remote map[string]vaulttypes.ListedFile, policy vaulttypes.Policy) Plan {
	var uploads, downloads, deleteRemote, deleteLocal []vaulttypes.Action
	var conflicts []Conflict

	keys := unionKeys(local, remote)

	for _, p := range keys {
		l, inLocal := local[p]
		r, inRemote := remote[p]

		switch {
		case inLocal && !inRemote:
			if policy.UploadLocalOnly() {
				uploads = append(uploads, uploadAction(p, l))
			}
		case inRemote && !inLocal:
			if policy.DownloadRemoteOnly() {
				downloads = append(downloads, downloadAction(p, r, policy.Strategy == vaulttypes.StrategyCache))
			}
		case inLocal && inRemote:
			action, conflict := decideForBoth(p, l, r, policy)
			if action != nil {
				switch action.Kind {
				case vaulttypes.ActionUpload:
					uploads = append(uploads, *action)
				case vaulttypes.ActionDownload:
					downloads = append(downloads, *action)
				}
			}
			if conflict != nil {
				conflicts = append(conflicts, *conflict)
			}
		}
	}

	if policy.DeleteRemoteLeftovers() {
		for p, r := range remote {
			if _, ok := local[p]; !ok {
				deleteRemote = append(deleteRemote, vaulttypes.Action{
					Kind:       vaulttypes.ActionDeleteRemote,
					EntryKey:   p,
					RemoteFile: copyListedFile(r),
				})
			}
		}
	}
	if policy.DeleteLocalLeftovers() {
		for p, l := range local {
			if _, ok := remote[p]; !ok {
				deleteLocal = append(deleteLocal, vaulttypes.Action{
					Kind:      vaulttypes.ActionDeleteLocal,
					EntryKey:  p,
					LocalFile: copyListedFile(l),
				})
			}
		}
	}

	sortActions(uploads)
	sortActions(downloads)
	sortActions(deleteRemote)
	sortActions(deleteLocal)
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })

	var out []vaulttypes.Action
	if policy.WantsEnsureDirectories() {
		if dirs := directoriesToEnsure(local, remote); len(dirs) > 0 {
			out = append(out, vaulttypes.Action{
				Kind:        vaulttypes.ActionEnsureDirectories,
				Directories: dirs,
			})
		}
	}
	out = append(out, uploads...)
	out = append(out, downloads...)
	out = append(out, deleteRemote...)
	out = append(out, deleteLocal...)

	return Plan{Actions: out, Conflicts: conflicts}
}

func uploadAction(p string, l vaulttypes.ListedFile) vaulttypes.Action {
	return vaulttypes.Action{
		Kind:      vaulttypes.ActionUpload,
		EntryKey:  p,
		LocalFile: copyListedFile(l),
	}
}

func downloadAction(p string, r vaulttypes.ListedFile, freeAfter bool) vaulttypes.Action {
	return vaulttypes.Action{
		Kind:              vaulttypes.ActionDownload,
		EntryKey:          p,
		RemoteFile:        copyListedFile(r),
		FreeAfterDownload: freeAfter,
	}
}

// decideForBoth resolves a path present on both sides. It returns either a
// directional Action, a Conflict (Ask with differing content), or neither
// (equal content, nothing to do).
func decideForBoth(p string, l, r vaulttypes.ListedFile, policy vaulttypes.Policy) (*vaulttypes.Action, *Conflict) {
	if l.ContentHash != "" && r.ContentHash != "" && l.ContentHash == r.ContentHash {
		return nil, nil
	}

	switch policy.ConflictPolicy {
	case vaulttypes.KeepLocal:
		a := uploadAction(p, l)
		return &a, nil
	case vaulttypes.KeepRemote:
		a := downloadAction(p, r, policy.Strategy == vaulttypes.StrategyCache)
		return &a, nil
	case vaulttypes.KeepNewest:
		if l.Modified.After(r.Modified) {
			a := uploadAction(p, l)
			return &a, nil
		}
		if r.Modified.After(l.Modified) {
			a := downloadAction(p, r, policy.Strategy == vaulttypes.StrategyCache)
			return &a, nil
		}
		// Tie resolves to KeepLocal.
		a := uploadAction(p, l)
		return &a, nil
	default: // Ask
		return nil, &Conflict{Path: p, Local: l, Remote: r}
	}
}

// directoriesToEnsure collects every ancestor directory (other than the
// root) of every path on either side's listing, sorted.
func directoriesToEnsure(local, remote map[string]vaulttypes.ListedFile) []string {
	seen := make(map[string]bool)
	var dirs []string

	collect := func(files map[string]vaulttypes.ListedFile) {
		for p := range files {
			dir := path.Dir(p)
			for dir != "/" && dir != "." && dir != "" {
				if !seen[dir] {
					seen[dir] = true
					dirs = append(dirs, dir)
				}
				dir = path.Dir(dir)
			}
		}
	}
	collect(local)
	collect(remote)

	sort.Strings(dirs)
	return dirs
}

func unionKeys(local, remote map[string]vaulttypes.ListedFile) []string {
	seen := make(map[string]bool, len(local)+len(remote))
	var keys []string
	for p := range local {
		if !seen[p] {
			seen[p] = true
			keys = append(keys, p)
		}
	}
	for p := range remote {
		if !seen[p] {
			seen[p] = true
			keys = append(keys, p)
		}
	}
	sort.Strings(keys)
	return keys
}

func sortActions(actions []vaulttypes.Action) {
	sort.Slice(actions, func(i, j int) bool {
		return strings.Compare(actions[i].EntryKey, actions[j].EntryKey) < 0
	})
}

func copyListedFile(f vaulttypes.ListedFile) *vaulttypes.ListedFile {
	cp := f
	return &cp
}
