package syncengine

import (
	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
	"github.com/vaulthalla/vaulthalla/pkg/vherrors"
)

// gcmTagOverhead is the per-file byte padding AES-256-GCM adds to an
// encrypted upload (a 16-byte authentication tag).
const gcmTagOverhead = 16

// DefaultFreeSpaceReserveBytes is withheld from the free-space bound so a
// download never drives the backing filesystem to exactly zero.
const DefaultFreeSpaceReserveBytes = 64 * 1024 * 1024

// FreeSpaceChecker reports the number of free bytes remaining on the
// backing filesystem for a vault, abstracting over the platform-specific
// statfs call.
type FreeSpaceChecker func(backingPath string) (int64, error)

// Preflight bounds a plan's projected byte movement against a vault's quota
// and the backing filesystem's free space before any action executes.
type Preflight struct {
	freeSpace         FreeSpaceChecker
	freeSpaceReserve  int64
	encryptionEnabled bool
}

// NewPreflight constructs a Preflight using checker to observe free space.
// If reserve is zero, DefaultFreeSpaceReserveBytes is used.
func NewPreflight(checker FreeSpaceChecker, reserve int64, encryptionEnabled bool) *Preflight {
	if reserve <= 0 {
		reserve = DefaultFreeSpaceReserveBytes
	}
	return &Preflight{freeSpace: checker, freeSpaceReserve: reserve, encryptionEnabled: encryptionEnabled}
}

// Check validates plan against vault's quota and the backing filesystem's
// free space. On violation it returns a PreflightSpace error and the plan
// must not be executed at all.
func (p *Preflight) Check(plan Plan, vault vaulttypes.Vault, currentUsage int64) error {
	var uploadBytes, downloadBytes int64

	for _, action := range plan.Actions {
		switch action.Kind {
		case vaulttypes.ActionUpload:
			if action.LocalFile != nil {
				uploadBytes += p.projectedSize(action.LocalFile.Size)
			}
		case vaulttypes.ActionDownload:
			if action.RemoteFile != nil {
				downloadBytes += action.RemoteFile.Size
			}
		}
	}

	if vault.Quota > 0 && currentUsage+uploadBytes > vault.Quota {
		return vherrors.New(vherrors.PreflightSpace, "planned uploads would exceed vault quota").
			WithComponent("syncengine.preflight").
			WithDetail("vault_id", vault.ID).
			WithDetail("projected_usage", currentUsage+uploadBytes).
			WithDetail("quota", vault.Quota)
	}

	if downloadBytes > 0 && p.freeSpace != nil {
		free, err := p.freeSpace(vault.BackingPath)
		if err != nil {
			return vherrors.Wrap(vherrors.Internal, err, "failed to read free space").
				WithComponent("syncengine.preflight").WithDetail("vault_id", vault.ID)
		}
		if downloadBytes > free-p.freeSpaceReserve {
			return vherrors.New(vherrors.PreflightSpace, "planned downloads would exceed free space reserve").
				WithComponent("syncengine.preflight").
				WithDetail("vault_id", vault.ID).
				WithDetail("download_bytes", downloadBytes).
				WithDetail("free_bytes", free).
				WithDetail("reserve_bytes", p.freeSpaceReserve)
		}
	}

	return nil
}

// projectedSize accounts for the GCM tag overhead an upload will carry once
// encrypted, when the vault's policy demands upstream encryption.
func (p *Preflight) projectedSize(size int64) int64 {
	if p.encryptionEnabled {
		return size + gcmTagOverhead
	}
	return size
}
