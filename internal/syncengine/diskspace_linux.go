//go:build linux

package syncengine

import "golang.org/x/sys/unix"

// StatfsFreeSpace is the Linux FreeSpaceChecker implementation used by
// Preflight in production. It reports the free bytes available on the
// filesystem backing path, matching objectfs's platform-specific-file split
// for OS-dependent mount code.
func StatfsFreeSpace(backingPath string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(backingPath, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
