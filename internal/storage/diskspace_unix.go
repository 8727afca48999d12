//go:build unix

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// freeSpaceAt returns the free space in bytes available to unprivileged
// writers on the volume holding dir.
func freeSpaceAt(dir string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, fmt.Errorf("failed to stat filesystem at %s: %w", dir, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
