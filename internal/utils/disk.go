package utils

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type DiskUsage struct {
	Total uint64
	Free  uint64
}

func (d DiskUsage) FreePercent() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Free) / float64(d.Total) * 100
}

// GetDiskUsage reports the space available to unprivileged users on the
// filesystem holding path.
func GetDiskUsage(path string) (DiskUsage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return DiskUsage{}, fmt.Errorf("failed to stat filesystem of %s: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	return DiskUsage{
		Total: uint64(st.Blocks) * bsize,
		Free:  uint64(st.Bavail) * bsize,
	}, nil
}
