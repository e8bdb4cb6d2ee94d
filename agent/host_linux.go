package agent

import (
	"fmt"
	"io/fs"
	"syscall"
	"time"
)

// fileCreated approximates the creation time with the inode change time.
func fileCreated(info fs.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Unix())
	}
	return info.ModTime()
}

func diskInfo(path string) (DiskInfo, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return DiskInfo{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	const gib = 1024 * mib
	total := st.Blocks * uint64(st.Bsize)
	free := st.Bavail * uint64(st.Bsize)
	used := total - st.Bfree*uint64(st.Bsize)

	info := DiskInfo{Total: total / gib, Used: used / gib, Free: free / gib}
	if used+free > 0 {
		info.Percent = round2(float64(used) / float64(used+free) * 100)
	}
	return info, nil
}
