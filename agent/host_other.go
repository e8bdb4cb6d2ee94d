//go:build !linux

package agent

import (
	"fmt"
	"io/fs"
	"runtime"
	"time"
)

func fileCreated(info fs.FileInfo) time.Time {
	return info.ModTime()
}

func diskInfo(path string) (DiskInfo, error) {
	return DiskInfo{}, fmt.Errorf("disk info is not supported on %s", runtime.GOOS)
}
