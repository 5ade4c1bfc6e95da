package shm

import (
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

const devShmDir = "/dev/shm"

// canCreateOnDevShm reports whether a file of size bytes fits in the free
// space of /dev/shm. Paths outside /dev/shm, and other systems, always pass.
func canCreateOnDevShm(size uint64, path string) bool {
	if runtime.GOOS != "linux" || !strings.HasPrefix(path, devShmDir+"/") {
		return true
	}
	stat, err := disk.Usage(devShmDir)
	if err != nil {
		internalLogger.Warnf("could not read %s free size, allowing create: %v", devShmDir, err)
		return true
	}
	return stat.Free >= size
}
