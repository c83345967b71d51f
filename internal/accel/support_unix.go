//go:build unix

package accel

import (
	goruntime "runtime"

	"golang.org/x/sys/cpu"
	"golang.org/x/sys/unix"
)

// Minimum kernel releases for the platform neural accelerator paths:
// Darwin 20 is macOS 11 (Core ML execution provider), Linux 4.14 is the
// oldest kernel shipped with NNAPI-capable Android releases.
const (
	minDarwinKernel = 20
	minLinuxMajor   = 4
	minLinuxMinor   = 14
)

func hostSupportsNeural() bool {
	major, minor, ok := kernelRelease()
	if !ok {
		return false
	}
	switch goruntime.GOOS {
	case "darwin", "ios":
		return major >= minDarwinKernel
	case "linux", "android":
		if goruntime.GOARCH != "arm64" || !cpu.ARM64.HasASIMDDP {
			return false
		}
		return major > minLinuxMajor || (major == minLinuxMajor && minor >= minLinuxMinor)
	default:
		return false
	}
}

func hostSupportsGPU() bool {
	return goruntime.GOOS == "linux"
}

func kernelRelease() (major, minor int, ok bool) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return 0, 0, false
	}
	return parseRelease(unix.ByteSliceToString(uts.Release[:]))
}
