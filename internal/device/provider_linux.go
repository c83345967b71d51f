//go:build linux

package device

import (
	"bufio"
	"io"
	"os"
	goruntime "runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

type sysinfoProvider struct {
	meminfo string
}

// HostProvider reads MemAvailable from /proc/meminfo and everything else via
// sysinfo(2). Kernels without MemAvailable report free plus buffer memory.
func HostProvider() Provider { return sysinfoProvider{meminfo: "/proc/meminfo"} }

func (p sysinfoProvider) Stats() (Stats, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return Stats{}, err
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	available, ok := p.memAvailable()
	if !ok {
		available = (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
	}
	return Stats{
		TotalMemory:     uint64(info.Totalram) * unit,
		AvailableMemory: available,
		Cores:           goruntime.NumCPU(),
	}, nil
}

func (p sysinfoProvider) memAvailable() (uint64, bool) {
	f, err := os.Open(p.meminfo)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	return parseMemAvailable(f)
}

// parseMemAvailable returns the MemAvailable line of a meminfo listing in
// bytes.
func parseMemAvailable(r io.Reader) (uint64, bool) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) < 2 || f[0] != "MemAvailable:" {
			continue
		}
		kb, err := strconv.ParseUint(f[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb * 1024, true
	}
	return 0, false
}
