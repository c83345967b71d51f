//go:build darwin

package device

import (
	goruntime "runtime"

	"golang.org/x/sys/unix"
)

type sysctlProvider struct{}

// HostProvider reads total memory via sysctl. Darwin exposes no cheap free
// memory counter, so available memory is estimated from the page-free count.
func HostProvider() Provider {
	return sysctlProvider{}
}

func (sysctlProvider) Stats() (Stats, error) {
	total, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return Stats{}, err
	}
	st := Stats{TotalMemory: total, Cores: goruntime.NumCPU()}
	free, ferr := unix.SysctlUint32("vm.page_free_count")
	page, perr := unix.SysctlUint32("hw.pagesize")
	if ferr == nil && perr == nil {
		st.AvailableMemory = uint64(free) * uint64(page)
	}
	return st, nil
}
