package accel

import "sync/atomic"

// CPUDelegate runs the model on Go worker threads. It never fails.
type CPUDelegate struct{}

func (CPUDelegate) Kind() Kind      { return CPU }
func (CPUDelegate) Supported() bool { return true }

func (CPUDelegate) Init(threads int) (Handle, error) {
	return &cpuHandle{threads: max(threads, 1)}, nil
}

type cpuHandle struct {
	threads int
	closed  atomic.Bool
}

func (h *cpuHandle) Choice() Choice {
	return Choice{Kind: CPU, Threads: h.threads}
}

func (h *cpuHandle) Close() error {
	h.closed.Store(true)
	return nil
}
