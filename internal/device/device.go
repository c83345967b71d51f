// Package device profiles the host's memory and CPU so the runtime can decide
// whether the model fits and how many threads to give the CPU backend.
package device

import (
	"errors"
	"fmt"
	"math"
	goruntime "runtime"
	"runtime/debug"

	"github.com/samcharles93/pocketlm/internal/logger"
)

const (
	GiB = 1 << 30
	MiB = 1 << 20

	// MinTotalMemory and MinHeadroom gate IsSuitable.
	MinTotalMemory uint64 = 3 * GiB
	MinHeadroom    uint64 = 1 * GiB

	// LowMemoryThreshold marks the host as low on memory when available RAM
	// falls below it.
	LowMemoryThreshold uint64 = 512 * MiB

	minThreads = 2
	maxThreads = 8
)

// ErrUnsupported is returned by providers on platforms without a memory source.
var ErrUnsupported = errors.New("device: memory statistics not supported on this platform")

// Stats is the raw host reading a Provider returns.
type Stats struct {
	TotalMemory     uint64
	AvailableMemory uint64
	Cores           int
}

// Provider reads host memory and CPU statistics.
type Provider interface {
	Stats() (Stats, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() (Stats, error)

func (f ProviderFunc) Stats() (Stats, error) { return f() }

// HeapStats describes the Go heap's view of allocation headroom.
type HeapStats struct {
	// Limit is the soft memory limit (GOMEMLIMIT), math.MaxInt64 when unset.
	Limit uint64
	// InUse is the heap currently in use.
	InUse uint64
}

// Profile is an immutable snapshot of the host.
type Profile struct {
	TotalMemory     uint64
	AvailableMemory uint64
	MaxHeap         uint64
	UsedHeap        uint64
	AvailableHeap   uint64
	Cores           int
	LowMemory       bool
}

// LogAttrs renders the profile as logger key/value pairs.
func (p Profile) LogAttrs() []any {
	return []any{
		"total", formatBytes(p.TotalMemory),
		"available", formatBytes(p.AvailableMemory),
		"heap_headroom", formatBytes(p.AvailableHeap),
		"cores", p.Cores,
		"low_memory", p.LowMemory,
	}
}

// Profiler produces Profiles from a Provider.
type Profiler struct {
	provider Provider
	heap     func() HeapStats
	log      logger.Logger
}

// NewProfiler returns a profiler over the given provider; a nil provider uses
// the host provider for the current platform.
func NewProfiler(p Provider, log logger.Logger) *Profiler {
	if p == nil {
		p = HostProvider()
	}
	return &Profiler{
		provider: p,
		heap:     readHeap,
		log:      logger.Component(log, "device"),
	}
}

// Profile reads the current host state. A provider failure is logged and
// yields a profile with zero memory figures, which IsSuitable rejects.
func (pr *Profiler) Profile() Profile {
	st, err := pr.provider.Stats()
	if err != nil {
		pr.log.Warn("memory statistics unavailable", "error", err)
		st = Stats{}
	}
	if st.Cores <= 0 {
		st.Cores = goruntime.NumCPU()
	}
	return buildProfile(st, pr.heap())
}

func buildProfile(st Stats, hs HeapStats) Profile {
	p := Profile{
		TotalMemory:     st.TotalMemory,
		AvailableMemory: st.AvailableMemory,
		Cores:           st.Cores,
		UsedHeap:        hs.InUse,
	}

	// Without a memory limit the heap may grow into whatever RAM is free.
	p.MaxHeap = p.AvailableMemory + hs.InUse
	if hs.Limit > 0 && hs.Limit < p.MaxHeap {
		p.MaxHeap = hs.Limit
	}
	if p.MaxHeap > p.UsedHeap {
		p.AvailableHeap = p.MaxHeap - p.UsedHeap
	}
	p.LowMemory = p.AvailableMemory < LowMemoryThreshold
	return p
}

// IsSuitable reports whether the host can hold the model: at least 3 GiB of
// RAM, 1 GiB of allocation headroom, and not low on memory.
func IsSuitable(p Profile) bool {
	return p.TotalMemory >= MinTotalMemory &&
		p.AvailableHeap >= MinHeadroom &&
		!p.LowMemory
}

// RecommendedThreadCount is half the cores, clamped to [2, 8].
func RecommendedThreadCount(cores int) int {
	return min(max(cores/2, minThreads), maxThreads)
}

func readHeap() HeapStats {
	var ms goruntime.MemStats
	goruntime.ReadMemStats(&ms)
	limit := debug.SetMemoryLimit(-1)
	hs := HeapStats{InUse: ms.HeapInuse}
	if limit > 0 && limit < math.MaxInt64 {
		hs.Limit = uint64(limit)
	}
	return hs
}

func formatBytes(n uint64) string {
	units := []string{"B", "KB", "MB", "GB"}
	size := float64(n)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", size, units[i])
}
