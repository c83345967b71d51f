package accel

import (
	"fmt"

	"github.com/samcharles93/pocketlm/internal/device"
	"github.com/samcharles93/pocketlm/internal/logger"
)

// Selector tries delegates in order and falls back to CPU.
type Selector struct {
	delegates []Delegate
	preferred Kind
	threads   int
	log       logger.Logger
}

// NewSelector returns a selector over the given delegates, tried in order.
// A nil list uses DefaultDelegates. preferred restricts hardware attempts to
// one kind; Auto tries all of them. CPU is always the last resort.
func NewSelector(delegates []Delegate, preferred Kind, log logger.Logger) *Selector {
	if delegates == nil {
		delegates = DefaultDelegates()
	}
	if preferred == "" {
		preferred = Auto
	}
	return &Selector{
		delegates: delegates,
		preferred: preferred,
		log:       logger.Component(log, "accel"),
	}
}

// WithThreads pins the thread count passed to delegates instead of deriving
// it from the profile. n <= 0 restores the derived count.
func (s *Selector) WithThreads(n int) *Selector {
	s.threads = n
	return s
}

// DefaultDelegates is the neural accelerator first, then GPU, then CPU.
func DefaultDelegates() []Delegate {
	return []Delegate{newNeuralDelegate(), newGPUDelegate(), CPUDelegate{}}
}

// Select initializes the first delegate that works for the profile.
// Initialization failures are logged and the next delegate is tried; the
// CPU fallback cannot fail, so Select always returns a usable handle. The
// caller takes ownership of the handle.
func (s *Selector) Select(p device.Profile) Handle {
	threads := device.RecommendedThreadCount(p.Cores)
	if s.threads > 0 {
		threads = s.threads
	}
	var cpu Delegate = CPUDelegate{}

	for _, d := range s.delegates {
		kind := d.Kind()
		if kind == CPU {
			cpu = d
			continue
		}
		if s.preferred != Auto && s.preferred != kind {
			continue
		}
		if !d.Supported() {
			s.log.Debug("delegate not supported on host", "backend", kind)
			continue
		}
		h, err := safeInit(d, threads)
		if err != nil {
			s.log.Warn("delegate init failed, trying next backend", "backend", kind, "error", err)
			continue
		}
		s.log.Info("accelerator selected", "backend", h.Choice().String())
		return h
	}

	h, err := safeInit(cpu, threads)
	if err != nil {
		s.log.Warn("cpu delegate init failed, using built-in cpu backend", "error", err)
		h, _ = CPUDelegate{}.Init(threads)
	}
	s.log.Info("accelerator selected", "backend", h.Choice().String())
	return h
}

func safeInit(d Delegate, threads int) (h Handle, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in %s init: %v", d.Kind(), rec)
		}
	}()
	h, err = d.Init(threads)
	if err == nil && h == nil {
		err = fmt.Errorf("%s init returned no handle", d.Kind())
	}
	return h, err
}
