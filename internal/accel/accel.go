// Package accel chooses and initializes the hardware backend that executes
// the model: a platform neural accelerator, a GPU compute delegate, or
// threaded CPU execution.
package accel

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names an execution backend.
type Kind string

const (
	Neural Kind = "neural"
	GPU    Kind = "gpu"
	CPU    Kind = "cpu"
	Auto   Kind = "auto"
)

// ErrUnavailable is returned by delegates compiled out of this build.
var ErrUnavailable = errors.New("accel: delegate not available in this build")

// Choice identifies the realized backend. Threads is only meaningful for CPU.
type Choice struct {
	Kind    Kind
	Threads int
}

func (c Choice) String() string {
	if c.Kind == CPU {
		return fmt.Sprintf("cpu(threads=%d)", c.Threads)
	}
	return string(c.Kind)
}

// Handle is an initialized backend. The runtime that receives it owns it and
// must Close it exactly once; Close implementations are idempotent anyway.
type Handle interface {
	Choice() Choice
	Close() error
}

// Delegate initializes one kind of backend.
type Delegate interface {
	Kind() Kind
	// Supported reports whether the host OS and CPU could run the delegate
	// at all. Unsupported delegates are skipped without an Init attempt.
	Supported() bool
	Init(threads int) (Handle, error)
}

// Normalize validates a configured backend name.
func Normalize(name string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	if k == "" {
		return Auto, nil
	}
	switch k {
	case Neural, GPU, CPU, Auto:
		return k, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, neural, gpu, or cpu)", name)
	}
}

// Available returns a comma-separated list of backends the host supports.
func Available(delegates []Delegate) string {
	entries := make([]string, 0, len(delegates))
	for _, d := range delegates {
		if d.Supported() {
			entries = append(entries, string(d.Kind()))
		}
	}
	return strings.Join(entries, ",")
}
