// Package runtime owns the loaded model: the artifact, the accelerator handle
// and the engine built from them. It serializes loading, closing and session
// admission so at most one generation runs against the engine at a time.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samcharles93/pocketlm/internal/accel"
	"github.com/samcharles93/pocketlm/internal/artifact"
	"github.com/samcharles93/pocketlm/internal/logger"
)

// State is the lifecycle position of a Runtime.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Runtime.
type Options struct {
	// MinSize is the smallest accepted artifact; zero means artifact.DefaultMinSize.
	MinSize int64
	// VocabSize is passed to the engine factory.
	VocabSize int
	// Factory builds the engine; nil means ProjectionEngine.
	Factory EngineFactory
	Log     logger.Logger
}

// Status is a point-in-time view of a Runtime.
type Status struct {
	State    State
	Cause    error
	Artifact artifact.Info
	Choice   accel.Choice
	Busy     bool
}

// Runtime is safe for concurrent use. All state transitions happen under mu;
// artifact I/O and engine construction run outside it.
type Runtime struct {
	opts Options
	log  logger.Logger

	mu     sync.Mutex
	state  State
	cause  error
	res    resources
	lease  *Lease
	active sync.WaitGroup // in-flight load plus the active lease

	closeOnce sync.Once
	closeErr  error
	closeDone chan struct{}
}

type resources struct {
	engine Engine
	file   *artifact.File
	handle accel.Handle
}

func (r resources) empty() bool {
	return r.engine == nil && r.file == nil && r.handle == nil
}

// release closes the engine, then the artifact, then the backend.
func (r resources) release() error {
	var errs []error
	if r.engine != nil {
		if err := safeClose(r.engine); err != nil {
			errs = append(errs, fmt.Errorf("close engine: %w", err))
		}
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close artifact: %w", err))
		}
	}
	if r.handle != nil {
		if err := r.handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close accelerator: %w", err))
		}
	}
	return errors.Join(errs...)
}

// New returns an Uninitialized runtime.
func New(opts Options) *Runtime {
	if opts.Factory == nil {
		opts.Factory = ProjectionEngine
	}
	return &Runtime{
		opts:      opts,
		log:       logger.Component(opts.Log, "runtime"),
		closeDone: make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsReady reports whether a session could be admitted, ignoring Busy.
func (r *Runtime) IsReady() bool {
	return r.State() == Ready
}

// Status returns the state, the failure cause if any, and what is loaded.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{State: r.state, Cause: r.cause, Busy: r.lease != nil}
	if r.res.file != nil {
		st.Artifact = r.res.file.Info()
	}
	if r.res.handle != nil {
		st.Choice = r.res.handle.Choice()
	}
	return st
}

// Load opens the artifact at path and builds the engine on h. Load takes
// ownership of h on every path: it is either kept by the Ready runtime or
// closed before Load returns. Loading again from Ready or Failed replaces the
// current model; loading while a session is active fails with ErrBusy.
func (r *Runtime) Load(ctx context.Context, path string, h accel.Handle) error {
	const op = "load"

	r.mu.Lock()
	switch {
	case r.state == Closed:
		r.mu.Unlock()
		closeHandle(h)
		return newError(op, ErrClosed, nil)
	case r.state == Loading || r.lease != nil:
		r.mu.Unlock()
		closeHandle(h)
		return newError(op, ErrBusy, nil)
	}
	old := r.res
	r.res = resources{}
	r.state, r.cause = Loading, nil
	r.active.Add(1)
	r.mu.Unlock()
	defer r.active.Done()

	if !old.empty() {
		if err := old.release(); err != nil {
			r.log.Warn("releasing previous model", "error", err)
		}
	}

	r.log.Info("loading model", "path", path, "backend", choiceOf(h))
	res, err := r.open(ctx, path, h)
	if err != nil {
		if rerr := res.release(); rerr != nil {
			r.log.Warn("releasing partial load", "error", rerr)
		}
		r.mu.Lock()
		closed := r.state == Closed
		if !closed {
			r.state, r.cause = Failed, err
		}
		r.mu.Unlock()
		if closed {
			return newError(op, ErrClosed, err)
		}
		r.log.Error("model load failed", "error", err)
		return err
	}

	r.mu.Lock()
	if r.state == Closed {
		r.mu.Unlock()
		if rerr := res.release(); rerr != nil {
			r.log.Warn("releasing model loaded after close", "error", rerr)
		}
		return newError(op, ErrClosed, nil)
	}
	r.res = res
	r.state = Ready
	r.mu.Unlock()

	info := res.file.Info()
	r.log.Info("model ready",
		"size", artifact.FormatSize(info.Size),
		"fingerprint", fmt.Sprintf("%016x", info.Fingerprint),
		"mapped", info.Mapped,
		"backend", choiceOf(h),
	)
	return nil
}

// open returns whatever it acquired so the caller can release it on failure.
func (r *Runtime) open(ctx context.Context, path string, h accel.Handle) (resources, error) {
	const op = "load"
	res := resources{handle: h}
	if h == nil {
		return res, newError(op, ErrAcceleratorInit, errors.New("no accelerator handle"))
	}
	if err := ctx.Err(); err != nil {
		return res, newError(op, ErrNotReady, err)
	}

	f, err := artifact.Open(path, r.opts.MinSize)
	if err != nil {
		kind := ErrArtifactInvalid
		if errors.Is(err, artifact.ErrMissing) {
			kind = ErrArtifactMissing
		}
		return res, newError(op, kind, err)
	}
	res.file = f

	if err := ctx.Err(); err != nil {
		return res, newError(op, ErrNotReady, err)
	}
	eng, err := safeFactory(r.opts.Factory, f, h, r.opts.VocabSize)
	if err != nil {
		return res, newError(op, ErrAcceleratorInit, err)
	}
	if eng == nil {
		return res, newError(op, ErrAcceleratorInit, errNoEngineFactory)
	}
	res.engine = eng
	return res, nil
}

// Acquire admits one session. It fails with ErrClosed after Close, with
// ErrNotReady unless the runtime is Ready (wrapping the load failure, if
// any), and with ErrBusy while another lease is outstanding.
func (r *Runtime) Acquire() (*Lease, error) {
	const op = "acquire"
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case Closed:
		return nil, newError(op, ErrClosed, nil)
	case Ready:
	default:
		return nil, newError(op, ErrNotReady, r.cause)
	}
	if r.lease != nil {
		return nil, newError(op, ErrBusy, nil)
	}

	l := &Lease{r: r, engine: r.res.engine, done: make(chan struct{})}
	r.lease = l
	r.active.Add(1)
	return l, nil
}

// Close cancels the active session, waits for it to reach a step boundary
// and for any in-flight load, then releases the engine, the artifact and the
// accelerator handle. Every call returns the same result once release is done.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		prev := r.state
		r.state = Closed
		if r.lease != nil {
			r.lease.cancel()
		}
		r.mu.Unlock()

		r.log.Debug("closing", "from", prev)
		r.active.Wait()

		r.mu.Lock()
		res := r.res
		r.res = resources{}
		r.mu.Unlock()

		r.closeErr = res.release()
		if r.closeErr != nil {
			r.log.Warn("close released with errors", "error", r.closeErr)
		}
		close(r.closeDone)
	})
	<-r.closeDone
	return r.closeErr
}

func choiceOf(h accel.Handle) string {
	if h == nil {
		return "none"
	}
	return h.Choice().String()
}

func closeHandle(h accel.Handle) {
	if h != nil {
		_ = h.Close()
	}
}
