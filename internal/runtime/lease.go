package runtime

import "sync"

// Lease is exclusive access to the engine for one generation session.
type Lease struct {
	r      *Runtime
	engine Engine

	cancelOnce  sync.Once
	done        chan struct{}
	releaseOnce sync.Once
}

// Engine returns the leased engine.
func (l *Lease) Engine() Engine { return l.engine }

// Done is closed when the runtime is closing and the holder should stop at
// its next step boundary.
func (l *Lease) Done() <-chan struct{} { return l.done }

func (l *Lease) cancel() {
	l.cancelOnce.Do(func() { close(l.done) })
}

// Release ends the session. A non-nil fatal error marks the engine unusable:
// a Ready runtime moves to Failed and frees its resources. Release is
// idempotent.
func (l *Lease) Release(fatal error) {
	l.releaseOnce.Do(func() {
		r := l.r
		r.mu.Lock()
		if r.lease == l {
			r.lease = nil
		}
		var res resources
		if fatal != nil && r.state == Ready {
			r.state, r.cause = Failed, newError("generate", ErrResourceFatal, fatal)
			res = r.res
			r.res = resources{}
		}
		r.mu.Unlock()

		if fatal != nil {
			r.log.Error("engine unusable, runtime failed", "error", fatal)
		}
		if err := res.release(); err != nil {
			r.log.Warn("releasing failed model", "error", err)
		}
		r.active.Done()
	})
}
