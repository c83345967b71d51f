package generation

import (
	"sync"
)

// Session is one running generation. Cancel is cooperative: the loop
// observes it at the next step boundary.
type Session struct {
	id string

	cancelOnce sync.Once
	cancel     chan struct{}
	done       chan struct{}

	mu     sync.Mutex
	text   string
	result Result
}

func newSession(id string) *Session {
	return &Session{
		id:     id,
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Cancel asks the session to stop. It is safe to call any number of times,
// including after the session finished.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

// Done is closed once the result is final and the runtime has been released.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session ends and returns its result.
func (s *Session) Wait() Result {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Text returns the latest increment, for callers that poll instead of
// supplying a sink.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Result returns the final result once the session is done.
func (s *Session) Result() (Result, bool) {
	select {
	case <-s.done:
		return s.Wait(), true
	default:
		return Result{}, false
	}
}

func (s *Session) setText(text string) {
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()
}

func (s *Session) finish(r Result) {
	s.mu.Lock()
	s.result = r
	s.text = r.Text
	s.mu.Unlock()
	close(s.done)
}
