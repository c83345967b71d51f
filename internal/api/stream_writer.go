package api

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// SSEStreamWriter emits session events as server-sent events. Each event is
// one "data:" line carrying a JSON streamEvent and is flushed immediately.
type SSEStreamWriter struct {
	w       http.ResponseWriter
	flusher func()
	seq     int
	sent    int
}

func NewSSEStreamWriter(c *echo.Context) (*SSEStreamWriter, error) {
	res := c.Response()
	flusher, ok := res.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	return &SSEStreamWriter{
		w:       res,
		flusher: flusher.Flush,
		seq:     1,
	}, nil
}

// Begin commits the event-stream headers and announces the session.
func (s *SSEStreamWriter) Begin(resp SessionResponse) error {
	h := s.w.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	return s.emit(streamEvent{Type: "session.created", Session: &resp})
}

// Progress sends the part of text not yet sent. Text must extend the
// previous value, which the generation sink guarantees.
func (s *SSEStreamWriter) Progress(text string) error {
	if len(text) <= s.sent {
		return nil
	}
	delta := text[s.sent:]
	s.sent = len(text)
	return s.emit(streamEvent{Type: "session.delta", Delta: delta})
}

func (s *SSEStreamWriter) Complete(resp SessionResponse) error {
	return s.emit(streamEvent{Type: "session." + resp.Status, Session: &resp})
}

func (s *SSEStreamWriter) emit(ev streamEvent) error {
	ev.SequenceNumber = s.seq
	s.seq++
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.flusher()
	return nil
}
