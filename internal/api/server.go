// Package api exposes the assistant over HTTP: health and device checks,
// blocking, streaming or background generation, and session lookup and
// cancellation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/samcharles93/pocketlm/internal/device"
	"github.com/samcharles93/pocketlm/internal/generation"
	"github.com/samcharles93/pocketlm/internal/logger"
	"github.com/samcharles93/pocketlm/internal/runtime"
)

// cancelWait bounds how long a cancel request waits for the session to
// reach its next step boundary.
const cancelWait = 2 * time.Second

// Service is the part of the assistant the HTTP surface drives.
type Service interface {
	Request(prompt string) generation.Request
	Start(ctx context.Context, req generation.Request, sink generation.Sink) (*generation.Session, error)
	Status() runtime.Status
	ProfileNow() device.Profile
}

type Options struct {
	Service Service
	Store   *SessionStore
	// Timeout caps each session's run time. Zero means no cap.
	Timeout time.Duration
	Log     logger.Logger
}

type Server struct {
	svc     Service
	store   *SessionStore
	timeout time.Duration
	clock   func() time.Time
	log     logger.Logger
}

func NewServer(opts Options) *Server {
	store := opts.Store
	if store == nil {
		store = NewSessionStore(DefaultSessionTTL)
	}
	return &Server{
		svc:     opts.Service,
		store:   store,
		timeout: opts.Timeout,
		clock:   time.Now,
		log:     logger.Component(opts.Log, "api"),
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/health", s.handleHealth)
	e.GET("/v1/device", s.handleDevice)
	e.POST("/v1/generate", s.handleGenerate)
	e.GET("/v1/sessions/:id", s.handleGetSession)
	e.POST("/v1/sessions/:id/cancel", s.handleCancelSession)
}

// Close stops the session store. Running sessions are not cancelled.
func (s *Server) Close() {
	s.store.Close()
}

func (s *Server) handleHealth(c *echo.Context) error {
	if s.svc == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "assistant not configured", "")
	}
	h := healthFromStatus(s.svc.Status())
	status := http.StatusOK
	if !h.Ready {
		status = http.StatusServiceUnavailable
	}
	return writeJSON(c, status, h)
}

func (s *Server) handleDevice(c *echo.Context) error {
	if s.svc == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "assistant not configured", "")
	}
	return writeJSON(c, http.StatusOK, deviceFromProfile(s.svc.ProfileNow()))
}

func (s *Server) handleGenerate(c *echo.Context) error {
	if s.svc == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "assistant not configured", "")
	}
	body, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	req, err := s.buildRequest(body)
	if err != nil {
		return writeStartError(c, err)
	}

	ctx := c.Request().Context()
	if body.Background {
		ctx = context.WithoutCancel(ctx)
	}
	ctx, cancel := s.withTimeout(ctx)

	if body.Stream {
		return s.stream(ctx, c, cancel, req)
	}

	created := s.clock()
	sess, err := s.svc.Start(ctx, req, nil)
	if err != nil {
		cancel()
		return writeStartError(c, err)
	}
	s.store.Track(sess)
	go func() {
		<-sess.Done()
		cancel()
	}()
	s.log.Debug("session started", "id", sess.ID(), "background", body.Background)

	if body.Background {
		return writeJSON(c, http.StatusAccepted, SessionResponse{
			ID:        sess.ID(),
			Object:    "session",
			Status:    StatusInProgress,
			CreatedAt: created.Unix(),
		})
	}
	return writeJSON(c, http.StatusOK, s.finalResponse(sess.ID(), created, sess.Wait()))
}

func (s *Server) stream(ctx context.Context, c *echo.Context, cancel context.CancelFunc, req generation.Request) error {
	defer cancel()
	w, err := NewSSEStreamWriter(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	created := s.clock()
	sink := newChanSink()
	sess, err := s.svc.Start(ctx, req, sink)
	if err != nil {
		return writeStartError(c, err)
	}
	s.store.Track(sess)
	s.log.Debug("stream started", "id", sess.ID())

	writeErr := w.Begin(SessionResponse{
		ID:        sess.ID(),
		Object:    "session",
		Status:    StatusInProgress,
		CreatedAt: created.Unix(),
	})
	if writeErr != nil {
		sess.Cancel()
	}
	for {
		select {
		case text := <-sink.updates:
			if writeErr != nil {
				continue
			}
			if writeErr = w.Progress(text); writeErr != nil {
				s.log.Warn("stream write failed, cancelling session", "id", sess.ID(), "error", writeErr)
				sess.Cancel()
			}
		case res := <-sink.result:
			<-sess.Done()
			if writeErr != nil {
				return nil
			}
			if err := w.Complete(s.finalResponse(sess.ID(), created, res)); err != nil {
				s.log.Warn("stream write failed", "id", sess.ID(), "error", err)
			}
			return nil
		}
	}
}

func (s *Server) handleGetSession(c *echo.Context) error {
	rec, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "session not found")
	}
	return writeJSON(c, http.StatusOK, rec.snapshot())
}

// handleCancelSession is idempotent: cancelling a finished session returns
// its final state.
func (s *Server) handleCancelSession(c *echo.Context) error {
	rec, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "session not found")
	}
	rec.session.Cancel()

	timer := time.NewTimer(cancelWait)
	defer timer.Stop()
	select {
	case <-rec.session.Done():
	case <-timer.C:
	case <-c.Request().Context().Done():
	}
	return writeJSON(c, http.StatusOK, rec.snapshot())
}

func (s *Server) buildRequest(body GenerateRequest) (generation.Request, error) {
	req := s.svc.Request(body.Prompt)
	if body.Stream && body.Background {
		return req, newInvalidRequest("stream and background are mutually exclusive")
	}
	if body.MaxTokens != nil {
		if *body.MaxTokens <= 0 || *body.MaxTokens > generation.MaxTokensLimit {
			return req, newInvalidRequest(fmt.Sprintf("max_tokens must be in [1, %d]", generation.MaxTokensLimit))
		}
		req.MaxTokens = *body.MaxTokens
	}
	if body.Temperature != nil {
		if *body.Temperature < 0 {
			return req, newInvalidRequest("temperature must not be negative")
		}
		req.Temperature = *body.Temperature
	}
	if body.TopK != nil {
		if *body.TopK < 0 {
			return req, newInvalidRequest("top_k must not be negative")
		}
		req.TopK = *body.TopK
	}
	if body.TopP != nil {
		if *body.TopP <= 0 || *body.TopP > 1 {
			return req, newInvalidRequest("top_p must be in (0, 1]")
		}
		req.TopP = *body.TopP
	}
	if body.RepeatPenalty != nil {
		if *body.RepeatPenalty <= 0 {
			return req, newInvalidRequest("repeat_penalty must be positive")
		}
		req.RepeatPenalty = *body.RepeatPenalty
	}
	if body.Seed != nil {
		req.Seed = *body.Seed
	}
	return req, nil
}

func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Server) finalResponse(id string, created time.Time, res generation.Result) SessionResponse {
	resp := SessionResponse{
		ID:        id,
		Object:    "session",
		CreatedAt: created.Unix(),
	}
	fillResult(&resp, res)
	completed := s.clock().Unix()
	resp.CompletedAt = &completed
	return resp
}

// chanSink hands increments to the request goroutine. updates is
// unbuffered so every increment is consumed before the result arrives.
type chanSink struct {
	updates chan string
	result  chan generation.Result
}

func newChanSink() *chanSink {
	return &chanSink{
		updates: make(chan string),
		result:  make(chan generation.Result, 1),
	}
}

func (s *chanSink) Progress(text string) { s.updates <- text }
func (s *chanSink) Done(r generation.Result) { s.result <- r }
