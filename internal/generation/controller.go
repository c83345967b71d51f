package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/pocketlm/internal/logger"
	"github.com/samcharles93/pocketlm/internal/runtime"
	"github.com/samcharles93/pocketlm/internal/tokenizer"
)

// Options configures a Controller.
type Options struct {
	Runtime   *runtime.Runtime
	Tokenizer *tokenizer.Tokenizer
	// Decoder builds the per-session step function; nil means NewSamplingDecoder.
	Decoder DecoderFactory
	Log     logger.Logger
}

// Controller runs sessions against one runtime. Single-flight admission is
// enforced by the runtime, so a Controller needs no locking of its own.
type Controller struct {
	rt      *runtime.Runtime
	tok     *tokenizer.Tokenizer
	decoder DecoderFactory
	log     logger.Logger
}

func NewController(opts Options) *Controller {
	if opts.Decoder == nil {
		opts.Decoder = NewSamplingDecoder
	}
	return &Controller{
		rt:      opts.Runtime,
		tok:     opts.Tokenizer,
		decoder: opts.Decoder,
		log:     logger.Component(opts.Log, "generation"),
	}
}

// Start admits a session and runs it on a new goroutine. It fails with
// runtime.ErrBusy while another session is active and with
// runtime.ErrNotReady or runtime.ErrClosed when the runtime cannot serve.
// A nil sink is allowed; progress can then be polled with Session.Text.
func (c *Controller) Start(ctx context.Context, req Request, sink Sink) (*Session, error) {
	if c.rt == nil || c.tok == nil {
		return nil, &runtime.Error{Op: "generate", Kind: runtime.ErrNotReady, Err: errors.New("controller has no runtime or tokenizer")}
	}
	lease, err := c.rt.Acquire()
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = SinkFuncs{}
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	req.MaxTokens = min(req.MaxTokens, MaxTokensLimit)

	s := newSession(uuid.NewString())
	go c.run(ctx, s, lease, req, sink)
	return s, nil
}

// Generate runs a session to completion. The returned error is the result's
// Err, or the admission error when no session could start.
func (c *Controller) Generate(ctx context.Context, req Request, sink Sink) (Result, error) {
	s, err := c.Start(ctx, req, sink)
	if err != nil {
		return Result{Outcome: Failed, Err: err}, err
	}
	res := s.Wait()
	return res, res.Err
}

func (c *Controller) run(ctx context.Context, s *Session, lease *runtime.Lease, req Request, sink Sink) {
	log := c.log.With("session", s.id)
	start := time.Now()
	res := Result{ID: s.id, Outcome: Completed}
	var fatal error

	defer func() {
		res.Stats.TokensGenerated = len(res.Tokens)
		res.Stats.Duration = time.Since(start)
		if secs := res.Stats.Duration.Seconds(); secs > 0 {
			res.Stats.TPS = float64(res.Stats.TokensGenerated) / secs
		}
		log.Debug("session finished",
			"outcome", res.Outcome,
			"tokens", res.Stats.TokensGenerated,
			"duration", res.Stats.Duration,
			"error", res.Err,
		)
		safeDone(sink, res, log)
		lease.Release(fatal)
		s.finish(res)
	}()

	fail := func(err error) {
		if errors.Is(err, runtime.ErrResourceFatal) {
			fatal = err
		}
		res.Outcome = Failed
		res.Err = &runtime.Error{Op: "generate", Kind: runtime.ErrDecodeStep, Err: err}
	}

	engine := lease.Engine()
	if err := safeReset(engine); err != nil {
		fail(err)
		return
	}

	prompt := c.tok.Encode(req.Prompt)
	// The trailing eos closes the prompt, not the conversation.
	if n := len(prompt); n > 1 && prompt[n-1] == c.tok.EOS() {
		prompt = prompt[:n-1]
	}
	history := make([]int, len(prompt), len(prompt)+req.MaxTokens)
	copy(history, prompt)

	dec, err := safeDecoder(c.decoder, engine, c.tok, req)
	if err != nil {
		fail(err)
		return
	}
	log.Debug("session started", "prompt_tokens", len(prompt), "max_tokens", req.MaxTokens, "temperature", req.Temperature)

	for len(res.Tokens) < req.MaxTokens {
		if stopRequested(ctx, s, lease) {
			res.Outcome = Cancelled
			return
		}

		next, err := safeNext(dec, ctx, history)
		if err != nil {
			if stopRequested(ctx, s, lease) && !errors.Is(err, runtime.ErrResourceFatal) {
				res.Outcome = Cancelled
				return
			}
			fail(err)
			return
		}
		if next == c.tok.EOS() {
			return
		}
		history = append(history, next)
		res.Tokens = append(res.Tokens, next)

		text := c.tok.Decode(res.Tokens)
		if text != res.Text {
			if res.Text == "" {
				res.Stats.TTFT = time.Since(start)
			}
			res.Text = text
			s.setText(text)
			safeProgress(sink, text, log)
		}
	}
}

func stopRequested(ctx context.Context, s *Session, lease *runtime.Lease) bool {
	select {
	case <-s.cancel:
		return true
	case <-lease.Done():
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func safeReset(e runtime.Engine) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Reset: %v", rec)
		}
	}()
	e.Reset()
	return nil
}

func safeDecoder(f DecoderFactory, e runtime.Engine, tok *tokenizer.Tokenizer, req Request) (d Decoder, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d, err = nil, fmt.Errorf("panic building decoder: %v", rec)
		}
	}()
	return f(e, tok, req), nil
}

func safeNext(d Decoder, ctx context.Context, history []int) (id int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			id, err = 0, fmt.Errorf("panic in decode step: %v", rec)
		}
	}()
	return d.Next(ctx, history)
}

func safeProgress(sink Sink, text string, log logger.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn("progress sink panicked", "panic", rec)
		}
	}()
	sink.Progress(text)
}

func safeDone(sink Sink, res Result, log logger.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn("result sink panicked", "panic", rec)
		}
	}()
	sink.Done(res)
}
