// Package assistant wires the device profiler, accelerator selector,
// tokenizer, runtime and generation controller into the four operations a
// host application needs: initialize, check readiness, generate and clean up.
package assistant

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/samcharles93/pocketlm/internal/accel"
	"github.com/samcharles93/pocketlm/internal/artifact"
	"github.com/samcharles93/pocketlm/internal/device"
	"github.com/samcharles93/pocketlm/internal/generation"
	"github.com/samcharles93/pocketlm/internal/logger"
	"github.com/samcharles93/pocketlm/internal/runtime"
	"github.com/samcharles93/pocketlm/internal/tokenizer"
)

// Options configures an Assistant. Zero values select the defaults.
type Options struct {
	ModelPath string
	MinSize   int64
	// Bundle, when set, provisions ModelPath from a bundled copy first.
	Bundle *artifact.Provisioner
	Vocab  tokenizer.Options

	Backend   accel.Kind
	Threads   int
	Delegates []accel.Delegate
	Provider  device.Provider

	Engine  runtime.EngineFactory
	Decoder generation.DecoderFactory

	// Defaults fills the sampling fields a caller leaves unset.
	Defaults generation.Request
	Log      logger.Logger
}

// Assistant is safe for concurrent use.
type Assistant struct {
	opts     Options
	log      logger.Logger
	tok      *tokenizer.Tokenizer
	profiler *device.Profiler
	selector *accel.Selector
	rt       *runtime.Runtime
	ctrl     *generation.Controller

	mu      sync.Mutex
	profile device.Profile
}

// New builds every component. The vocabulary is loaded here, eagerly, and
// never fails; the model is not touched until Initialize.
func New(opts Options) *Assistant {
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}
	if opts.Defaults.MaxTokens <= 0 {
		opts.Defaults.MaxTokens = generation.DefaultMaxTokens
	}
	if opts.Vocab.Log == nil {
		opts.Vocab.Log = opts.Log
	}

	tok := tokenizer.New(opts.Vocab)
	rt := runtime.New(runtime.Options{
		MinSize:   opts.MinSize,
		VocabSize: tok.Vocabulary().MaxID() + 1,
		Factory:   opts.Engine,
		Log:       opts.Log,
	})
	return &Assistant{
		opts:     opts,
		log:      logger.Component(opts.Log, "assistant"),
		tok:      tok,
		profiler: device.NewProfiler(opts.Provider, opts.Log),
		selector: accel.NewSelector(opts.Delegates, opts.Backend, opts.Log).WithThreads(opts.Threads),
		rt:       rt,
		ctrl: generation.NewController(generation.Options{
			Runtime:   rt,
			Tokenizer: tok,
			Decoder:   opts.Decoder,
			Log:       opts.Log,
		}),
	}
}

// Initialize provisions the artifact if configured, profiles the device,
// selects a backend and loads the model. An unsuitable device is reported
// but does not stop the attempt.
func (a *Assistant) Initialize(ctx context.Context) error {
	path := a.opts.ModelPath
	if a.opts.Bundle != nil {
		if _, err := a.opts.Bundle.Ensure(ctx, path, a.opts.MinSize); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			a.log.Warn("artifact provisioning failed", "path", path, "error", err)
		}
	}

	p := a.profiler.Profile()
	a.mu.Lock()
	a.profile = p
	a.mu.Unlock()
	if device.IsSuitable(p) {
		a.log.Info("device profile", p.LogAttrs()...)
	} else {
		a.log.Warn("device below recommended capability", p.LogAttrs()...)
	}

	h := a.selector.Select(p)
	return a.rt.Load(ctx, path, h)
}

// InitializeAsync runs Initialize on a new goroutine. The channel receives
// exactly one value.
func (a *Assistant) InitializeAsync(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- a.Initialize(ctx) }()
	return ch
}

func (a *Assistant) IsReady() bool { return a.rt.IsReady() }

// Request returns a request for prompt carrying the configured defaults.
func (a *Assistant) Request(prompt string) generation.Request {
	req := a.opts.Defaults
	req.Prompt = prompt
	return req
}

// Generate runs one session to its end. maxTokens <= 0 uses the configured
// default. Cancellation through ctx yields a Cancelled result, not an error.
func (a *Assistant) Generate(ctx context.Context, prompt string, maxTokens int, temperature float32, sink generation.Sink) (generation.Result, error) {
	req := a.Request(prompt)
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}
	req.Temperature = temperature
	s, err := a.Start(ctx, req, sink)
	if err != nil {
		return generation.Result{Outcome: generation.Failed, Err: err}, err
	}
	res := s.Wait()
	return res, res.Err
}

// Start begins a session without waiting for it. Unset sampling fields of
// req take the configured defaults.
func (a *Assistant) Start(ctx context.Context, req generation.Request, sink generation.Sink) (*generation.Session, error) {
	d := a.opts.Defaults
	if req.MaxTokens <= 0 {
		req.MaxTokens = d.MaxTokens
	}
	if req.TopK <= 0 {
		req.TopK = d.TopK
	}
	if req.TopP <= 0 {
		req.TopP = d.TopP
	}
	if req.RepeatPenalty <= 0 {
		req.RepeatPenalty = d.RepeatPenalty
	}
	if req.Seed == 0 {
		req.Seed = d.Seed
	}
	// Zero everywhere means a fresh seed per session.
	if req.Seed == 0 {
		req.Seed = rand.Uint64()
	}
	return a.ctrl.Start(ctx, req, sink)
}

// Cleanup closes the runtime, cancelling any active session first.
func (a *Assistant) Cleanup() error { return a.rt.Close() }

// Profile returns the profile taken by the last Initialize.
func (a *Assistant) Profile() device.Profile {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.profile
}

// ProfileNow takes a fresh device profile.
func (a *Assistant) ProfileNow() device.Profile { return a.profiler.Profile() }

func (a *Assistant) Tokenizer() *tokenizer.Tokenizer { return a.tok }
func (a *Assistant) Status() runtime.Status          { return a.rt.Status() }
