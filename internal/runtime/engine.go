package runtime

import (
	"errors"
	"fmt"

	"github.com/samcharles93/pocketlm/internal/accel"
	"github.com/samcharles93/pocketlm/internal/artifact"
	"github.com/samcharles93/pocketlm/internal/toy"
)

// Engine computes next-token scores one token at a time. The runtime owns
// the engine and serializes access to it through leases.
type Engine interface {
	// Forward consumes tok and returns scores over the vocabulary. Errors
	// matching ErrResourceFatal mean the engine can no longer be used.
	Forward(tok int) ([]float32, error)
	// Reset clears per-sequence state.
	Reset()
	VocabSize() int
	Close() error
}

// EngineFactory builds an engine bound to an opened artifact and an
// initialized backend.
type EngineFactory func(f *artifact.File, h accel.Handle, vocabSize int) (Engine, error)

// ProjectionEngine is the default EngineFactory. Its weights are derived from
// the artifact fingerprint and its projection runs on the handle's threads.
func ProjectionEngine(f *artifact.File, h accel.Handle, vocabSize int) (Engine, error) {
	if vocabSize <= 0 || vocabSize > toy.MaxVocab {
		return nil, fmt.Errorf("%w: %d", errInvalidVocabSize, vocabSize)
	}
	threads := 1
	if h != nil {
		threads = max(h.Choice().Threads, 1)
	}
	m := toy.NewProjectionLM(vocabSize, toy.DefaultHidden, f.Info().Fingerprint, threads)
	return &projectionEngine{m}, nil
}

type projectionEngine struct {
	*toy.ProjectionLM
}

func (e *projectionEngine) Forward(tok int) ([]float32, error) {
	logits, err := e.ProjectionLM.Forward(tok)
	if errors.Is(err, toy.ErrClosed) {
		return nil, fmt.Errorf("%w: %w", ErrResourceFatal, err)
	}
	return logits, err
}

func safeFactory(factory EngineFactory, f *artifact.File, h accel.Handle, vocabSize int) (e Engine, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			e, err = nil, fmt.Errorf("panic in engine factory: %v", rec)
		}
	}()
	return factory(f, h, vocabSize)
}

func safeClose(e Engine) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in engine Close: %v", rec)
		}
	}()
	return e.Close()
}
