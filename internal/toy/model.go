// Package toy implements a deterministic projection language model. It has
// the shape of a real decoder (embedding, recurrent hidden state, vocabulary
// projection) but its weights are synthesized from a seed, so it stands in
// for a trained network wherever one is not available.
package toy

import (
	"errors"
	"sync"

	"github.com/samcharles93/pocketlm/internal/tensor"
)

const (
	// DefaultHidden is the hidden width used by the runtime's default engine.
	DefaultHidden = 16
	// MaxVocab bounds the vocabulary a model is built for.
	MaxVocab = 1 << 20
)

var (
	ErrClosed       = errors.New("toy: model closed")
	ErrTokenOutside = errors.New("toy: token outside vocabulary")
)

// ProjectionLM keeps a running hidden state h and, for each input token,
// computes h = decay*h + Emb[tok] followed by logits = W*rmsnorm(h) + Bias.
type ProjectionLM struct {
	Vocab   int
	Hidden  int
	Threads int

	Emb  tensor.Mat // [Vocab x Hidden]
	W    tensor.Mat // [Vocab x Hidden]
	Bias []float32  // [Vocab]

	mu     sync.Mutex
	decay  float32
	h      []float32
	norm   []float32
	closed bool
}

// NewProjectionLM builds a model whose weights are a pure function of seed.
// threads bounds the goroutines used for the vocabulary projection.
func NewProjectionLM(vocab, hidden int, seed uint64, threads int) *ProjectionLM {
	m := &ProjectionLM{
		Vocab:   vocab,
		Hidden:  hidden,
		Threads: max(threads, 1),
		Emb:     tensor.NewMat(vocab, hidden),
		W:       tensor.NewMat(vocab, hidden),
		Bias:    make([]float32, vocab),
		decay:   0.5,
		h:       make([]float32, hidden),
		norm:    make([]float32, hidden),
	}
	tensor.FillRand(&m.Emb, seed+11, 2)
	tensor.FillRand(&m.W, seed+23, 2)
	return m
}

// Forward consumes one token and returns a fresh logits slice of length Vocab.
func (m *ProjectionLM) Forward(tok int) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if tok < 0 || tok >= m.Vocab {
		return nil, ErrTokenOutside
	}

	tensor.Scale(m.h, m.decay)
	tensor.Add(m.h, m.Emb.Row(tok))
	tensor.RMSNorm(m.norm, m.h, nil, 1e-6)

	logits := make([]float32, m.Vocab)
	tensor.MatVec(logits, &m.W, m.norm, m.Threads)
	tensor.Add(logits, m.Bias)
	return logits, nil
}

// Reset clears the hidden state so the next Forward starts a new sequence.
func (m *ProjectionLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.h)
}

func (m *ProjectionLM) VocabSize() int { return m.Vocab }

// Close releases the weights. Forward fails afterwards.
func (m *ProjectionLM) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.Emb, m.W = tensor.Mat{}, tensor.Mat{}
	m.Bias, m.h, m.norm = nil, nil, nil
	return nil
}
