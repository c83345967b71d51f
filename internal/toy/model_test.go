package toy

import (
	"errors"
	"math"
	"testing"

	"github.com/samcharles93/pocketlm/internal/tensor"
)

// TestForwardMatchesNaive compares Forward against a hand-computed reference
// for the first token of a sequence.
func TestForwardMatchesNaive(t *testing.T) {
	t.Parallel()
	vocab, hidden := 8, 6
	model := NewProjectionLM(vocab, hidden, 5, 1)
	tok := 3

	logits, err := model.Forward(tok)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	h := make([]float32, hidden)
	tensor.RMSNorm(h, model.Emb.Row(tok), nil, 1e-6)
	for j := 0; j < vocab; j++ {
		var sum float32
		for i := 0; i < hidden; i++ {
			sum += h[i] * model.W.Row(j)[i]
		}
		ref := sum + model.Bias[j]
		if math.Abs(float64(logits[j]-ref)) > 1e-4 {
			t.Fatalf("logit mismatch at %d: got %f want %f", j, logits[j], ref)
		}
	}
}

func TestForwardDeterministicAcrossThreads(t *testing.T) {
	t.Parallel()
	seq := []int{1, 4, 7, 2, 9}
	run := func(threads int) [][]float32 {
		m := NewProjectionLM(32, DefaultHidden, 77, threads)
		var out [][]float32
		for _, tok := range seq {
			l, err := m.Forward(tok)
			if err != nil {
				t.Fatalf("forward: %v", err)
			}
			out = append(out, l)
		}
		return out
	}
	a, b := run(1), run(4)
	for s := range a {
		for i := range a[s] {
			if math.Abs(float64(a[s][i]-b[s][i])) > 1e-5 {
				t.Fatalf("step %d logit %d: %f vs %f", s, i, a[s][i], b[s][i])
			}
		}
	}
}

func TestResetRestartsSequence(t *testing.T) {
	t.Parallel()
	m := NewProjectionLM(16, 4, 3, 1)
	fresh, _ := NewProjectionLM(16, 4, 3, 1).Forward(6)

	_, _ = m.Forward(5)
	carried, _ := m.Forward(6)
	m.Reset()
	again, _ := m.Forward(6)

	same := func(a, b []float32) bool {
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}
	if !same(fresh, again) {
		t.Fatal("Reset did not restore the initial state")
	}
	if same(fresh, carried) {
		t.Fatal("hidden state did not carry across steps")
	}
}

func TestForwardErrors(t *testing.T) {
	t.Parallel()
	m := NewProjectionLM(4, 2, 1, 1)
	if _, err := m.Forward(4); !errors.Is(err, ErrTokenOutside) {
		t.Fatalf("expected ErrTokenOutside, got %v", err)
	}
	if _, err := m.Forward(-1); !errors.Is(err, ErrTokenOutside) {
		t.Fatalf("expected ErrTokenOutside, got %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := m.Forward(0); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

// TestForwardAllocs verifies that a single-threaded Forward allocates only its
// output slice.
func TestForwardAllocs(t *testing.T) {
	model := NewProjectionLM(5, 3, 2, 1)
	allocs := testing.AllocsPerRun(100, func() {
		_, _ = model.Forward(1)
	})
	if allocs != 1 {
		t.Fatalf("expected 1 allocation, got %v", allocs)
	}
}
