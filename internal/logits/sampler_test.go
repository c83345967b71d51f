package logits

import (
	"errors"
	"math"
	"testing"
)

func TestSamplerDeterminism(t *testing.T) {
	t.Parallel()
	cfg := SamplerConfig{Seed: 42, Temperature: 0.9, TopK: 4, TopP: 0.95}
	s1 := NewSampler(cfg)
	s2 := NewSampler(cfg)
	for i := range 20 {
		a, err := s1.Sample([]float32{0, 1, 2, 3, 4, 5}, nil)
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		b, _ := s2.Sample([]float32{0, 1, 2, 3, 4, 5}, nil)
		if a != b {
			t.Fatalf("step %d: expected deterministic sample, got %d vs %d", i, a, b)
		}
	}
}

func TestSamplerGreedy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  SamplerConfig
	}{
		{"zero temperature", SamplerConfig{Temperature: 0}},
		{"negative temperature", SamplerConfig{Temperature: -1}},
		{"denormal temperature", SamplerConfig{Seed: 3, Temperature: 1e-45}},
		{"below minimum", SamplerConfig{Seed: 3, Temperature: MinTemperature / 2}},
		{"nan temperature", SamplerConfig{Seed: 3, Temperature: float32(math.NaN())}},
		{"top k one", SamplerConfig{Seed: 99, Temperature: 1, TopK: 1}},
	}
	for _, tc := range tests {
		s := NewSampler(tc.cfg)
		idx, err := s.Sample([]float32{-1, 5, 3, 7, 2}, nil)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if idx != 3 {
			t.Fatalf("%s: expected greedy index 3, got %d", tc.name, idx)
		}
	}
}

func TestSamplerMinimumTemperatureIsFinite(t *testing.T) {
	t.Parallel()
	s := NewSampler(SamplerConfig{Seed: 5, Temperature: MinTemperature, TopK: 5})
	for range 50 {
		idx, err := s.Sample([]float32{-1, 5, 3, 7, 2}, nil)
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		if idx != 3 {
			t.Fatalf("expected index 3 at minimum temperature, got %d", idx)
		}
	}
}

func TestSamplerTopP(t *testing.T) {
	t.Parallel()
	s := NewSampler(SamplerConfig{Seed: 7, Temperature: 1.0, TopK: 5, TopP: 0.5})
	for range 50 {
		idx, err := s.Sample([]float32{10, 0, 0, 0, 0}, nil)
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		if idx != 0 {
			t.Fatalf("top-p sampling returned unexpected index %d", idx)
		}
	}
}

func TestSamplerNeverPicksMasked(t *testing.T) {
	t.Parallel()
	s := NewSampler(SamplerConfig{Seed: 3, Temperature: 1.5, TopK: 8})
	for range 200 {
		logs := []float32{1, 1, 1, 1, 1, 1, 1, 1}
		Mask(logs, 0, 2, 4, 6, 100, -1)
		idx, err := s.Sample(logs, nil)
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		if idx%2 == 0 {
			t.Fatalf("sampled masked index %d", idx)
		}
	}
}

func TestSamplerNoCandidates(t *testing.T) {
	t.Parallel()
	neg := float32(math.Inf(-1))
	nan := float32(math.NaN())
	for _, temp := range []float32{0, 0.7} {
		s := NewSampler(SamplerConfig{Temperature: temp})
		if _, err := s.Sample([]float32{neg, nan, neg}, nil); !errors.Is(err, ErrNoCandidates) {
			t.Fatalf("temperature %v: expected ErrNoCandidates, got %v", temp, err)
		}
		if _, err := s.Sample(nil, nil); !errors.Is(err, ErrEmptyLogits) {
			t.Fatalf("temperature %v: expected ErrEmptyLogits, got %v", temp, err)
		}
	}
}

func TestSamplerRepeatPenalty(t *testing.T) {
	t.Parallel()
	s := NewSampler(SamplerConfig{Temperature: 0, RepeatPenalty: 4, RepeatLastN: 2})
	// id 1 was seen recently; its advantage over id 0 is divided away.
	idx, err := s.Sample([]float32{2, 4, 0}, []int{1})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if idx != 0 {
		t.Fatalf("penalized index mismatch: got %d want 0", idx)
	}
	// Outside the window, no penalty applies.
	idx, _ = s.Sample([]float32{2, 4, 0}, []int{1, 2, 2})
	if idx != 1 {
		t.Fatalf("window index mismatch: got %d want 1", idx)
	}
}

func TestSamplerMinP(t *testing.T) {
	t.Parallel()
	s := NewSampler(SamplerConfig{Seed: 11, Temperature: 1, TopK: 3, MinP: 0.5})
	for range 100 {
		idx, err := s.Sample([]float32{5, 0, -5}, nil)
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		if idx != 0 {
			t.Fatalf("min-p sampling returned unexpected index %d", idx)
		}
	}
}
