// Package logits turns a next-token score vector into a chosen token id.
package logits

import (
	"errors"
	"math"
	"math/rand/v2"
)

var (
	ErrEmptyLogits  = errors.New("logits: empty score vector")
	ErrNoCandidates = errors.New("logits: no finite candidate")
)

// MinTemperature is the smallest temperature sampled from. Anything lower,
// including zero, negative and NaN, selects greedy decoding, since 1/T would
// overflow float32.
const MinTemperature = 1e-4

// SamplerConfig configures the behaviour of a Sampler. A Temperature below
// MinTemperature selects greedy decoding.
type SamplerConfig struct {
	Seed          uint64
	Temperature   float32
	TopK          int
	TopP          float32
	MinP          float32
	RepeatPenalty float32
	RepeatLastN   int
}

// Sampler is not safe for concurrent use; one generation owns one sampler.
type Sampler struct {
	rng       *rand.Rand
	cfg       SamplerConfig
	greedy    bool
	topIdx    []int
	topVal    []float32
	prob      []float64
	seenMark  []uint32
	seenEpoch uint32
}

// NewSampler returns a new sampler with the provided configuration.
func NewSampler(cfg SamplerConfig) *Sampler {
	greedy := !(cfg.Temperature >= MinTemperature)
	if greedy {
		cfg.Temperature = 1
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 40
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	if cfg.RepeatPenalty <= 0 {
		cfg.RepeatPenalty = 1.0
	}
	if cfg.RepeatLastN <= 0 {
		cfg.RepeatLastN = 64
	}
	return &Sampler{
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		cfg:    cfg,
		greedy: greedy,
	}
}

// Mask sets the listed ids to negative infinity so they are never chosen.
// Ids outside the vector are ignored.
func Mask(logits []float32, ids ...int) {
	neg := float32(math.Inf(-1))
	for _, id := range ids {
		if id >= 0 && id < len(logits) {
			logits[id] = neg
		}
	}
}

// Sample picks one index from logits, which it may modify in place.
//
//  1. Ids seen in the last RepeatLastN entries of recent are penalized.
//  2. Greedy samplers return the argmax.
//  3. Otherwise the top k scores are scaled by 1/temperature, soft-maxed,
//     filtered by MinP and TopP and drawn from.
//
// Masked (-Inf) and NaN scores are never returned; when nothing finite
// remains ErrNoCandidates is reported.
func (s *Sampler) Sample(logits []float32, recent []int) (int, error) {
	if len(logits) == 0 {
		return 0, ErrEmptyLogits
	}
	if s.cfg.RepeatPenalty > 1.0 && len(recent) > 0 {
		s.penalize(logits, recent)
	}

	if s.greedy || (s.cfg.TopK == 1 && s.cfg.TopP >= 1) {
		idx := argmax(logits)
		if idx < 0 {
			return 0, ErrNoCandidates
		}
		return idx, nil
	}

	k := min(s.cfg.TopK, len(logits))
	topIdx, topVal := s.topK(logits, k, 1/s.cfg.Temperature)
	if len(topVal) == 0 {
		return 0, ErrNoCandidates
	}

	// topVal is sorted descending, so the first entry is the max.
	maxv := topVal[0]
	if cap(s.prob) < len(topVal) {
		s.prob = make([]float64, len(topVal))
	}
	prob := s.prob[:len(topVal)]
	var sum float64
	for i := range topVal {
		e := math.Exp(float64(topVal[i] - maxv))
		prob[i] = e
		sum += e
	}
	for i := range prob {
		prob[i] /= sum
	}

	if s.cfg.MinP > 0 {
		threshold := prob[0] * float64(s.cfg.MinP)
		n := 0
		var kept float64
		for i := range prob {
			if prob[i] >= threshold {
				prob[n] = prob[i]
				topIdx[n] = topIdx[i]
				kept += prob[i]
				n++
			}
		}
		prob = prob[:n]
		for i := range prob {
			prob[i] /= kept
		}
	}

	cut := len(prob)
	if s.cfg.TopP < 1 {
		var c float64
		for i := range prob {
			c += prob[i]
			if float32(c) >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}

	// Renormalize over the kept prefix before drawing.
	var total float64
	for i := range cut {
		total += prob[i]
	}
	r := s.rng.Float64() * total
	var c float64
	for i := range cut {
		c += prob[i]
		if r < c {
			return topIdx[i], nil
		}
	}
	return topIdx[cut-1], nil
}

func (s *Sampler) penalize(logits []float32, recent []int) {
	start := max(len(recent)-s.cfg.RepeatLastN, 0)

	if len(s.seenMark) < len(logits) {
		s.seenMark = make([]uint32, len(logits))
	}
	s.seenEpoch++
	if s.seenEpoch == 0 {
		clear(s.seenMark)
		s.seenEpoch = 1
	}

	for _, id := range recent[start:] {
		if id < 0 || id >= len(logits) || s.seenMark[id] == s.seenEpoch {
			continue
		}
		s.seenMark[id] = s.seenEpoch
		if logits[id] > 0 {
			logits[id] /= s.cfg.RepeatPenalty
		} else {
			logits[id] *= s.cfg.RepeatPenalty
		}
	}
}

// argmax returns the index of the largest finite value, or -1 if there is none.
func argmax(x []float32) int {
	best := -1
	var bestV float32
	for i, v := range x {
		if !finite(v) {
			continue
		}
		if best < 0 || v > bestV {
			best, bestV = i, v
		}
	}
	return best
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// topK returns the indices and values of the k largest finite elements in
// logits, scaled by invTemp and ordered from largest to smallest.
// This is an O(V*K) algorithm suitable for small K.
func (s *Sampler) topK(logits []float32, k int, invTemp float32) ([]int, []float32) {
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float32, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, l := range logits {
		if !finite(l) {
			continue
		}
		v := l * invTemp

		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx, topVal
}
