package generation

import (
	"context"
	"fmt"

	"github.com/samcharles93/pocketlm/internal/logits"
	"github.com/samcharles93/pocketlm/internal/runtime"
	"github.com/samcharles93/pocketlm/internal/tokenizer"
)

// Decoder produces the next token id given every token seen so far: the
// prompt context followed by the tokens generated in this session.
type Decoder interface {
	Next(ctx context.Context, history []int) (int, error)
}

// DecoderFactory builds a decoder for one session. The engine has been
// Reset and is exclusively held by the session.
type DecoderFactory func(e runtime.Engine, tok *tokenizer.Tokenizer, req Request) Decoder

// SamplingDecoder feeds new history tokens through the engine and samples
// the next id from the resulting scores. Special and out-of-vocabulary ids
// other than eos are never produced.
type SamplingDecoder struct {
	engine  runtime.Engine
	sampler *logits.Sampler
	masked  []int
	fed     int
	last    []float32
}

// NewSamplingDecoder is the default DecoderFactory.
func NewSamplingDecoder(e runtime.Engine, tok *tokenizer.Tokenizer, req Request) Decoder {
	var masked []int
	for id := range e.VocabSize() {
		switch {
		case id == tok.EOS():
		case id == tok.PAD(), id == tok.BOS(), id == tok.UNK(), !tok.IsValidID(id):
			masked = append(masked, id)
		}
	}
	return &SamplingDecoder{
		engine: e,
		sampler: logits.NewSampler(logits.SamplerConfig{
			Seed:          req.Seed,
			Temperature:   req.Temperature,
			TopK:          req.TopK,
			TopP:          req.TopP,
			RepeatPenalty: req.RepeatPenalty,
		}),
		masked: masked,
	}
}

func (d *SamplingDecoder) Next(ctx context.Context, history []int) (int, error) {
	if d.fed > len(history) {
		return 0, fmt.Errorf("history shrank from %d to %d tokens", d.fed, len(history))
	}
	for _, id := range history[d.fed:] {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		out, err := d.engine.Forward(id)
		if err != nil {
			return 0, fmt.Errorf("forward token %d at position %d: %w", id, d.fed, err)
		}
		d.last = out
		d.fed++
	}
	if d.last == nil {
		return 0, fmt.Errorf("no scores: empty history")
	}

	scores := make([]float32, len(d.last))
	copy(scores, d.last)
	logits.Mask(scores, d.masked...)
	next, err := d.sampler.Sample(scores, history)
	if err != nil {
		return 0, fmt.Errorf("sample: %w", err)
	}
	return next, nil
}
