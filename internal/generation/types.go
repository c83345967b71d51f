// Package generation drives one session at a time against a loaded runtime:
// it tokenizes the prompt, steps a decoder until eos, the token budget or
// cancellation, and streams growing text prefixes to a sink.
package generation

import (
	"fmt"
	"time"

	"github.com/samcharles93/pocketlm/internal/tokenizer"
)

const (
	DefaultMaxTokens   = 128
	DefaultTemperature = 0.7

	// MaxTokensLimit caps the output of one session. Larger requests are
	// clamped at admission.
	MaxTokensLimit = tokenizer.MaxLength
)

// Request describes one generation. A Temperature below
// logits.MinTemperature decodes greedily.
type Request struct {
	Prompt        string
	MaxTokens     int
	Temperature   float32
	TopK          int
	TopP          float32
	RepeatPenalty float32
	Seed          uint64
}

// Outcome is how a session ended.
type Outcome int

const (
	Completed Outcome = iota
	Cancelled
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Stats measures one session.
type Stats struct {
	TokensGenerated int
	Duration        time.Duration
	// TTFT is the delay from start until the first progress increment.
	TTFT time.Duration
	TPS  float64
}

// Result is the terminal state of a session. Text is the full output on
// completion and the partial output on cancellation or failure. Err is set
// only when Outcome is Failed.
type Result struct {
	ID      string
	Text    string
	Tokens  []int
	Outcome Outcome
	Err     error
	Stats   Stats
}

// Sink receives a session's increments and its result. Progress is called
// with strictly growing prefixes of the final text, from one goroutine, and
// never after Done.
type Sink interface {
	Progress(text string)
	Done(Result)
}

// SinkFuncs adapts two optional functions to a Sink.
type SinkFuncs struct {
	OnProgress func(text string)
	OnDone     func(Result)
}

func (s SinkFuncs) Progress(text string) {
	if s.OnProgress != nil {
		s.OnProgress(text)
	}
}

func (s SinkFuncs) Done(r Result) {
	if s.OnDone != nil {
		s.OnDone(r)
	}
}
