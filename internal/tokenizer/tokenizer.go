// Package tokenizer maps text to token ids with a greedy word-then-character
// scheme over an immutable vocabulary.
package tokenizer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/samcharles93/pocketlm/internal/logger"
)

const (
	// MaxLength bounds every encoded sequence, special tokens included.
	MaxLength = 2048

	// WordBoundary is the marker decode turns back into a space.
	WordBoundary = "▁"

	// DefaultVocabFile is the resource name looked up in Options.FS.
	DefaultVocabFile = "vocab.json"
)

// ErrVocabularyUnavailable marks a missing or malformed vocabulary resource.
// It never escapes New; the tokenizer falls back instead.
var ErrVocabularyUnavailable = errors.New("tokenizer: vocabulary unavailable")

// Options tells New where the vocabulary resource may be found. Path wins
// over FS; Name defaults to vocab.json.
type Options struct {
	Path      string
	FS        fs.FS
	Name      string
	MaxLength int
	Log       logger.Logger
}

// VocabSource records which step of the fallback chain produced the vocabulary.
type VocabSource string

const (
	SourceResource VocabSource = "resource"
	SourceFallback VocabSource = "fallback"
	SourceMinimal  VocabSource = "minimal"
)

// Tokenizer encodes and decodes against one Vocabulary. All methods are pure
// reads and safe for concurrent use.
type Tokenizer struct {
	vocab     *Vocabulary
	source    VocabSource
	maxLength int
}

// New builds the vocabulary once: the resource if present and well formed,
// else the synthesized fallback, else the four special tokens alone.
func New(opts Options) *Tokenizer {
	log := logger.Component(opts.Log, "tokenizer")

	vocab, err := loadResource(opts)
	source := SourceResource
	if err != nil {
		log.Warn("using fallback vocabulary", "error", err)
		source = SourceFallback
		vocab, err = FallbackVocabulary()
		if err != nil {
			log.Error("fallback vocabulary failed, using special tokens only", "error", err)
			source = SourceMinimal
			vocab = MinimalVocabulary()
		}
	}
	log.Debug("vocabulary ready", "source", source, "size", vocab.Size())
	return newTokenizer(vocab, source, opts.MaxLength)
}

// NewWithVocabulary wraps an existing vocabulary.
func NewWithVocabulary(v *Vocabulary, maxLength int) *Tokenizer {
	return newTokenizer(v, SourceResource, maxLength)
}

func newTokenizer(v *Vocabulary, source VocabSource, maxLength int) *Tokenizer {
	if maxLength < 2 {
		maxLength = MaxLength
	}
	return &Tokenizer{vocab: v, source: source, maxLength: maxLength}
}

func loadResource(opts Options) (*Vocabulary, error) {
	name := opts.Name
	if name == "" {
		name = DefaultVocabFile
	}
	var (
		f   fs.File
		err error
	)
	switch {
	case opts.Path != "":
		f, err = os.Open(opts.Path)
		name = opts.Path
	case opts.FS != nil:
		f, err = opts.FS.Open(name)
	default:
		return nil, fmt.Errorf("%w: no vocabulary resource configured", ErrVocabularyUnavailable)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVocabularyUnavailable, err)
	}
	defer func() { _ = f.Close() }()

	v, err := LoadVocabulary(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrVocabularyUnavailable, name, err)
	}
	return v, nil
}

// Encode converts text to ids. Empty input is [bos, eos]. Otherwise each
// word separated by ASCII whitespace is emitted as its own id when the vocabulary has
// it, or one id per character with unk for unknown characters. Words stop
// being added once the sequence reaches MaxLength-1, then eos is appended and
// the result truncated to MaxLength.
func (t *Tokenizer) Encode(text string) []int {
	v := t.vocab
	if text == "" {
		return []int{v.bos, v.eos}
	}

	ids := make([]int, 0, min(len(text)+2, t.maxLength))
	ids = append(ids, v.bos)
	for _, word := range strings.FieldsFunc(text, asciiSpace) {
		if id, ok := v.byToken[word]; ok {
			ids = append(ids, id)
		} else {
			for _, r := range word {
				id, ok := v.byToken[string(r)]
				if !ok {
					id = v.unk
				}
				ids = append(ids, id)
			}
		}
		if len(ids) >= t.maxLength-1 {
			break
		}
	}
	ids = append(ids, v.eos)

	if len(ids) > t.maxLength {
		ids = ids[:t.maxLength]
	}
	return ids
}

// asciiSpace matches the word separators. Unicode spaces such as U+00A0 stay
// inside a word.
func asciiSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// Decode maps ids back to text, dropping bos, eos and pad and rendering
// unknown ids as "<unk>". Word boundary markers become spaces and the result
// is trimmed. Character-level fallback loses the original spacing, so Decode
// is not an exact inverse of Encode.
func (t *Tokenizer) Decode(ids []int) string {
	v := t.vocab
	var sb strings.Builder
	for _, id := range ids {
		if id == v.bos || id == v.eos || id == v.pad {
			continue
		}
		tok, ok := v.byID[id]
		if !ok {
			tok = UnkToken
		}
		sb.WriteString(tok)
	}
	return strings.TrimSpace(strings.ReplaceAll(sb.String(), WordBoundary, " "))
}

// Vocabulary returns the underlying vocabulary.
func (t *Tokenizer) Vocabulary() *Vocabulary { return t.vocab }

// Source reports which fallback step produced the vocabulary.
func (t *Tokenizer) Source() VocabSource { return t.source }

func (t *Tokenizer) VocabSize() int { return t.vocab.Size() }
func (t *Tokenizer) MaxLength() int { return t.maxLength }

// IsValidID reports whether id is present in the vocabulary.
func (t *Tokenizer) IsValidID(id int) bool {
	_, ok := t.vocab.byID[id]
	return ok
}

func (t *Tokenizer) BOS() int { return t.vocab.bos }
func (t *Tokenizer) EOS() int { return t.vocab.eos }
func (t *Tokenizer) PAD() int { return t.vocab.pad }
func (t *Tokenizer) UNK() int { return t.vocab.unk }
