package tokenizer

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	json "github.com/goccy/go-json"
)

// Special token strings and the ids they get when a vocabulary omits them.
const (
	PadToken = "<pad>"
	BOSToken = "<bos>"
	EOSToken = "<eos>"
	UnkToken = "<unk>"

	defaultPadID = 0
	defaultBOSID = 1
	defaultEOSID = 2
	defaultUnkID = 3

	// MaxIDs bounds the id space. Engines size their score vectors by it.
	MaxIDs = 1 << 20
)

var (
	ErrEmptyVocabulary = errors.New("tokenizer: empty vocabulary")
	ErrNegativeID      = errors.New("tokenizer: negative token id")
	ErrDuplicateID     = errors.New("tokenizer: duplicate token id")
	ErrIDOutOfRange    = errors.New("tokenizer: token id out of range")
	ErrSparseIDs       = errors.New("tokenizer: token ids too sparse")
)

// Vocabulary is an immutable bidirectional token/id mapping. It is safe for
// concurrent reads.
type Vocabulary struct {
	byToken map[string]int
	byID    map[int]string
	maxID   int
	pad     int
	bos     int
	eos     int
	unk     int
}

// NewVocabulary validates and freezes a token to id mapping. Ids must be
// non-negative, unique and below MaxIDs. They need not be contiguous, but the
// id space may be at most four times the entry count plus 16. Special tokens
// that are absent keep their default ids (pad 0, bos 1, eos 2, unk 3).
func NewVocabulary(tokens map[string]int) (*Vocabulary, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyVocabulary
	}
	v := &Vocabulary{
		byToken: make(map[string]int, len(tokens)),
		byID:    make(map[int]string, len(tokens)),
	}
	for tok, id := range tokens {
		if id < 0 {
			return nil, fmt.Errorf("%w: %q -> %d", ErrNegativeID, tok, id)
		}
		if id >= MaxIDs {
			return nil, fmt.Errorf("%w: %q -> %d, limit %d", ErrIDOutOfRange, tok, id, MaxIDs-1)
		}
		if prev, ok := v.byID[id]; ok {
			return nil, fmt.Errorf("%w: %d used by %q and %q", ErrDuplicateID, id, prev, tok)
		}
		v.byToken[tok] = id
		v.byID[id] = tok
		v.maxID = max(v.maxID, id)
	}
	if span := v.maxID + 1; span > 4*len(tokens)+16 {
		return nil, fmt.Errorf("%w: %d entries spread over %d ids", ErrSparseIDs, len(tokens), span)
	}
	v.pad = v.idOr(PadToken, defaultPadID)
	v.bos = v.idOr(BOSToken, defaultBOSID)
	v.eos = v.idOr(EOSToken, defaultEOSID)
	v.unk = v.idOr(UnkToken, defaultUnkID)
	return v, nil
}

// LoadVocabulary reads a JSON object of token string to integer id.
func LoadVocabulary(r io.Reader) (*Vocabulary, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	var tokens map[string]int
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	return NewVocabulary(tokens)
}

// fallbackPunctuation and fallbackIdeograms complete the synthesized
// vocabulary after digits and ASCII letters.
var (
	fallbackPunctuation = []string{" ", ".", ",", "!", "?", ":", ";", "'", "\"", "-", "(", ")", "[", "]", "{", "}"}
	fallbackIdeograms   = []string{"的", "是", "在", "有", "我", "你", "他", "她", "它", "們", "了", "著", "過", "來", "去", "說", "看", "想", "知", "道"}
)

// FallbackVocabulary synthesizes a character-level vocabulary: the four
// special tokens at 0..3, then digits, a-z, A-Z, punctuation and a fixed set
// of common ideograms with ids assigned in that order from 4.
func FallbackVocabulary() (*Vocabulary, error) {
	tokens := specialTokens()
	id := 4
	add := func(tok string) {
		tokens[tok] = id
		id++
	}
	for c := '0'; c <= '9'; c++ {
		add(string(c))
	}
	for c := 'a'; c <= 'z'; c++ {
		add(string(c))
	}
	for c := 'A'; c <= 'Z'; c++ {
		add(string(c))
	}
	for _, p := range fallbackPunctuation {
		add(p)
	}
	for _, ch := range fallbackIdeograms {
		add(ch)
	}
	return NewVocabulary(tokens)
}

// MinimalVocabulary holds only the four special tokens.
func MinimalVocabulary() *Vocabulary {
	v, err := NewVocabulary(specialTokens())
	if err != nil {
		panic(fmt.Sprintf("tokenizer: minimal vocabulary: %v", err))
	}
	return v
}

func specialTokens() map[string]int {
	return map[string]int{
		PadToken: defaultPadID,
		BOSToken: defaultBOSID,
		EOSToken: defaultEOSID,
		UnkToken: defaultUnkID,
	}
}

func (v *Vocabulary) idOr(tok string, def int) int {
	if id, ok := v.byToken[tok]; ok {
		return id
	}
	return def
}

// Size is the number of entries.
func (v *Vocabulary) Size() int { return len(v.byToken) }

// ID looks up a token string.
func (v *Vocabulary) ID(tok string) (int, bool) {
	id, ok := v.byToken[tok]
	return id, ok
}

// Token looks up an id.
func (v *Vocabulary) Token(id int) (string, bool) {
	tok, ok := v.byID[id]
	return tok, ok
}

// MaxID is the largest id present.
func (v *Vocabulary) MaxID() int { return v.maxID }

// IDs returns every id in ascending order.
func (v *Vocabulary) IDs() []int {
	return slices.Sorted(maps.Keys(v.byID))
}
