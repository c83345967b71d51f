package tokenizer

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"testing/fstest"
)

const testVocabJSON = `{"<pad>":0,"<bos>":1,"<eos>":2,"<unk>":3,"hello":4,"world":5," ":6,"test":7,"a":8,"b":9}`

func newTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	tok := New(Options{FS: fstest.MapFS{
		DefaultVocabFile: &fstest.MapFile{Data: []byte(testVocabJSON)},
	}})
	if tok.Source() != SourceResource {
		t.Fatalf("source mismatch: got %s want %s", tok.Source(), SourceResource)
	}
	return tok
}

func TestEncodeWholeWords(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer(t)

	tests := []struct {
		text string
		want []int
	}{
		{"", []int{1, 2}},
		{"hello", []int{1, 4, 2}},
		{"hello world", []int{1, 4, 5, 2}},
		{"  hello \t world\n", []int{1, 4, 5, 2}},
		{"ab", []int{1, 8, 9, 2}},
		{"axb", []int{1, 8, 3, 9, 2}},
		{"   ", []int{1, 2}},
		{"hello\vworld\f", []int{1, 4, 5, 2}},
		{"a\u00a0b", []int{1, 8, 3, 9, 2}},
		{"hello\u2003world", append(append([]int{1}, slices.Repeat([]int{3}, 11)...), 2)},
	}
	for _, tc := range tests {
		got := tok.Encode(tc.text)
		if !slices.Equal(got, tc.want) {
			t.Errorf("Encode(%q): got %v want %v", tc.text, got, tc.want)
		}
	}
}

func TestEncodeBracketsWithSpecials(t *testing.T) {
	t.Parallel()
	tok := New(Options{})
	for _, text := range []string{"", "x", "hello world", "的 是", "~~~"} {
		ids := tok.Encode(text)
		if len(ids) < 2 {
			t.Fatalf("Encode(%q): too short: %v", text, ids)
		}
		if ids[0] != tok.BOS() || ids[len(ids)-1] != tok.EOS() {
			t.Errorf("Encode(%q): want bos..eos, got %v", text, ids)
		}
		for _, id := range ids {
			if !tok.IsValidID(id) {
				t.Errorf("Encode(%q): id %d not in vocabulary", text, id)
			}
		}
	}
}

func TestEncodeTruncatesToMaxLength(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer(t)

	long := strings.Repeat("hello ", 5000)
	ids := tok.Encode(long)
	if len(ids) != MaxLength {
		t.Fatalf("length mismatch: got %d want %d", len(ids), MaxLength)
	}
	if ids[0] != tok.BOS() || ids[len(ids)-1] != tok.EOS() {
		t.Fatalf("truncated sequence lost its bracket: first=%d last=%d", ids[0], ids[len(ids)-1])
	}

	// A single long word goes in character by character, then eos is cut.
	word := strings.Repeat("ab", 3000)
	ids = tok.Encode(word)
	if len(ids) != MaxLength {
		t.Fatalf("length mismatch for long word: got %d want %d", len(ids), MaxLength)
	}
}

func TestEncodeCustomMaxLength(t *testing.T) {
	t.Parallel()
	tok := New(Options{MaxLength: 4})
	ids := tok.Encode("a b c d e f")
	if len(ids) != 4 {
		t.Fatalf("length mismatch: got %d want 4 (%v)", len(ids), ids)
	}
	if tok.MaxLength() != 4 {
		t.Fatalf("MaxLength mismatch: got %d", tok.MaxLength())
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer(t)

	tests := []struct {
		ids  []int
		want string
	}{
		{nil, ""},
		{[]int{1, 2}, ""},
		{[]int{1, 4, 2}, "hello"},
		{[]int{1, 4, 6, 5, 2}, "hello world"},
		{[]int{0, 0, 4, 0}, "hello"},
		{[]int{4, 999}, "hello<unk>"},
		{[]int{6, 7, 6}, "test"},
	}
	for _, tc := range tests {
		if got := tok.Decode(tc.ids); got != tc.want {
			t.Errorf("Decode(%v): got %q want %q", tc.ids, got, tc.want)
		}
	}
}

func TestDecodeWordBoundary(t *testing.T) {
	t.Parallel()
	v, err := NewVocabulary(map[string]int{
		"<pad>": 0, "<bos>": 1, "<eos>": 2, "<unk>": 3,
		"▁the": 4, "▁cat": 5,
	})
	if err != nil {
		t.Fatalf("NewVocabulary: %v", err)
	}
	tok := NewWithVocabulary(v, 0)
	if got := tok.Decode([]int{1, 4, 5, 2}); got != "the cat" {
		t.Fatalf("Decode mismatch: got %q want %q", got, "the cat")
	}
}

func TestEncodeDecodeVocabularyWords(t *testing.T) {
	t.Parallel()
	tok := newTestTokenizer(t)
	ids := tok.Encode("test")
	if got := tok.Decode(ids); got != "test" {
		t.Fatalf("round trip mismatch: got %q want %q", got, "test")
	}
}

func TestFallbackVocabularyLayout(t *testing.T) {
	t.Parallel()
	tok := New(Options{Path: filepath.Join(t.TempDir(), "missing.json")})
	if tok.Source() != SourceFallback {
		t.Fatalf("source mismatch: got %s want %s", tok.Source(), SourceFallback)
	}
	if tok.VocabSize() != 102 {
		t.Fatalf("size mismatch: got %d want 102", tok.VocabSize())
	}

	v := tok.Vocabulary()
	checks := map[string]int{
		"<pad>": 0, "<bos>": 1, "<eos>": 2, "<unk>": 3,
		"0": 4, "9": 13, "a": 14, "z": 39, "A": 40, "Z": 65,
		" ": 66, "}": 81, "的": 82, "道": 101,
	}
	for s, want := range checks {
		got, ok := v.ID(s)
		if !ok || got != want {
			t.Errorf("ID(%q): got %d,%v want %d", s, got, ok, want)
		}
	}

	// "hello" is not a whole word here, so it is spelled out.
	want := []int{1, 21, 18, 25, 25, 28, 2}
	if got := tok.Encode("hello"); !slices.Equal(got, want) {
		t.Fatalf("Encode mismatch: got %v want %v", got, want)
	}
	if got := tok.Decode(want); got != "hello" {
		t.Fatalf("Decode mismatch: got %q", got)
	}
}

func TestMalformedResourceFallsBack(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"not json":   "{nope",
		"empty":      "{}",
		"negative":   `{"a":-1}`,
		"duplicate":  `{"a":4,"b":4}`,
		"huge id":    `{"a":1000000000}`,
		"sparse":     `{"<pad>":0,"<bos>":1,"<eos>":2,"<unk>":3,"a":5000}`,
		"wrong type": `{"a":"x"}`,
	}
	for name, data := range tests {
		path := filepath.Join(t.TempDir(), "vocab.json")
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		tok := New(Options{Path: path})
		if tok.Source() != SourceFallback {
			t.Errorf("%s: source mismatch: got %s want %s", name, tok.Source(), SourceFallback)
		}
	}
}

func TestLoadResourceErrors(t *testing.T) {
	t.Parallel()
	_, err := loadResource(Options{})
	if !errors.Is(err, ErrVocabularyUnavailable) {
		t.Fatalf("expected ErrVocabularyUnavailable, got %v", err)
	}
	_, err = loadResource(Options{FS: fstest.MapFS{}})
	if !errors.Is(err, ErrVocabularyUnavailable) {
		t.Fatalf("expected ErrVocabularyUnavailable, got %v", err)
	}
}

func TestNewVocabularyValidation(t *testing.T) {
	t.Parallel()
	if _, err := NewVocabulary(nil); !errors.Is(err, ErrEmptyVocabulary) {
		t.Errorf("nil map: got %v", err)
	}
	if _, err := NewVocabulary(map[string]int{"x": -2}); !errors.Is(err, ErrNegativeID) {
		t.Errorf("negative id: got %v", err)
	}
	if _, err := NewVocabulary(map[string]int{"x": 5, "y": 5}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate id: got %v", err)
	}
	if _, err := NewVocabulary(map[string]int{"x": MaxIDs}); !errors.Is(err, ErrIDOutOfRange) {
		t.Errorf("huge id: got %v", err)
	}
	if _, err := NewVocabulary(map[string]int{"x": 0, "y": 24}); !errors.Is(err, ErrSparseIDs) {
		t.Errorf("sparse ids: got %v", err)
	}
	if _, err := NewVocabulary(map[string]int{"x": 0, "y": 23}); err != nil {
		t.Errorf("span at the limit rejected: %v", err)
	}
}

func TestSpecialDefaultsWhenAbsent(t *testing.T) {
	t.Parallel()
	v, err := NewVocabulary(map[string]int{"<bos>": 10, "hi": 11})
	if err != nil {
		t.Fatalf("NewVocabulary: %v", err)
	}
	tok := NewWithVocabulary(v, 0)
	if tok.BOS() != 10 || tok.EOS() != 2 || tok.PAD() != 0 || tok.UNK() != 3 {
		t.Fatalf("special ids: bos=%d eos=%d pad=%d unk=%d", tok.BOS(), tok.EOS(), tok.PAD(), tok.UNK())
	}
	if v.MaxID() != 11 {
		t.Fatalf("MaxID mismatch: got %d want 11", v.MaxID())
	}
	if !slices.Equal(v.IDs(), []int{10, 11}) {
		t.Fatalf("IDs mismatch: got %v", v.IDs())
	}
}

func TestMinimalVocabulary(t *testing.T) {
	t.Parallel()
	v := MinimalVocabulary()
	if v.Size() != 4 {
		t.Fatalf("size mismatch: got %d want 4", v.Size())
	}
	tok := NewWithVocabulary(v, 0)
	if got := tok.Encode("hi"); !slices.Equal(got, []int{1, 3, 3, 2}) {
		t.Fatalf("Encode mismatch: got %v", got)
	}
}
