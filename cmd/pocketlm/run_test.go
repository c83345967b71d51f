package main

import (
	"context"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pocketlm/internal/config"
)

func TestReadPrompt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		flag  string
		args  []string
		stdin string
		want  string
	}{
		{"flag wins", "from flag", []string{"from", "args"}, "stdin", "from flag"},
		{"args joined", "", []string{"from", "args"}, "stdin", "from args"},
		{"stdin trimmed", "", nil, "  from stdin\n", "from stdin"},
	}
	for _, tc := range tests {
		got, err := readPrompt(tc.flag, tc.args, strings.NewReader(tc.stdin))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}

	if _, err := readPrompt("", nil, strings.NewReader(" \n")); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestPrintSinkWritesIncrements(t *testing.T) {
	t.Parallel()
	var b strings.Builder
	p := &printSink{w: &b}
	for _, text := range []string{"hel", "hello", "hello", "hello world"} {
		p.Progress(text)
	}
	if b.String() != "hello world" {
		t.Fatalf("output mismatch: got %q want %q", b.String(), "hello world")
	}
}

func TestParseIDs(t *testing.T) {
	t.Parallel()
	ids, err := parseIDs("1, 21 18,2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []int{1, 21, 18, 2}
	if len(ids) != len(want) {
		t.Fatalf("length mismatch: got %v want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids mismatch: got %v want %v", ids, want)
		}
	}
	if _, err := parseIDs("1 x"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestApplyConfigOnlyExplicitFlags(t *testing.T) {
	var got config.Config
	cmd := &cli.Command{
		Name:  "run",
		Flags: append(modelFlags(), generationFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			got = config.Default()
			got.Generation.TopK = 7
			applyModelConfig(c, &got)
			applyGenerationConfig(c, &got)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"run", "--backend", "cpu", "--max-tokens", "12"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got.Accelerator.Backend != "cpu" {
		t.Fatalf("backend mismatch: got %q want %q", got.Accelerator.Backend, "cpu")
	}
	if got.Generation.MaxTokens != 12 {
		t.Fatalf("max tokens mismatch: got %d want 12", got.Generation.MaxTokens)
	}
	if got.Generation.TopK != 7 {
		t.Fatalf("unset flag overrode config: top_k got %d want 7", got.Generation.TopK)
	}
	if got.Model.Path != config.Default().Model.Path {
		t.Fatalf("unset flag overrode model path: got %q", got.Model.Path)
	}
}
