package assistant

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/samcharles93/pocketlm/internal/accel"
	"github.com/samcharles93/pocketlm/internal/artifact"
	"github.com/samcharles93/pocketlm/internal/device"
	"github.com/samcharles93/pocketlm/internal/generation"
	"github.com/samcharles93/pocketlm/internal/runtime"
	"github.com/samcharles93/pocketlm/internal/tokenizer"
)

const testMinSize = 4 << 10

func hostStats(total, avail uint64, cores int) device.Provider {
	return device.ProviderFunc(func() (device.Stats, error) {
		return device.Stats{TotalMemory: total, AvailableMemory: avail, Cores: cores}, nil
	})
}

func newTestAssistant(t *testing.T, opts Options) *Assistant {
	t.Helper()
	if opts.ModelPath == "" {
		opts.ModelPath = filepath.Join(t.TempDir(), "model.bin")
	}
	if opts.MinSize == 0 {
		opts.MinSize = testMinSize
	}
	if opts.Provider == nil {
		opts.Provider = hostStats(8*device.GiB, 4*device.GiB, 8)
	}
	if opts.Backend == "" {
		opts.Backend = accel.CPU
	}
	a := New(opts)
	t.Cleanup(func() { _ = a.Cleanup() })
	return a
}

func TestInitializeProvisionsAndLoads(t *testing.T) {
	t.Parallel()
	a := newTestAssistant(t, Options{
		Bundle: &artifact.Provisioner{
			Source: fstest.MapFS{"model.bin": &fstest.MapFile{Data: make([]byte, testMinSize)}},
			Name:   "model.bin",
		},
	})
	if a.IsReady() {
		t.Fatal("ready before initialize")
	}
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !a.IsReady() {
		t.Fatalf("not ready after initialize: %v", a.Status().State)
	}
	st := a.Status()
	if st.Choice.Kind != accel.CPU || st.Choice.Threads != 4 {
		t.Fatalf("choice mismatch: %+v", st.Choice)
	}
	if p := a.Profile(); p.Cores != 8 || p.TotalMemory != 8*device.GiB {
		t.Fatalf("profile mismatch: %+v", p)
	}
	if a.Tokenizer().Source() != tokenizer.SourceFallback {
		t.Fatalf("vocabulary source mismatch: got %s", a.Tokenizer().Source())
	}

	var increments []string
	res, err := a.Generate(context.Background(), "hello", 6, 0, generation.SinkFuncs{
		OnProgress: func(s string) { increments = append(increments, s) },
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Outcome != generation.Completed || len(res.Tokens) > 6 {
		t.Fatalf("result mismatch: %+v", res)
	}
	if len(increments) > 0 && increments[len(increments)-1] != res.Text {
		t.Fatalf("last increment %q differs from result %q", increments[len(increments)-1], res.Text)
	}

	if err := a.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := a.Generate(context.Background(), "hello", 1, 0, nil); !errors.Is(err, runtime.ErrClosed) {
		t.Fatalf("generate after cleanup: expected ErrClosed, got %v", err)
	}
}

func TestInitializeMissingModel(t *testing.T) {
	t.Parallel()
	a := newTestAssistant(t, Options{})
	err := a.Initialize(context.Background())
	if !errors.Is(err, runtime.ErrArtifactMissing) {
		t.Fatalf("expected ErrArtifactMissing, got %v", err)
	}
	if a.IsReady() {
		t.Fatal("ready after failed initialize")
	}
	if _, err := a.Generate(context.Background(), "x", 1, 0, nil); !errors.Is(err, runtime.ErrNotReady) {
		t.Fatalf("generate before ready: expected ErrNotReady, got %v", err)
	}
}

func TestInitializePlaceholderFails(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.bin")
	if err := artifact.CreatePlaceholder(path, 64); err != nil {
		t.Fatalf("placeholder: %v", err)
	}
	a := newTestAssistant(t, Options{ModelPath: path})
	if err := <-a.InitializeAsync(context.Background()); !errors.Is(err, runtime.ErrArtifactInvalid) {
		t.Fatalf("expected ErrArtifactInvalid, got %v", err)
	}
	if a.Status().State != runtime.Failed {
		t.Fatalf("state mismatch: got %v want failed", a.Status().State)
	}
}

func TestUnsuitableDeviceStillLoads(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.bin")
	if err := artifact.CreatePlaceholder(path, testMinSize); err != nil {
		t.Fatalf("placeholder: %v", err)
	}
	a := newTestAssistant(t, Options{ModelPath: path, Provider: hostStats(2*device.GiB, 256*device.MiB, 2)})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if device.IsSuitable(a.Profile()) {
		t.Fatal("profile should be unsuitable")
	}
	if !a.Profile().LowMemory {
		t.Fatal("profile should be low on memory")
	}
}

func TestStartAppliesDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.bin")
	if err := artifact.CreatePlaceholder(path, testMinSize); err != nil {
		t.Fatalf("placeholder: %v", err)
	}
	var got generation.Request
	a := newTestAssistant(t, Options{
		ModelPath: path,
		Threads:   3,
		Defaults:  generation.Request{MaxTokens: 9, TopK: 5, TopP: 0.9, Seed: 42},
		Decoder: func(_ runtime.Engine, tok *tokenizer.Tokenizer, req generation.Request) generation.Decoder {
			got = req
			return eosDecoder{tok.EOS()}
		},
	})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if a.Status().Choice.Threads != 3 {
		t.Fatalf("threads mismatch: got %d want 3", a.Status().Choice.Threads)
	}
	s, err := a.Start(context.Background(), generation.Request{Prompt: "p", Temperature: 0.5}, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Wait()
	if got.MaxTokens != 9 || got.TopK != 5 || got.TopP != 0.9 || got.Seed != 42 || got.Temperature != 0.5 {
		t.Fatalf("request mismatch: %+v", got)
	}
}

type eosDecoder struct{ eos int }

func (d eosDecoder) Next(context.Context, []int) (int, error) { return d.eos, nil }
