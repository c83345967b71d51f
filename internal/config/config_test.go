package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samcharles93/pocketlm/internal/generation"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Generation.MaxTokens != 128 || cfg.Generation.Temperature != 0.7 {
		t.Fatalf("generation defaults mismatch: %+v", cfg.Generation)
	}
	if cfg.Model.MinSize != 100<<20 {
		t.Fatalf("min size mismatch: got %d", cfg.Model.MinSize)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
model:
  path: /data/gemma.bin
accelerator:
  backend: cpu
  threads: 3
generation:
  temperature: 0
  timeout: 45s
server:
  session_ttl: 2m
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.Path != "/data/gemma.bin" || cfg.Accelerator.Backend != "cpu" || cfg.Accelerator.Threads != 3 {
		t.Fatalf("overrides lost: %+v", cfg)
	}
	if cfg.Generation.Temperature != 0 {
		t.Fatalf("explicit zero temperature lost: got %v", cfg.Generation.Temperature)
	}
	if cfg.Generation.Timeout != 45*time.Second || cfg.Server.SessionTTL != 2*time.Minute {
		t.Fatalf("durations mismatch: timeout=%v ttl=%v", cfg.Generation.Timeout, cfg.Server.SessionTTL)
	}
	if cfg.Generation.MaxTokens != 128 || cfg.Log.Format != "pretty" {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "absent.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing file: got %v", err)
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("model: [unterminated"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		EnvModel:    " /env/model.bin ",
		EnvBackend:  "gpu",
		EnvLogLevel: "",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.Model.Path != "/env/model.bin" || cfg.Accelerator.Backend != "gpu" {
		t.Fatalf("env overrides mismatch: %+v", cfg)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("empty env value should not override: got %q", cfg.Log.Level)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Model.Path = ""
	cfg.Accelerator.Backend = "tpu"
	cfg.Generation.MaxTokens = 0
	cfg.Generation.TopP = 1.5
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"model.path", "accelerator.backend", "max_tokens", "top_p", "log.format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}

func TestValidateMaxTokensCeiling(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Generation.MaxTokens = generation.MaxTokensLimit
	if err := cfg.Validate(); err != nil {
		t.Fatalf("limit rejected: %v", err)
	}
	cfg.Generation.MaxTokens = generation.MaxTokensLimit + 1
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "max_tokens") {
		t.Fatalf("expected max_tokens error, got %v", err)
	}
}

func TestResolveExplicitPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if _, _, err := Resolve(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
	path := filepath.Join(dir, "c.yaml")
	if err := os.WriteFile(path, []byte("log:\n  format: json\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, used, err := Resolve(path)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if used != path || cfg.Log.Format != "json" {
		t.Fatalf("resolve mismatch: used=%q format=%q", used, cfg.Log.Format)
	}
}

func TestGenerationRequest(t *testing.T) {
	t.Parallel()
	req := Default().Generation.Request()
	if req.MaxTokens != 128 || req.Temperature != 0.7 || req.TopK != 40 {
		t.Fatalf("request mismatch: %+v", req)
	}
}
