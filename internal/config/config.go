// Package config loads pocketlm settings from YAML with environment
// overrides. Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/pocketlm/internal/accel"
	"github.com/samcharles93/pocketlm/internal/artifact"
	"github.com/samcharles93/pocketlm/internal/generation"
	"github.com/samcharles93/pocketlm/internal/tokenizer"
)

const (
	EnvConfig   = "POCKETLM_CONFIG"
	EnvModel    = "POCKETLM_MODEL"
	EnvBackend  = "POCKETLM_BACKEND"
	EnvLogLevel = "POCKETLM_LOG_LEVEL"

	localFile = "pocketlm.yaml"
)

// Config is the pocketlm configuration file (~/.config/pocketlm/config.yaml).
type Config struct {
	Model       ModelConfig       `yaml:"model"`
	Vocab       VocabConfig       `yaml:"vocab"`
	Accelerator AcceleratorConfig `yaml:"accelerator"`
	Generation  GenerationConfig  `yaml:"generation"`
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
}

type ModelConfig struct {
	Path string `yaml:"path"`
	// BundleDir holds a bundled copy of the model to provision Path from.
	BundleDir string `yaml:"bundle_dir"`
	// Prune deletes older files next to Path after provisioning a new copy.
	Prune   bool  `yaml:"prune"`
	MinSize int64 `yaml:"min_size"`
}

type VocabConfig struct {
	Path string `yaml:"path"`
}

type AcceleratorConfig struct {
	Backend string `yaml:"backend"`
	// Threads pins the CPU thread count; 0 derives it from the core count.
	Threads int `yaml:"threads"`
}

type GenerationConfig struct {
	MaxTokens     int           `yaml:"max_tokens"`
	Temperature   float64       `yaml:"temperature"`
	TopK          int           `yaml:"top_k"`
	TopP          float64       `yaml:"top_p"`
	RepeatPenalty float64       `yaml:"repeat_penalty"`
	Seed          uint64        `yaml:"seed"`
	Timeout       time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Address    string        `yaml:"address"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Path:    filepath.Join("models", "model.bin"),
			MinSize: artifact.DefaultMinSize,
		},
		Vocab: VocabConfig{Path: filepath.Join("models", tokenizer.DefaultVocabFile)},
		Accelerator: AcceleratorConfig{
			Backend: string(accel.Auto),
		},
		Generation: GenerationConfig{
			MaxTokens:   generation.DefaultMaxTokens,
			Temperature: generation.DefaultTemperature,
			TopK:        40,
			TopP:        0.95,
		},
		Log: LogConfig{Level: "info", Format: "pretty"},
		Server: ServerConfig{
			Address:    "127.0.0.1:8080",
			SessionTTL: 10 * time.Minute,
		},
	}
}

// Load reads path over the defaults. Keys absent from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Path returns where the config is looked up: the explicit path, then
// $POCKETLM_CONFIG, then ./pocketlm.yaml, then the user config dir. It
// returns "" when none of the implicit locations exist.
func Path(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfig)); p != "" {
		return p
	}
	if _, err := os.Stat(localFile); err == nil {
		return localFile
	}
	if dir, err := os.UserConfigDir(); err == nil {
		p := filepath.Join(dir, "pocketlm", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Resolve loads the configuration from Path(explicit), applies environment
// overrides and validates the result. An explicitly named file that does not
// exist is an error; no file at all yields the defaults.
func Resolve(explicit string) (Config, string, error) {
	path := Path(explicit)
	cfg := Default()
	if path != "" {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return cfg, path, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return cfg, path, err
	}
	return cfg, path, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvModel); ok && strings.TrimSpace(v) != "" {
		c.Model.Path = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvBackend); ok && strings.TrimSpace(v) != "" {
		c.Accelerator.Backend = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		c.Log.Level = strings.TrimSpace(v)
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Model.Path) == "" {
		errs = append(errs, errors.New("model.path is required"))
	}
	if c.Model.MinSize < 0 {
		errs = append(errs, fmt.Errorf("model.min_size must not be negative, got %d", c.Model.MinSize))
	}
	if _, err := accel.Normalize(c.Accelerator.Backend); err != nil {
		errs = append(errs, fmt.Errorf("accelerator.backend: %w", err))
	}
	if c.Accelerator.Threads < 0 {
		errs = append(errs, fmt.Errorf("accelerator.threads must not be negative, got %d", c.Accelerator.Threads))
	}
	g := c.Generation
	if g.MaxTokens <= 0 || g.MaxTokens > generation.MaxTokensLimit {
		errs = append(errs, fmt.Errorf("generation.max_tokens must be in [1, %d], got %d", generation.MaxTokensLimit, g.MaxTokens))
	}
	if g.Temperature < 0 {
		errs = append(errs, fmt.Errorf("generation.temperature must not be negative, got %v", g.Temperature))
	}
	if g.TopP < 0 || g.TopP > 1 {
		errs = append(errs, fmt.Errorf("generation.top_p must be within [0, 1], got %v", g.TopP))
	}
	if g.Timeout < 0 {
		errs = append(errs, fmt.Errorf("generation.timeout must not be negative, got %v", g.Timeout))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "pretty", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be pretty, json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Request converts the generation section into request defaults.
func (g GenerationConfig) Request() generation.Request {
	return generation.Request{
		MaxTokens:     g.MaxTokens,
		Temperature:   float32(g.Temperature),
		TopK:          g.TopK,
		TopP:          float32(g.TopP),
		RepeatPenalty: float32(g.RepeatPenalty),
		Seed:          g.Seed,
	}
}
