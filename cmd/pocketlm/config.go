package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pocketlm/internal/accel"
	"github.com/samcharles93/pocketlm/internal/artifact"
	"github.com/samcharles93/pocketlm/internal/assistant"
	"github.com/samcharles93/pocketlm/internal/config"
	"github.com/samcharles93/pocketlm/internal/logger"
	"github.com/samcharles93/pocketlm/internal/tokenizer"
)

type configKey struct{}

// setup resolves the configuration, applies the global flags and installs
// the logger for every subcommand.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, path, err := config.Resolve(configFile)
	if err != nil {
		return ctx, err
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = logLevel
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = logFormat
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	log := logger.ForFormat(os.Stderr, cfg.Log.Format, logger.ParseLevel(cfg.Log.Level))
	if path != "" {
		log.Debug("config loaded", "path", path)
	}
	ctx = logger.WithContext(ctx, log)
	return context.WithValue(ctx, configKey{}, cfg), nil
}

func configFromContext(ctx context.Context) config.Config {
	if cfg, ok := ctx.Value(configKey{}).(config.Config); ok {
		return cfg
	}
	return config.Default()
}

// applyModelConfig overrides the model, accelerator and vocabulary sections
// with the flags that were explicitly set.
func applyModelConfig(c *cli.Command, cfg *config.Config) {
	if c.IsSet("model") {
		cfg.Model.Path = modelPath
	}
	if c.IsSet("bundle-dir") {
		cfg.Model.BundleDir = bundleDir
	}
	if c.IsSet("prune") {
		cfg.Model.Prune = prune
	}
	if c.IsSet("backend") {
		cfg.Accelerator.Backend = backend
	}
	if c.IsSet("threads") {
		cfg.Accelerator.Threads = threads
	}
	if c.IsSet("vocab") {
		cfg.Vocab.Path = vocabPath
	}
}

// applyGenerationConfig overrides the generation section with the flags
// that were explicitly set.
func applyGenerationConfig(c *cli.Command, cfg *config.Config) {
	g := &cfg.Generation
	if c.IsSet("max-tokens") {
		g.MaxTokens = maxTokens
	}
	if c.IsSet("temp") {
		g.Temperature = temperature
	}
	if c.IsSet("top-k") {
		g.TopK = topK
	}
	if c.IsSet("top-p") {
		g.TopP = topP
	}
	if c.IsSet("repeat-penalty") {
		g.RepeatPenalty = repeatPenalty
	}
	if c.IsSet("seed") {
		g.Seed = seed
	}
}

func vocabOptions(cfg config.Config, log logger.Logger) tokenizer.Options {
	return tokenizer.Options{Path: cfg.Vocab.Path, Log: log}
}

// newAssistant builds the assistant for cfg. progress, when non-nil,
// receives provisioning byte counts.
func newAssistant(cfg config.Config, log logger.Logger, progress artifact.ProgressFunc) (*assistant.Assistant, error) {
	kind, err := accel.Normalize(cfg.Accelerator.Backend)
	if err != nil {
		return nil, err
	}
	var bundle *artifact.Provisioner
	if cfg.Model.BundleDir != "" {
		bundle = &artifact.Provisioner{
			Source:   os.DirFS(cfg.Model.BundleDir),
			Name:     filepath.Base(cfg.Model.Path),
			Progress: progress,
			Prune:    cfg.Model.Prune,
			Log:      log,
		}
		if filepath.Dir(cfg.Vocab.Path) == filepath.Dir(cfg.Model.Path) {
			bundle.Keep = append(bundle.Keep, filepath.Base(cfg.Vocab.Path))
		}
	}
	return assistant.New(assistant.Options{
		ModelPath: cfg.Model.Path,
		MinSize:   cfg.Model.MinSize,
		Bundle:    bundle,
		Vocab:     vocabOptions(cfg, log),
		Backend:   kind,
		Threads:   cfg.Accelerator.Threads,
		Defaults:  cfg.Generation.Request(),
		Log:       log,
	}), nil
}

// provisionBar renders provisioning progress on stderr. The bar is created
// on the first report, once the total is known.
func provisionBar() artifact.ProgressFunc {
	var bar *progressbar.ProgressBar
	return func(written, total int64) {
		if bar == nil {
			bar = progressbar.NewOptions64(total,
				progressbar.OptionSetDescription("Provisioning model"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowBytes(true),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionClearOnFinish(),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "=",
					SaucerHead:    ">",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
			)
		}
		_ = bar.Set64(written)
		if total > 0 && written >= total {
			_ = bar.Finish()
		}
	}
}
