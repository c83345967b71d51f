package main

import "github.com/urfave/cli/v3"

var (
	configFile string
	logLevel   string
	logFormat  string
	debug      bool

	modelPath string
	bundleDir string
	prune     bool
	vocabPath string
	backend   string
	threads   int

	maxTokens     int
	temperature   float64
	topK          int
	topP          float64
	repeatPenalty float64
	seed          uint64
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default: $POCKETLM_CONFIG, ./pocketlm.yaml, user config dir)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to the model artifact",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "bundle-dir",
			Usage:       "directory holding a bundled model to provision from",
			Destination: &bundleDir,
		},
		&cli.BoolFlag{
			Name:        "prune",
			Usage:       "remove older files next to the model after provisioning",
			Destination: &prune,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "execution backend (auto, neural, gpu, cpu)",
			Value:       "auto",
			Destination: &backend,
		},
		&cli.IntFlag{
			Name:        "threads",
			Usage:       "CPU threads (0 = derived from core count)",
			Destination: &threads,
		},
	}
}

func vocabFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vocab",
			Usage:       "path to vocab.json",
			Destination: &vocabPath,
		},
	}
}

func generationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-tokens",
			Aliases:     []string{"n"},
			Usage:       "maximum tokens to generate",
			Value:       128,
			Destination: &maxTokens,
		},
		&cli.Float64Flag{
			Name:        "temp",
			Aliases:     []string{"temperature", "t"},
			Usage:       "sampling temperature (0 = greedy)",
			Value:       0.7,
			Destination: &temperature,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Aliases:     []string{"top_k", "topk"},
			Usage:       "top-k sampling parameter (0 = disabled)",
			Value:       40,
			Destination: &topK,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Aliases:     []string{"top_p", "topp"},
			Usage:       "top-p sampling parameter",
			Value:       0.95,
			Destination: &topP,
		},
		&cli.Float64Flag{
			Name:        "repeat-penalty",
			Aliases:     []string{"repeat_penalty"},
			Usage:       "repetition penalty (1.0 = disabled)",
			Value:       1.0,
			Destination: &repeatPenalty,
		},
		&cli.Uint64Flag{
			Name:        "seed",
			Usage:       "sampling RNG seed (0 = random)",
			Destination: &seed,
		},
	}
}
