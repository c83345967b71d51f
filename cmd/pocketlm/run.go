package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pocketlm/internal/generation"
	"github.com/samcharles93/pocketlm/internal/logger"
)

func runCmd() *cli.Command {
	var (
		prompt    string
		showStats bool
	)

	flags := append(modelFlags(), vocabFlags()...)
	flags = append(flags, generationFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text (default: arguments, then stdin)",
			Destination: &prompt,
		},
		&cli.BoolFlag{
			Name:        "stats",
			Usage:       "print generation statistics",
			Destination: &showStats,
		},
	)

	return &cli.Command{
		Name:      "run",
		Usage:     "Generate a completion for one prompt",
		ArgsUsage: "[prompt...]",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := configFromContext(ctx)
			applyModelConfig(cmd, &cfg)
			applyGenerationConfig(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			text, err := readPrompt(prompt, cmd.Args().Slice(), os.Stdin)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			a, err := newAssistant(cfg, log, provisionBar())
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Cleanup(); err != nil {
					log.Warn("cleanup failed", "error", err)
				}
			}()
			if err := a.Initialize(ctx); err != nil {
				return fmt.Errorf("initialize: %w", err)
			}

			genCtx, cancel := ctx, context.CancelFunc(func() {})
			if cfg.Generation.Timeout > 0 {
				genCtx, cancel = context.WithTimeout(ctx, cfg.Generation.Timeout)
			}
			defer cancel()

			out := cmd.Root().Writer
			req := a.Request(text)
			s, err := a.Start(genCtx, req, &printSink{w: out})
			if err != nil {
				return err
			}
			res := s.Wait()
			_, _ = fmt.Fprintln(out)

			if showStats {
				log.Info("generation finished",
					"outcome", res.Outcome,
					"tokens", res.Stats.TokensGenerated,
					"duration", res.Stats.Duration,
					"ttft", res.Stats.TTFT,
					"tps", fmt.Sprintf("%.1f", res.Stats.TPS),
				)
			}
			switch res.Outcome {
			case generation.Cancelled:
				log.Warn("generation cancelled")
				return nil
			case generation.Failed:
				return res.Err
			}
			return nil
		},
	}
}

// readPrompt picks the prompt from the flag, then the arguments, then r.
func readPrompt(flag string, args []string, r io.Reader) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", errors.New("prompt is required (--prompt, arguments or stdin)")
	}
	return text, nil
}

// printSink writes each new part of the growing output as it arrives.
type printSink struct {
	w    io.Writer
	sent int
}

func (p *printSink) Progress(text string) {
	if len(text) <= p.sent {
		return
	}
	_, _ = io.WriteString(p.w, text[p.sent:])
	p.sent = len(text)
}

func (p *printSink) Done(generation.Result) {}
