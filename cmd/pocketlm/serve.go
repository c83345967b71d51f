package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pocketlm/internal/api"
	"github.com/samcharles93/pocketlm/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	flags := append(modelFlags(), vocabFlags()...)
	flags = append(flags, generationFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read header timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the assistant over HTTP",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := configFromContext(ctx)
			applyModelConfig(cmd, &cfg)
			applyGenerationConfig(cmd, &cfg)
			if cmd.IsSet("addr") {
				cfg.Server.Address = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newAssistant(cfg, log, nil)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Cleanup(); err != nil {
					log.Warn("cleanup failed", "error", err)
				}
			}()

			// The server answers health checks while the model loads.
			go func() {
				if err := <-a.InitializeAsync(ctx); err != nil {
					log.Error("model initialization failed", "error", err)
					return
				}
				log.Info("model ready", "backend", a.Status().Choice.String())
			}()

			server := api.NewServer(api.Options{
				Service: a,
				Store:   api.NewSessionStore(cfg.Server.SessionTTL),
				Timeout: cfg.Generation.Timeout,
				Log:     log,
			})
			defer server.Close()

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", cfg.Server.Address)
			sc := echo.StartConfig{
				Address: cfg.Server.Address,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
