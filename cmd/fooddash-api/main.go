// README: Entry point; loads config, wires services, runs the HTTP server and background sweeps.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"fooddash/internal/app"
	"fooddash/internal/config"
	"fooddash/internal/infra"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		infra.NewLogger(os.Stderr, "text", "info").Error("load config", "error", err)
		os.Exit(1)
	}
	log := infra.NewLogger(os.Stdout, cfg.Log.Format, cfg.Log.Level)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("closing resources", "error", err)
		}
	}()
	return a.Run(ctx)
}
