package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"cineverse/discovery/internal/app"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stderr io.Writer) int {
	logger := newLogger(stderr)
	slog.SetDefault(slog.New(logger))

	cfg, err := app.LoadConfigWithFile()
	if err != nil {
		logger.Error("config file rejected", "path", cfg.ConfigFile, "err", err)
		return 1
	}
	logger.SetLevel(parseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalogs := app.BuildCatalogs(ctx, cfg, slog.Default())
	defer catalogs.Close()

	runner := NewRunner(RunnerOpts{
		Config:  cfg,
		Catalog: catalogs.Client,
		Remote:  catalogs.Backend,
		Logger:  logger,
	})

	cmd := &cli.Command{
		Name:     "cineverse",
		Usage:    "Search, browse and curate movies from the terminal",
		Version:  version,
		Commands: runner.register(),
	}
	if err := cmd.Run(ctx, args); err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		logger.Error("command failed", "err", err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer) *log.Logger {
	return log.NewWithOptions(w, log.Options{ReportTimestamp: true})
}

func parseLevel(raw string) log.Level {
	level, err := log.ParseLevel(raw)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
