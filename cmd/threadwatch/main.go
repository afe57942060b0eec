// Package main provides the threadwatch worker entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/threadwatch/internal/config"
	"github.com/thebtf/threadwatch/internal/worker"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	roots := flag.String("roots", "", "Comma-separated watch roots (default: ~/.claude/projects)")
	port := flag.Int("port", 0, "HTTP listen port (default: 41777 or THREADWATCH_PORT)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := config.EnsureDataDir(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directory")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *roots != "" {
		cfg.WatchRoots = splitRoots(*roots)
	}
	if *port != 0 {
		cfg.WorkerPort = *port
	}
	config.Set(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down worker")
		cancel()
	}()

	svc, err := worker.NewService(Version, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize worker service")
	}

	log.Info().
		Strs("roots", cfg.WatchRoots).
		Int("port", cfg.WorkerPort).
		Str("version", Version).
		Msg("Starting threadwatch worker")

	if err := svc.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Worker service error")
	}
}

func splitRoots(raw string) []string {
	var out []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
