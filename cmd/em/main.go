package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ecucore/coreem/internal/config"
	"github.com/ecucore/coreem/internal/em"
	"github.com/ecucore/coreem/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to em.toml (optional; defaults stand if absent)")
	flag.Parse()

	logging.ConfigureRuntime()
	log := logging.For("em.main")

	cfg, err := config.LoadEMConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "em: %v\n", err)
		os.Exit(1)
	}

	mgr := em.NewManager(cfg)
	if err := mgr.Bootstrap(); err != nil {
		log.Error().Err(err).Msg("bootstrap failed")
		os.Exit(1)
	}
	if err := mgr.WireUp(); err != nil {
		log.Error().Err(err).Msg("wire up failed")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mgr.Run(ctx); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}
