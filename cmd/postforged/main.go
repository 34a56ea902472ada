// Command postforged runs the content-generation daemon: the HTTP API, the
// request governor, background analysis jobs, the cache sweeper, and the
// video poller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"postforge/internal/config"
	"postforge/internal/daemon"
	"postforge/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/postforge/config.toml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, resolvedPath, exists, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !exists {
		fmt.Fprintf(os.Stderr, "no config file at %s, using defaults\n", resolvedPath)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		d.Stop()
	}()

	if err := d.Wait(); err != nil {
		logger.Error("daemon exited", logging.Error(err))
		os.Exit(1)
	}
}
