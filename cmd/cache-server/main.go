package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/leonardcser/webcache-mcp/internal/cache"
	"github.com/leonardcser/webcache-mcp/internal/config"
	"github.com/leonardcser/webcache-mcp/internal/logger"
)

const sweepInterval = time.Minute

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.Path); err != nil {
		panic(err)
	}
	defer logger.Close()
	_ = logger.SetLevel(cfg.Log.Level)
	log := logger.L().With().Str("component", "cache-server").Logger()

	sock := cfg.Store.Socket
	// Ensure socket dir exists and remove stale socket
	_ = os.MkdirAll(filepath.Dir(sock), 0o755)
	_ = os.Remove(sock)

	store, err := cache.Open(cfg.Store.Path, cache.Options{Bucket: cfg.Store.Bucket, DefaultTTL: cfg.Store.DefaultTTL})
	if err != nil {
		log.Error().Err(err).Str("path", cfg.Store.Path).Msg("failed to open store")
		os.Exit(1)
	}
	defer store.Close()

	l, err := net.Listen("unix", sock)
	if err != nil {
		log.Error().Err(err).Str("socket", sock).Msg("failed to listen")
		os.Exit(1)
	}
	_ = os.Chmod(sock, 0o600)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweep(ctx, store)

	log.Info().Str("socket", sock).Str("path", cfg.Store.Path).Msg("serving cache")
	if err := cache.Serve(ctx, l, store); err != nil {
		log.Error().Err(err).Msg("serve failed")
	}
	_ = os.Remove(sock)
	log.Info().Msg("shutdown complete")
}

// sweep removes expired entries until ctx is done.
func sweep(ctx context.Context, store *cache.Store) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := store.Sweep(ctx)
			if err != nil {
				logger.Warnf("sweep: %v", err)
				continue
			}
			if n > 0 {
				logger.Debugf("sweep removed %d expired entries", n)
			}
		}
	}
}
