package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"uwave/internal/config"
	"uwave/internal/engine"
	"uwave/internal/listen"
	"uwave/internal/logging"
	"uwave/internal/playback"
	"uwave/internal/resolver"
	"uwave/internal/scheduler"
	"uwave/internal/server"
	"uwave/internal/store"
	"uwave/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "uwave: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Debug)
	defer logger.Sync()
	zap.ReplaceGlobals(logger.Desugar())
	log := logger.Component("main")

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return err
		}
	}

	s, err := store.New(cfg.DBPath, store.WithResolveCacheTTL(cfg.Resolver.CacheTTL))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	if err := s.Migrate(store.Migrations()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := resolver.New(logger.Component("resolver"), cfg.Resolver.BaseURL,
		resolver.WithCache(s),
		resolver.WithRateLimit(cfg.Resolver.RateLimit, cfg.Resolver.Burst),
		resolver.WithTimeout(cfg.Resolver.Timeout),
	)
	displays := engine.NewDisplays(logger.Component("displays"))
	eng := engine.NewProbeEngine(logger.Component("engine"), cfg.Engine.ProbeTimeout)

	player := playback.NewManager(logger.Component("player"), res, eng, displays,
		playback.WithHistory(s),
		playback.WithPreferredResolution(cfg.Player.PreferredResolution),
	)

	dispatcher := transport.NewDispatcher(logger.Component("dispatcher"))
	sockOpts := []transport.Option{
		transport.WithReconnectBackoff(cfg.Socket.ReconnectBackoff),
		transport.WithPingInterval(cfg.Socket.PingInterval),
	}
	if cfg.Socket.AuthToken != "" {
		sockOpts = append(sockOpts, transport.WithAuthToken(cfg.Socket.AuthToken))
	}
	sock := transport.NewSocket(logger.Component("socket"), dispatcher, sockOpts...)

	listener := listen.New(ctx, logger.Component("listen"), player,
		listen.WithPlaybackType(cfg.DefaultPlaybackType()))
	dispatcher.AddListener(listener)

	sch := scheduler.New(s, logger.Component("scheduler"),
		scheduler.WithInterval(cfg.Maintenance.Interval),
		scheduler.WithRetention(cfg.Maintenance.HistoryRetention),
	)
	sch.Start(ctx)

	var opts []server.Option
	if cfg.CORSOrigin != "" {
		opts = append(opts, server.WithCORSOrigin(cfg.CORSOrigin))
	}
	opts = append(opts,
		server.WithLogger(logger.Component("http")),
		server.WithPlayer(player),
		server.WithSocket(sock),
	)
	srv := server.NewServer(s, opts...)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infow("uwave listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Socket.URL != "" {
		g.Go(func() error {
			stream, err := sock.Subscribe(gctx, cfg.Socket.URL)
			if err != nil {
				return err
			}
			log.Infow("following room", "url", cfg.Socket.URL)
			for frame := range stream {
				log.Debugw("frame", "data", frame)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		sch.Stop()
		sock.Stop()
		dispatcher.Close()
		if cerr := player.Close(shutdownCtx); cerr != nil {
			log.Warnw("waiting for playback history", "error", cerr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}
