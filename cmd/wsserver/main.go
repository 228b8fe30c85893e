package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mishragini/OpiniXchange/internal/bus"
	"github.com/Mishragini/OpiniXchange/internal/config"
	"github.com/Mishragini/OpiniXchange/internal/fanout"
)

func main() {
	cfg, err := config.FromFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger("wsserver")

	opts, err := cfg.RedisOptions()
	if err != nil {
		logger.Error("invalid REDIS_URL", "err", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()
	rb := bus.NewRedisBus(rdb, cfg.Redis.Queue)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := rb.Subscribe(ctx, bus.TopicMarketUpdates, bus.TopicOrderbookUpdates)
	if err != nil {
		logger.Error("subscribe failed", "err", err)
		os.Exit(1)
	}
	defer sub.Close()

	hub := fanout.NewHub()
	go hub.Run(ctx)
	go hub.Consume(ctx, sub)

	// No read/write timeouts: WebSocket connections are long-lived and the
	// hub manages their deadlines.
	srv := &http.Server{
		Addr:        cfg.WS.Addr,
		Handler:     hub.Routes(),
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		logger.Info("wsserver listening", "addr", cfg.WS.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down wsserver...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}
