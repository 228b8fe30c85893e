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
	"github.com/Mishragini/OpiniXchange/internal/gateway"
)

func main() {
	cfg, err := config.FromFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger("gateway")

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

	rpc, err := bus.NewClient(ctx, rb, rb, cfg.Gateway.RPCTimeout)
	if err != nil {
		logger.Error("subscribe to responses failed", "err", err)
		os.Exit(1)
	}
	defer rpc.Close()

	srv := &http.Server{
		Addr:        cfg.Gateway.Addr,
		Handler:     gateway.New(rpc).Routes(),
		ReadTimeout: 10 * time.Second,
		// Writes wait on engine replies.
		WriteTimeout: cfg.Gateway.RPCTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("gateway listening", "addr", cfg.Gateway.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down gateway...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}
