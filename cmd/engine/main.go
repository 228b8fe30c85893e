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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/Mishragini/OpiniXchange/internal/auth"
	"github.com/Mishragini/OpiniXchange/internal/bus"
	"github.com/Mishragini/OpiniXchange/internal/config"
	"github.com/Mishragini/OpiniXchange/internal/engine"
	"github.com/Mishragini/OpiniXchange/internal/metrics"
)

func main() {
	cfg, err := config.FromFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger("engine")
	if cfg.UsingDefaultSecret() {
		logger.Warn("JWT_SECRET not set, using the default signing secret")
	}

	opts, err := cfg.RedisOptions()
	if err != nil {
		logger.Error("invalid REDIS_URL", "err", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	rb := bus.NewRedisBus(rdb, cfg.Redis.Queue)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = rb.Ping(pingCtx)
	cancelPing()
	if err != nil {
		logger.Error("redis unreachable", "err", err)
		os.Exit(1)
	}
	logger.Info("connected to Redis", "queue", cfg.Redis.Queue)

	eng := engine.New(auth.NewBcryptHasher(cfg.Auth.BcryptCost), auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL))
	dispatcher := engine.NewDispatcher(eng, rb, rb)

	// --- Ops server ---
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"engine"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         cfg.Engine.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("engine ops server listening", "addr", cfg.Engine.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server error", "err", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("engine consuming requests")
	if err := dispatcher.Run(ctx); err != nil {
		logger.Error("dispatcher stopped", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}
