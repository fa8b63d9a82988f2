package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"storefront-wallet/internal/auth"
	"storefront-wallet/internal/bootstrap"
	"storefront-wallet/internal/config"
	"storefront-wallet/internal/events"
	"storefront-wallet/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)
	rootCtx = logger.With(rootCtx, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	deps, err := bootstrap.Open(rootCtx, cfg)
	if err != nil {
		log.Error("dependency init failed", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerPublicRoutes(r, deps)
	registerRoutes(r, deps, auth.RequireAccessToken(authManager))

	var wg sync.WaitGroup
	var consumer *events.Consumer
	if cfg.KafkaEnabled() {
		consumer, err = events.NewConsumer(cfg.Kafka, deps.Dispatcher, bootstrap.RetryFrom(cfg.Events))
		if err != nil {
			log.Error("kafka init failed", "err", err)
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("event consumer started", "topics", cfg.Kafka.Topics, "group", cfg.Kafka.GroupID)
			if err := consumer.Run(rootCtx); err != nil {
				log.Error("event consumer stopped", "err", err)
				stop()
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "cache", cfg.RedisEnabled(), "kafka", cfg.KafkaEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Error("event consumer close failed", "err", err)
		}
		wg.Wait()
	}
}
