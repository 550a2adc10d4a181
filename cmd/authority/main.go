package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"minerva/internal/authority"
	"minerva/internal/platform/config"
	"minerva/internal/platform/httpserver"
	"minerva/internal/platform/logger"
)

// main runs the development identity authority the minerva client talks to.
// Accounts, nonces and refresh tokens live in memory only.
func main() {
	configPath := flag.String("config", os.Getenv("MINERVA_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New(config.Default().Log).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	tokens := authority.NewTokenIssuer(cfg.Authority.SigningKey, "minerva-authority", cfg.Authority.TokenTTL)
	svc, err := authority.New(tokens,
		authority.WithLogger(log),
		authority.WithRefreshTTL(cfg.Authority.RefreshTTL),
		authority.WithNonceTTL(cfg.Authority.NonceTTL),
	)
	if err != nil {
		log.Error("failed to build authority", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	authority.NewHandler(svc, log).Register(router)
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Authority.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("starting authority", "addr", cfg.Authority.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("authority stopped")
}
