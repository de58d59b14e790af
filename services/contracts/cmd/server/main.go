package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ologywood-Platform/ologywoodv5-sub000/internal/config"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/internal/metrics"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/certify"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/db"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/lifecycle"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/services/contracts/internal/api"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/services/contracts/internal/notify"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/services/contracts/internal/store"
)

func main() {
	configFile := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	issuer, err := certify.NewIssuer(
		[]byte(cfg.SigningSecret),
		certify.WithValidity(time.Duration(cfg.CertValidityDays)*24*time.Hour),
	)
	if err != nil {
		logger.Error("build certificate issuer", "error", err)
		os.Exit(1)
	}

	st := store.New(pool)
	engine := lifecycle.NewEngine(st, &notify.LogNotifier{Logger: logger}, issuer)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)
	handler := api.NewHandler(engine, issuer, st, m)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Route("/v1", handler.Routes)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		logger.Info("contracts service listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	shutdownTimeout, err := time.ParseDuration(cfg.ShutdownTimeout)
	if err != nil {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
