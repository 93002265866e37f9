package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"rtsp-broker/internal/broker"
	"rtsp-broker/internal/platform/config"
	"rtsp-broker/internal/platform/logger"
	"rtsp-broker/internal/platform/metrics"
	"rtsp-broker/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	configFile := config.GetEnv("CONFIG_FILE", "config.yaml")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	cfg, err := config.LoadFile(configFile)
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	driver := broker.NewFFmpegDriver(cfg.Transcoder.FFmpegPath, cfg.OriginHost(), log)
	registry := broker.NewRegistry(driver, log)
	probe := broker.NewOriginProbe(cfg.SRS.APIURL, log)
	h := broker.NewHandler(cfg, registry, probe, log, met)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopReaper := broker.StartReaper(ctx, registry,
		cfg.Session.IdleThreshold, cfg.Session.ReaperInterval,
		log, met.AddSessionsReaped)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(registry.Len()) }).ServeHTTP(w, r)
	})
	r.Get("/healthz", h.Healthz)
	h.Routes(r)
	r.Handle("/*", http.FileServer(http.FS(web.Static())))

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"addr", addr,
		"streams", len(cfg.Streams),
		"idle_threshold", cfg.Session.IdleThreshold.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	stopReaper()
	registry.Shutdown()

	log.Info("server stopped")
}
