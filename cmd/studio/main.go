package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"overlay-studio/internal/client"
	"overlay-studio/internal/platform/config"
	"overlay-studio/internal/platform/logger"
	"overlay-studio/internal/platform/metrics"
	"overlay-studio/internal/playback"
	"overlay-studio/internal/studio"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	shutdownTimeout = 10 * time.Second
	loadTimeout     = 10 * time.Second
)

func main() {
	_ = config.Load()

	port := config.GetEnv("STUDIO_PORT", "8090")
	apiBaseURL := config.GetEnv("API_BASE_URL", "http://localhost:8080")
	apiTimeout := config.GetEnvDuration("API_TIMEOUT", 10*time.Second)
	engine := config.GetEnv("PLAYBACK_ENGINE", "software")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)
	httpClient := &http.Client{Timeout: apiTimeout}

	overlays, err := client.NewOverlayClient(apiBaseURL, httpClient, log)
	if err != nil {
		log.Error("invalid API_BASE_URL", "error", err)
		os.Exit(1)
	}
	streams, err := client.NewStreamClient(apiBaseURL, httpClient, log)
	if err != nil {
		log.Error("invalid API_BASE_URL", "error", err)
		os.Exit(1)
	}

	// "native" leaves HLS to the browser's video element.
	engines := &playback.HLSEngineFactory{
		Client:   httpClient,
		Log:      log,
		Disabled: engine == "native",
	}
	surface := studio.NewRemoteSurface(engine == "native")

	met := metrics.New()
	st := studio.New(overlays, engines, surface, streams, log, met)

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	if err := st.Reload(ctx); err != nil {
		log.Warn("initial overlay load failed, starting empty", "error", err)
	}
	cancel()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", met.Handler(nil).ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	studio.NewHandler(st, log).Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("studio starting",
		"port", port,
		"api_base_url", apiBaseURL,
		"playback_engine", engine,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	st.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("studio stopped")
}
