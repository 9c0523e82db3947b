package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"overlay-studio/internal/overlay"
	"overlay-studio/internal/platform/config"
	"overlay-studio/internal/platform/logger"
	"overlay-studio/internal/platform/metrics"
	"overlay-studio/internal/stream"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	shutdownTimeout = 10 * time.Second
	connectTimeout  = 10 * time.Second
)

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	databaseURL := config.GetEnv("DATABASE_URL", "")
	mongoDatabase := config.GetEnv("MONGO_DATABASE", overlay.DefaultMongoDatabase)
	mongoCollection := config.GetEnv("MONGO_COLLECTION", overlay.DefaultMongoCollection)
	outputDir := config.GetEnv("HLS_OUTPUT_DIR", "./stream")
	ffmpegPath := config.GetEnv("FFMPEG_PATH", "ffmpeg")
	segmentSeconds := config.GetEnvInt("HLS_SEGMENT_SECONDS", 5)
	listSize := config.GetEnvInt("HLS_LIST_SIZE", 3)

	log := logger.New(logLevel, logFormat)

	var (
		store overlay.Store
		mongo *overlay.MongoStore
	)
	if databaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		var err error
		mongo, err = overlay.ConnectMongo(ctx, databaseURL, mongoDatabase, mongoCollection)
		cancel()
		if err != nil {
			log.Error("mongodb connection failed", "error", err)
			os.Exit(1)
		}
		store = mongo
		log.Info("mongodb connected", "database", mongoDatabase, "collection", mongoCollection)
	} else {
		store = overlay.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, overlays are kept in memory")
	}

	var transcoder stream.Transcoder
	ffmpeg, err := stream.NewFFmpegTranscoder(log, stream.FFmpegOptions{
		Path:           ffmpegPath,
		SegmentSeconds: segmentSeconds,
		ListSize:       listSize,
	})
	if err != nil {
		log.Warn("stream control disabled", "error", err)
		transcoder = stream.UnavailableTranscoder{Err: err}
	} else {
		transcoder = ffmpeg
	}

	met := metrics.New()
	overlaySvc := overlay.NewService(store, log)
	overlayH := overlay.NewHandler(overlaySvc, log, met)
	streamSvc := stream.NewService(transcoder, outputDir, "/stream", log)
	streamH := stream.NewHandler(streamSvc, log, met)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveStreams(streamSvc.ActiveCount()) }).ServeHTTP(w, r)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Route("/api/overlays", func(r chi.Router) {
		r.Get("/", overlayH.List)
		r.Post("/", overlayH.Create)
		r.Put("/{id}", overlayH.Update)
		r.Delete("/{id}", overlayH.Delete)
	})
	r.Route("/api/stream", func(r chi.Router) {
		r.Post("/start", streamH.Start)
		r.Post("/stop", streamH.Stop)
		r.Get("/status", streamH.Status)
	})
	r.Handle("/stream/*", http.StripPrefix("/stream", http.HandlerFunc(streamH.Files)))

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"hls_output_dir", outputDir,
		"persistent", mongo != nil,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	if err := streamSvc.Stop(); err != nil && !errors.Is(err, stream.ErrNotRunning) {
		log.Warn("transcoder stop failed", "error", err)
	}
	if mongo != nil {
		if err := mongo.Close(ctx); err != nil {
			log.Warn("mongodb disconnect failed", "error", err)
		}
	}

	log.Info("server stopped")
}
