// Command web serves the Cover-Art-Go JSON API. Settings come from the YAML
// file named by COVERART_CONFIG (default: the user config dir) with secrets
// and the database location overridable through environment variables. The
// server listens on :4000 unless configured otherwise and exposes Prometheus
// metrics at /metrics.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"Cover-Art-Go/pkg/config"
	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/db"
	"Cover-Art-Go/pkg/handlers"
	"Cover-Art-Go/pkg/logging"
	"Cover-Art-Go/pkg/save"
	"Cover-Art-Go/pkg/services"
)

// newHandler wraps the API routes with metrics and middleware.
func newHandler(app *handlers.Application) http.Handler {
	r := app.Routes()
	r.Handle("/metrics", promhttp.Handler())
	return handlers.SecurityHeaders(handlers.RequestLogger(r))
}

// main configures application dependencies and starts the HTTP server.
func main() {
	path := os.Getenv("COVERART_CONFIG")
	if path == "" {
		path = config.DefaultPath()
	}
	settings, err := config.Load(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	closer, err := logging.Setup(settings.LogLevel, os.Getenv("COVERART_LOG_FILE"))
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closer.Close()

	// The SQLite database stores saved covers and cached service tokens.
	database, err := db.New(settings.DatabasePath)
	if err != nil {
		log.Fatalf("db init: %v", err)
	}
	defer database.Close()

	fetcher := services.Fetcher(settings)
	orch := cover.New(services.Build(settings, fetcher, database))
	app := &handlers.Application{
		Orchestrator: orch,
		Saver:        save.New(fetcher, database),
		History:      database,
		Defaults:     services.Options(settings),
		OutputDir:    settings.OutputDir(),
	}

	srv := &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           newHandler(app),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		orch.Shutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	}()

	log.WithFields(log.Fields{"addr": settings.ListenAddr, "services": app.Defaults.Services}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server error: %v", err)
	}
	<-done
}
