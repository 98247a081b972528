// In file: cmd/gateway/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"goa.design/clue/log"

	"github.com/dileep-u-k/compliance-gateway/internal/app"
	"github.com/dileep-u-k/compliance-gateway/internal/config"
	"github.com/dileep-u-k/compliance-gateway/internal/schedule"
	"github.com/dileep-u-k/compliance-gateway/internal/version"
)

const (
	shutdownTimeout    = 10 * time.Second
	healthCheckTimeout = 30 * time.Second
)

// main is the entry point for the application.
// Its primary role is the "Composition Root": it loads configuration,
// initializes all services, injects dependencies, and starts the server.
func main() {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	buildInfo := version.GetBuildInfo()
	log.Print(ctx,
		log.KV{K: "msg", V: "starting compliance gateway"},
		log.KV{K: "version", V: buildInfo.Version},
		log.KV{K: "commit", V: buildInfo.GitCommit},
	)

	// 1. LOAD CONFIGURATION
	cfg, err := config.Load(ctx, "")
	if err != nil {
		log.Fatalf(ctx, err, "configuration error")
	}
	if cfg.Debug {
		ctx = log.Context(ctx, log.WithDebug())
	}

	// 2. INITIALIZE SERVICES
	services, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf(ctx, err, "could not initialize services")
	}
	defer services.Close()

	// 3. START BACKGROUND PROCESSES
	scheduler := schedule.New(ctx)
	if err := services.ScheduleJobs(scheduler); err != nil {
		log.Fatalf(ctx, err, "invalid schedule")
	}
	scheduler.Start()

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	if cfg.HealthCheckInterval > 0 {
		go startHealthChecker(bgCtx, services, cfg.HealthCheckInterval)
	}

	// 4. SETUP AND RUN THE WEB SERVER
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	NewGatewayHandler(services).Register(engine)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           log.HTTP(ctx)(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}
	runServerWithGracefulShutdown(ctx, srv)

	stopBackground()
	stopCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := scheduler.Stop(stopCtx); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "scheduler did not stop cleanly"})
	}
}

// startHealthChecker proactively checks every agent model until ctx is done.
func startHealthChecker(ctx context.Context, services *app.App, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info(ctx, log.KV{K: "msg", V: "health checker started"}, log.KV{K: "interval", V: interval.String()})
	for {
		services.CheckModels(ctx, healthCheckTimeout)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runServerWithGracefulShutdown handles the server lifecycle.
func runServerWithGracefulShutdown(ctx context.Context, srv *http.Server) {
	go func() {
		log.Print(ctx, log.KV{K: "msg", V: "gateway listening"}, log.KV{K: "addr", V: srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf(ctx, err, "listen error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Print(ctx, log.KV{K: "msg", V: "shutting down server"})
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "server shutdown failed"})
		return
	}
	log.Print(ctx, log.KV{K: "msg", V: "server exited gracefully"})
}
