package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/webhunter-dev/webhunter/internal/api/handlers"
	"github.com/webhunter-dev/webhunter/internal/api/middleware"
	"github.com/webhunter-dev/webhunter/internal/notify"
	"github.com/webhunter-dev/webhunter/internal/otelx"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the polling scheduler and operational server",
		RunE:  runServe,
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otelx.Init(ctx, a.log, a.cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	if shutdownTracing != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				a.log.Error("tracing shutdown failed", "error", err)
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recovery(a.log))
	e.Use(middleware.RequestLog(a.log))
	e.Use(middleware.Metrics())

	health := handlers.NewHealthHandler(a.store)
	e.GET("/healthz", health.Healthz)
	e.GET("/readyz", health.Readyz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/api/v1/status", handlers.NewStatusHandler(a.scheduler).GetStatus)

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("operational server error", "error", err)
		}
	}()
	a.log.Info("operational server started", "addr", addr)

	a.sendLifecycleMessage(ctx, a.cfg.Notifications.StartupMessage)

	schedErr := make(chan error, 1)
	go func() { schedErr <- a.scheduler.Run(ctx) }()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		if err := <-schedErr; err != nil {
			a.log.Error("scheduler stopped with error", "error", err)
		}
	case err := <-schedErr:
		// Scheduler can only exit early on a startup-fatal store fault.
		stop()
		if err != nil {
			a.sendLifecycleMessage(context.Background(), a.cfg.Notifications.ShutdownMessage)
			shutdownServer(e, a)
			return fmt.Errorf("scheduler: %w", err)
		}
	}

	a.sendLifecycleMessage(context.Background(), a.cfg.Notifications.ShutdownMessage)
	shutdownServer(e, a)
	return nil
}

func shutdownServer(e *echo.Echo, a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		a.log.Error("server shutdown failed", "error", err)
		return
	}
	a.log.Info("server stopped")
}

// sendLifecycleMessage pushes a startup or shutdown notice when configured.
// Lifecycle notices are best effort and never block the service lifecycle on
// retries.
func (a *app) sendLifecycleMessage(ctx context.Context, text string) {
	if text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msg := notify.Message{Title: "webhunter", Body: text}
	if err := a.sender.Send(ctx, msg); err != nil {
		a.log.Warn("lifecycle notice failed", "error", err)
	}
}
