package main

// greenlane serves order intake, payment webhooks and health probes
// over HTTP. The notification queue has no in-process scheduler: an
// external cron drains it through POST /internal/queue/process.

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/greenlanehq/greenlane/app"
	"github.com/greenlanehq/greenlane/server"
)

const shutdownGrace = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("greenlane exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	application, err := app.New()
	if err != nil {
		return err
	}
	defer application.Close()

	srv, err := server.New(application.Config, application.Logger, application.Handlers)
	if err != nil {
		return err
	}

	application.Logger.Info("greenlane starting",
		"email_enabled", application.Config.EmailEnabled(),
		"sms_enabled", application.Config.SMSEnabled(),
		"cache_provider", application.Config.CacheProvider,
		"queue_trigger", "POST /internal/queue/process",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Run()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Close(shutdownCtx)
}
