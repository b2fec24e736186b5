package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/example/mediaflow/internal/api"
	"github.com/example/mediaflow/internal/app"
	"github.com/example/mediaflow/internal/config"
	"github.com/example/mediaflow/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("MEDIAFLOW_CONFIG"), "path to YAML config")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("init", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: (&api.Server{Orch: a.Orchestrator, Tools: a.Tools.Tools(), Logger: logger}).Routes(),
		// request contexts end on shutdown, which closes SSE streams and
		// cancels streamed runs
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	logger.Info("server stopped")
}
