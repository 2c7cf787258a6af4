package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"govorilka/internal/config"
	"govorilka/internal/relay"
)

func run(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.LoadRelay()
	if err != nil {
		return err
	}

	hub := relay.NewHub(ctx, cfg.HeartbeatTTL)
	ws := relay.NewServer(hub)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", ws.HandleWS)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("relay listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return hub.Run(gCtx, cfg.SweepInterval)
	})

	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutting down relay")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("relay shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("relay exited with error", "error", err)
		os.Exit(1)
	}
}
