package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"govorilka/internal/config"
	"govorilka/internal/controller"
	"govorilka/internal/occupancy"
	"govorilka/internal/session"
	"govorilka/internal/transport"
	"govorilka/internal/ui"
	"govorilka/internal/wire"
)

func run(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	codec, err := wire.CodecByName(cfg.Codec)
	if err != nil {
		return err
	}

	client, err := transport.Dial(ctx, transport.Config{
		URL:               cfg.RelayURL,
		PublishKey:        cfg.PublishKey,
		SubscribeKey:      cfg.SubscribeKey,
		Codec:             codec,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})
	if err != nil {
		return err
	}

	manager := session.NewManager(client, codec)

	var term *ui.Terminal
	ctrl := controller.New(controller.Config{
		Channel: cfg.Channel,
		Session: manager,
		Occupancy: func(ctx context.Context, channels []string) (wire.HereNowResponse, error) {
			return occupancy.Fetch(ctx, client, channels)
		},
		OnRender: func(s controller.Snapshot) { term.Render(s) },
	})
	term = ui.New(ctrl, client.UUIDMetadata, os.Stdin, os.Stdout)

	if cfg.Identity != "" {
		ctrl.Dispatch(controller.SetIdentity{Name: cfg.Identity})
		ctrl.Dispatch(controller.Connect{})
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return client.Run(gCtx)
	})

	// The controller loop applies Teardown when gCtx is cancelled, so
	// the session disconnects on signal and on /quit alike.
	g.Go(func() error {
		return ctrl.Run(gCtx)
	})

	g.Go(func() error {
		return term.Run(gCtx)
	})

	return g.Wait()
}

func main() {
	// The shutdown hook: signal cancellation fans out through the run
	// contexts and ends in the controller's Teardown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ui.ErrQuit) {
		slog.Error("client exited with error", "error", err)
		os.Exit(1)
	}
}
