// xsystrayd is a standalone system tray host for X11. It claims the tray
// selection of every screen, embeds tray icons via XEmbed and publishes the
// list of embedded windows on the session bus, so that a panel which cannot
// speak X11 itself can still show them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/shelepuginivan/xsystray"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	display, err := xsystray.OpenXDisplay(cfg.Display)
	if err != nil {
		return err
	}

	registry := xsystray.NewRegistry()
	opts := []xsystray.Option{
		xsystray.WithLogger(logger),
		xsystray.WithVersion(cfg.XEmbedVersion),
		xsystray.WithRegistry(registry),
	}

	if cfg.DBus {
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			display.Close()
			return fmt.Errorf("failed to connect to session bus: %w", err)
		}
		defer conn.Close()

		exporter := xsystray.NewBusExporter(conn, registry, cfg.XEmbedVersion)
		if err := exporter.Listen(); err != nil {
			display.Close()
			return err
		}
		defer exporter.Close()

		opts = append(opts, xsystray.WithInvalidator(exporter))
	}

	tray := xsystray.New(display, opts...)
	tray.OnEvent(func(ev xgb.Event) {
		destroy, ok := ev.(xproto.DestroyNotifyEvent)
		if !ok {
			return
		}

		if _, docked := registry.Lookup(destroy.Window); docked {
			logger.Debug("Embedded window destroyed", zap.Uint32("window", uint32(destroy.Window)))
		}
	})
	tray.AnnounceAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Tray is running", zap.Int("screens", len(display.Roots())))

	if err := tray.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
