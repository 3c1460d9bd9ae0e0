package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/rollcall/internal/config"
	"github.com/dwsmith1983/rollcall/internal/server"
	"github.com/dwsmith1983/rollcall/internal/server/handlers"
	"github.com/dwsmith1983/rollcall/internal/watchdog"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the rollcall HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, addr)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func runServe(configPath, addr string) error {
	ctx := context.Background()
	a, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	srvCfg := a.cfg.Server
	if addr != "" {
		srvCfg.Addr = addr
	}
	if srvCfg.Addr == "" {
		srvCfg.Addr = ":3000"
	}
	srv := server.New(srvCfg, handlers.Deps{
		Provider: a.prov,
		Streak:   a.engine,
		Backfill: a.sweeper,
		Nightly:  a.nightly,
		Location: a.loc,
		Logger:   a.logger,
	}, 0)

	if w := a.cfg.Watchdog; w != nil && w.Enabled {
		interval, grace := config.WatchdogDurations(w)
		wd := watchdog.New(watchdog.Options{
			Store:           a.prov,
			Location:        a.loc,
			AlertFn:         a.dispatcher.AlertFunc(),
			Logger:          a.logger,
			Interval:        interval,
			MaxLagDays:      w.MaxLagDays,
			StaleLeaseGrace: grace,
		})
		wd.Start(ctx)
		defer wd.Stop(ctx)
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		color.Green("Server stopped gracefully")
		return nil
	}
}
