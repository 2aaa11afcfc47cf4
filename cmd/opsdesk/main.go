package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsdesk-io/opsdesk-ce/internal/cache"
	"github.com/opsdesk-io/opsdesk-ce/internal/config"
	"github.com/opsdesk-io/opsdesk-ce/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "opsdesk",
	Short:   "OpsDesk SLA compliance engine",
	Long:    "OpsDesk runs the SLA compliance engine for an ITSM ticketing backend:\npolicy resolution, breach detection, escalation and monthly compliance rollups.",
	Version: version.Full(),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the admin API",
	RunE:  runServe,
}

var sweepCmd = &cobra.Command{
	Use:       "sweep [breach|warning|escalation|aggregate]",
	Short:     "Run one sweep immediately and exit",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"breach", "warning", "escalation", "aggregate"},
	RunE:      runSweep,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      app.API.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Printf("opsdesk: admin API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Printf("opsdesk: scheduler starting")
		errCh <- app.Scheduler.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Printf("opsdesk: %v", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("opsdesk: http shutdown: %v", err)
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	ctx := cmd.Context()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	switch args[0] {
	case "breach":
		stats, err := app.Detector.Sweep(ctx)
		if err != nil {
			return err
		}
		logger.Printf("opsdesk: breach sweep scanned %d tickets, %d response + %d resolution breaches",
			stats.Scanned, stats.ResponseBreaches, stats.ResolutionBreaches)
	case "warning":
		notified, err := app.Detector.SweepWarnings(ctx, cfg.SLA.WarningWindow)
		if err != nil {
			return err
		}
		logger.Printf("opsdesk: warning sweep notified %d tickets", notified)
	case "escalation":
		stats, err := app.Ladder.Sweep(ctx)
		if err != nil {
			return err
		}
		logger.Printf("opsdesk: escalation sweep fired %d escalations", stats.Escalations)
	case "aggregate":
		processed, err := app.Aggregator.Run(ctx)
		if err != nil {
			return err
		}
		logger.Printf("opsdesk: aggregated %d organizations", processed)
	default:
		return fmt.Errorf("unknown sweep %q", args[0])
	}
	return nil
}

func openCache(ctx context.Context, cfg *config.Config, logger *log.Logger) *cache.Cache {
	if !cfg.Redis.Enabled {
		return nil
	}
	c, err := cache.New(ctx, cache.Config{
		Addr:       cfg.Redis.Addr(),
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		KeyPrefix:  cfg.App.Name,
		DefaultTTL: time.Hour,
	})
	if err != nil {
		// Best effort: the engine runs fine without a cache.
		logger.Printf("opsdesk: cache unavailable: %v", err)
		return nil
	}
	return c
}
