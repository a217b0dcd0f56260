package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raka/paceline/internal/gateway"
	"github.com/raka/paceline/pkg/ingest"
	"github.com/raka/paceline/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat gateway daemon",
	Long: `Run the websocket chat gateway and, when configured, the scheduled
activity sync. The process runs until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, l, zl, err := loadConfigAndLogger(true)
	if err != nil {
		return err
	}
	defer l.Close()

	if !cfg.Gateway.Enabled {
		return fmt.Errorf("gateway is not enabled: set gateway.enabled in %s", cfgFile)
	}

	app, err := newApp(cfg, zl)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.sessions.Start(); err != nil {
		return err
	}
	defer func() {
		if err := app.sessions.Stop(); err != nil {
			zl.Debug().Err(err).Msg("Failed to stop session sweep")
		}
	}()

	server, err := gateway.NewServer(gateway.Config{
		Port:         cfg.Gateway.Port,
		SharedSecret: cfg.Gateway.SharedSecret,
		Sessions:     app.sessions,
		Logger:       zl,
	})
	if err != nil {
		return err
	}

	if err := server.Start(); err != nil {
		return err
	}

	// The scheduled sync writes through its own read-write handle; the
	// agent keeps reading through the read-only one.
	var scheduler *ingest.Scheduler
	var syncStore *store.Store
	if cfg.Strava.SyncSchedule != "" {
		syncStore, err = store.OpenReadWrite(cfg.DBPath)
		if err != nil {
			return err
		}
		defer syncStore.Close()

		auth, err := ingest.NewAuthenticator(cfg.Strava.ClientID, cfg.Strava.ClientSecret,
			"", cfg.Strava.TokenPath, zl)
		if err != nil {
			return err
		}

		client, err := ingest.NewClient("", auth, zl)
		if err != nil {
			return err
		}

		syncer, err := ingest.NewSyncer(client, syncStore, zl)
		if err != nil {
			return err
		}

		scheduler, err = ingest.NewScheduler(cfg.Strava.SyncSchedule, syncer, zl)
		if err != nil {
			return err
		}
		scheduler.Start()
	}

	zl.Info().Int("port", cfg.Gateway.Port).Msg("Paceline daemon running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	zl.Info().Msg("Shutting down")

	if scheduler != nil {
		scheduler.Stop()
	}
	if err := server.Stop(); err != nil {
		return err
	}

	// Give log writers a beat to flush.
	time.Sleep(100 * time.Millisecond)
	return nil
}
