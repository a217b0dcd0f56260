package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raka/paceline/pkg/ingest"
	"github.com/raka/paceline/pkg/store"
)

var syncForce bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull activities from the Strava API into the local database",
	Long: `Fetch activities and store them locally. The default run is incremental
and skips activities already present; --force re-fetches everything.

The token file must be seeded once with an authorized refresh token.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "re-fetch and rewrite all activities")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, l, zl, err := loadConfigAndLogger(true)
	if err != nil {
		return err
	}
	defer l.Close()

	if cfg.Strava.ClientID == "" || cfg.Strava.ClientSecret == "" {
		return fmt.Errorf("strava client_id and client_secret are required for sync")
	}

	st, err := store.OpenReadWrite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	auth, err := ingest.NewAuthenticator(cfg.Strava.ClientID, cfg.Strava.ClientSecret,
		"", cfg.Strava.TokenPath, zl)
	if err != nil {
		return err
	}

	client, err := ingest.NewClient("", auth, zl)
	if err != nil {
		return err
	}

	syncer, err := ingest.NewSyncer(client, st, zl)
	if err != nil {
		return err
	}

	result, err := syncer.Sync(context.Background(), syncForce)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sync complete: %d added, %d updated\n", result.Added, result.Updated)
	return nil
}
