package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mpetitjean/newsrack/internal/config"
	"github.com/mpetitjean/newsrack/internal/feeds"
	"github.com/mpetitjean/newsrack/internal/ingest"
	"github.com/mpetitjean/newsrack/internal/instapaper"
	"github.com/mpetitjean/newsrack/internal/retain"
	"github.com/mpetitjean/newsrack/internal/track"
	"github.com/mpetitjean/newsrack/pkg/logging"
)

var dryRun bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one full sync cycle",
	Long: `Sync performs one cycle: fetch the configured feeds, save unseen
articles to Instapaper, then retire tracked bookmarks per the retention
policy and persist the updated tracking state.

Per-article failures are logged and skipped; they retry naturally on the
next run. Only an authentication failure aborts the cycle.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "log decisions without remote changes or state writes")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := logging.Default()
	ctx = logging.WithLogger(ctx, log)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	client := instapaper.New(cfg.Credentials, instapaper.WithTimeout(cfg.HTTPTimeout))
	if err := client.Authenticate(ctx); err != nil {
		// Fatal by design: nothing can proceed without a token, and
		// aborting before any feed or state work keeps the snapshot
		// untouched.
		return err
	}

	snap := track.Load(cfg.StateFile)
	log.Info().Int("tracked", len(snap)).Str("state_file", cfg.StateFile).Msg("Starting sync cycle")

	ingester := ingest.New(client, feeds.NewFetcher(cfg.HTTPTimeout), ingest.Options{
		Delay:  cfg.AddDelay,
		DryRun: dryRun,
	})
	ingester.Run(ctx, cfg.Feeds, snap)

	retainer := retain.New(client, cfg.Policy, retain.Options{DryRun: dryRun})
	next := retainer.Run(ctx, snap)

	if dryRun {
		log.Info().Msg("Dry run: tracking state not written")
		return nil
	}

	if err := track.Save(cfg.StateFile, next); err != nil {
		return err
	}
	log.Info().Int("tracked", len(next)).Msg("Sync cycle complete")
	return nil
}
