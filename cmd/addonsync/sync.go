package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var noProgress bool

var syncCmd = &cobra.Command{
	Use:   "sync [addon-url...]",
	Short: "Sync the configured addons, or the given addon pages, once",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Ctrl+C cancels the whole batch; the AddOns folder is left untouched
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := bootstrap(ctx, true)
		if err != nil {
			return err
		}
		defer svc.close()

		addons := args
		if len(addons) == 0 {
			addons = svc.app.Config.Addons
		}

		bar := newProgressBar(os.Stdout, !noProgress)
		started := time.Now()

		changed, err := svc.pipeline.Run(ctx, addons, bar.Update)
		bar.Finish()
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		svc.app.Logger.Info("Synced %d addons (%d updated) in %s", len(addons), changed, time.Since(started).Truncate(time.Millisecond))
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not draw the progress bar")
}
