package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/datallboy/addonsync/internal/metadata"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or maintain the SmartUpdate cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached addon archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := bootstrap(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer svc.close()

		entries := svc.cache.Entries()
		if len(entries) == 0 {
			fmt.Println("Cache is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ADDON\tFILE\tCHANGED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Addon, e.FileName, humanize.Time(e.ChangedAt))
		}
		return w.Flush()
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop cache entries for addons no longer configured",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := bootstrap(ctx, false)
		if err != nil {
			return err
		}
		defer svc.close()

		keep := make([]string, 0, len(svc.app.Config.Addons))
		for _, url := range svc.app.Config.Addons {
			name, err := metadata.AddonName(url)
			if err != nil {
				return err
			}
			keep = append(keep, name)
		}

		removed, err := svc.cache.Prune(keep)
		if err != nil {
			return err
		}
		if err := svc.cache.Save(ctx); err != nil {
			return err
		}

		for _, name := range removed {
			fmt.Printf("Pruned %s\n", name)
		}
		fmt.Printf("%d entries removed.\n", len(removed))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every cached archive; the next sync downloads everything",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := bootstrap(ctx, false)
		if err != nil {
			return err
		}
		defer svc.close()

		if err := svc.cache.Clear(); err != nil {
			return err
		}
		if err := svc.cache.Save(ctx); err != nil {
			return err
		}
		fmt.Println("Cache cleared.")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
