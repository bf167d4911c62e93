package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/i474232898/solar-data-aggregation/internal/poller"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a single collection cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 4*cfg.HTTPTimeout)
		defer cancel()

		p, err := buildPipeline(ctx, cfg, appLogger)
		if err != nil {
			return err
		}
		defer p.Close()

		poll := poller.New(p.service, cfg.PollInterval, 0, appLogger.Named("poller"))
		if err := poll.RunOnce(ctx); err != nil {
			return fmt.Errorf("collection cycle failed: %w", err)
		}

		latest, err := p.store.LatestReading(ctx)
		if err != nil {
			return fmt.Errorf("reading back latest: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Collected: %.0f W at %s\n", latest.CurrentPowerW, latest.ObservedAt.In(p.zone).Format("2006-01-02 15:04:05 MST"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
}
