package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/okian/trending/internal/testevents"
	"github.com/okian/trending/pkg/logger"
)

func newLoadCmd(root *rootOptions) *cobra.Command {
	cfg := &testevents.Config{}
	var logLevel string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Submit synthetic events concurrently and verify the ranking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithOutput(cmd.ErrOrStderr())); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			if err := logger.SetLevelString(logLevel); err != nil {
				return err
			}
			cfg.BaseURL, cfg.Timeout = root.url, root.timeout

			stats, err := testevents.Run(cmd.Context(), cfg, logger.Named("load"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "submitted %d events over %d items in %s\n",
				stats.EventsSubmitted, stats.ItemsTouched, stats.Duration)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&cfg.NumEvents, "events", testevents.DefaultNumEvents, "number of events to submit")
	f.IntVar(&cfg.NumItems, "items", testevents.DefaultNumItems, "size of the item pool")
	f.DurationVar(&cfg.MaxAge, "max-age", testevents.DefaultMaxAge, "spread event times over this window")
	f.IntVar(&cfg.TopN, "top", testevents.DefaultTopN, "trending entries to verify")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*2, "concurrent requests")
	f.DurationVar(&cfg.Settle, "settle", testevents.DefaultSettle, "max wait for async ingestion to drain")
	f.Uint64Var(&cfg.Seed, "seed", 0, "generator seed (0 = random)")
	f.StringVar(&cfg.OutputFile, "output", "", "write generated events to this JSON file")
	f.BoolVar(&cfg.Verbose, "verbose", false, "log individual failures and the top items")
	f.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	return cmd
}
