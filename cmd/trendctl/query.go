package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTopCmd(root *rootOptions) *cobra.Command {
	var (
		count  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the trending list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := root.client().Trending(cmd.Context(), count)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(entries)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tITEM\tSCORE")
			for i, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%.6f\n", i+1, e.ItemID, e.Score)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 10, "number of items")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRankCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rank ITEM_ID",
		Short: "Show one item's rank and score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.client().Rank(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "#%d %s %.6f\n", e.Rank, e.ItemID, e.Score)
			return nil
		},
	}
}
