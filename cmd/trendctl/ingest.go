package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/okian/trending/internal/testevents"
)

func newIngestCmd(root *rootOptions) *cobra.Command {
	var (
		eventTime int64
		weight    float64
		eventID   string
		genID     bool
	)
	cmd := &cobra.Command{
		Use:   "ingest ITEM_ID",
		Short: "Record one event for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if eventTime == 0 {
				eventTime = time.Now().Unix()
			}
			if genID && eventID == "" {
				eventID = uuid.NewString()
			}
			ack, err := root.client().AddEvent(cmd.Context(), testevents.Event{
				EventID:   eventID,
				ItemID:    args[0],
				EventTime: eventTime,
				Weight:    weight,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", ack.Status, ack.Message)
			return nil
		},
	}
	cmd.Flags().Int64Var(&eventTime, "time", 0, "event time in unix seconds (default now)")
	cmd.Flags().Float64Var(&weight, "weight", 1.0, "event weight")
	cmd.Flags().StringVar(&eventID, "event-id", "", "idempotency key")
	cmd.Flags().BoolVar(&genID, "gen-id", false, "generate a UUID event id when --event-id is empty")
	return cmd
}
