package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/trending/internal/testevents"
)

const defaultURL = "http://localhost:8080"

type rootOptions struct {
	url     string
	timeout time.Duration
}

func (o *rootOptions) client() *testevents.Client {
	return testevents.NewClient(o.url, o.timeout)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "trendctl",
		Short:         "Query and feed a trending service",
		Long:          "trendctl records events, reads the trending list and generates synthetic load against a trending service.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.url, "url", defaultURL, "base URL of the trending service")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", testevents.DefaultTimeout, "HTTP request timeout")

	cmd.AddCommand(
		newIngestCmd(opts),
		newTopCmd(opts),
		newRankCmd(opts),
		newLoadCmd(opts),
	)
	return cmd
}
