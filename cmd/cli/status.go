package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the current shape of the pipeline",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()

		status, err := newAPIClient(dispatcherURL).status(ctx)
		if err != nil {
			return fmt.Errorf("failed to retrieve pipeline status: %w", err)
		}

		if statusJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(status)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "QUEUED\tACTIVE\tIDLE WORKERS\tBUSY WORKERS")
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\n",
			status.QueuedJobs,
			status.ActiveJobs,
			status.IdleWorkers,
			status.BusyWorkers,
		)
		return w.Flush()
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")
	rootCmd.AddCommand(statusCmd)
}
