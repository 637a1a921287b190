package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/testherd/testherd/internal/core"
)

var submitRepoURL string

var submitCmd = &cobra.Command{
	Use:   "submit <commit-id>",
	Short: "Queues a commit for testing",
	Long: `Queues a commit for testing without waiting for the observer to notice it.

Examples:
  herd-cli submit 3f2a91c7 --repo https://github.com/acme/service.git`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		job, err := newAPIClient(dispatcherURL).submit(ctx, core.CommitNotification{
			CommitID: args[0],
			RepoURL:  submitRepoURL,
		})
		if err != nil {
			return fmt.Errorf("failed to queue commit: %w", err)
		}

		// A redelivered commit comes back without a fresh job.
		if job.ID == "" {
			fmt.Printf("commit %s is already queued\n", args[0])
			return nil
		}
		fmt.Printf("queued commit %s as job %s (sequence %d, attempt %d)\n",
			job.Commit.ID, job.ID, job.Commit.Sequence, job.Attempt)
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	submitCmd.Flags().StringVar(&submitRepoURL, "repo", "", "Clone URL of the repository the commit belongs to")
	_ = submitCmd.MarkFlagRequired("repo")
	rootCmd.AddCommand(submitCmd)
}
