package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/testherd/testherd/internal/core"
)

var resultsJSON bool

// Color definitions
var (
	passColor  = color.New(color.FgGreen)
	failColor  = color.New(color.FgRed)
	errColor   = color.New(color.FgYellow)
	dimColor   = color.New(color.FgHiBlack)
	titleColor = color.New(color.FgCyan, color.Bold)
)

var resultsCmd = &cobra.Command{
	Use:   "results [commit-id]",
	Short: "Shows test results for a commit, or the newest results when no commit is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		commitID := ""
		if len(args) == 1 {
			commitID = args[0]
		}

		rs, err := newAPIClient(dispatcherURL).results(ctx, commitID)
		if err != nil {
			return fmt.Errorf("failed to retrieve results: %w", err)
		}

		if resultsJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(rs)
		}

		printResultSet(rs)
		return nil
	},
}

func printResultSet(rs *core.ResultSet) {
	titleColor.Printf("commit %s", rs.CommitID)
	dimColor.Printf("  (sequence %d, produced %s)\n", rs.Sequence, rs.ProducedAt.Format(time.RFC822))
	fmt.Println()

	for _, r := range rs.Results {
		switch r.Kind {
		case core.ResultPass:
			passColor.Printf("  PASS  ")
		case core.ResultFail:
			failColor.Printf("  FAIL  ")
		case core.ResultError:
			errColor.Printf("  ERROR ")
		}
		fmt.Println(r.TestName)
		for _, reason := range r.Reasons {
			dimColor.Printf("        %s\n", reason)
		}
	}

	fmt.Println()
	fmt.Println(rs.Headline())
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	resultsCmd.Flags().BoolVar(&resultsJSON, "json", false, "Output results as JSON")
	rootCmd.AddCommand(resultsCmd)
}
