package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sjkallio/kirjuri/types"
)

var historyOutput string

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history <connection-id> <resource-id>",
	Short: "Show the full state trail of one resource",
	Long: `Show every recorded state of one resource across all snapshots,
oldest first: when it appeared, what changed, and when it went away.
State rows are never deleted, this is the permanent audit trail.`,
	Example: `  kirjuri history prod-aws i-0abc123
  kirjuri history prod-aws vol-9def456 -o json`,
	Args: cobra.ExactArgs(2),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "Output format: table, json")
}

func runHistory(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	states, err := rt.orch.ResourceHistory(args[0], args[1])
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no history for resource %s", args[1])
	}

	if historyOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(states)
	}
	return printHistoryTable(states)
}

func printHistoryTable(states []types.ResourceState) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RECORDED\tSNAPSHOT\tACTION\tCOST\tCHANGES")

	for _, st := range states {
		changes := ""
		if st.Changes.Cost {
			changes += "cost "
		}
		if st.Changes.Status {
			changes += "status "
		}
		if st.Changes.Config {
			changes += "config"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n",
			st.RecordedAt.Format("2006-01-02 15:04:05"), st.SnapshotID, st.StateAction, st.Cost, changes)
	}
	return w.Flush()
}
