package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sjkallio/kirjuri/orchestrator"
)

var syncOutput string

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync [connection-id]",
	Short: "Run one sync for a connection, or all connections",
	Long: `Run one full synchronization: discover scopes, collect inventory and
billing, reconcile them, and persist an immutable snapshot.

With a connection id, syncs only that connection. Without one, syncs
every configured connection concurrently.`,
	Example: `  kirjuri sync                # Sync all connections
  kirjuri sync prod-aws       # Sync one connection
  kirjuri sync -o json        # Machine-readable summaries`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVarP(&syncOutput, "output", "o", "table", "Output format: table, json")
}

func runSync(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var summaries []*orchestrator.SyncSummary
	var syncErr error
	if len(args) == 1 {
		var summary *orchestrator.SyncSummary
		summary, syncErr = rt.orch.TriggerSync(ctx, args[0])
		if summary != nil {
			summaries = append(summaries, summary)
		}
	} else {
		summaries, syncErr = rt.orch.SyncAll(ctx)
	}

	if err := printSummaries(summaries); err != nil {
		return err
	}
	return syncErr
}

func printSummaries(summaries []*orchestrator.SyncSummary) error {
	if syncOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	for _, s := range summaries {
		if s == nil {
			continue
		}
		snap := s.Snapshot
		fmt.Printf("%-20s %-8s created=%d updated=%d deleted=%d unchanged=%d cost=%.2f",
			snap.ConnectionID, snap.Status,
			snap.Counts.Created, snap.Counts.Updated, snap.Counts.Deleted, snap.Counts.Unchanged,
			snap.TotalCost)
		if snap.BillingDegraded {
			fmt.Print(" [billing degraded]")
		}
		if len(snap.ScopeErrors) > 0 {
			fmt.Printf(" [%d scope errors]", len(snap.ScopeErrors))
		}
		if s.Unrecognized > 0 {
			fmt.Printf(" [%d unrecognized]", s.Unrecognized)
		}
		if snap.Error != "" {
			fmt.Printf(" error=%s", snap.Error)
		}
		fmt.Println()
	}
	return nil
}
