package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sjkallio/kirjuri/storage"
	"github.com/sjkallio/kirjuri/types"
)

var (
	resourcesOutput string
	resourcesType   string
)

// resourcesCmd represents the resources command
var resourcesCmd = &cobra.Command{
	Use:   "resources <connection-id>",
	Short: "Show the current reconciled resources of a connection",
	Long: `Show every resource the latest syncs know about for a connection:
live resources with their reconciled costs, aggregated children with
their parents, and zombies that are gone from inventory but still bill.`,
	Example: `  kirjuri resources prod-aws               # All current resources
  kirjuri resources prod-aws --type server # Only servers
  kirjuri resources prod-aws -o json       # Machine-readable`,
	Args: cobra.ExactArgs(1),
	RunE: runResources,
}

func init() {
	rootCmd.AddCommand(resourcesCmd)
	resourcesCmd.Flags().StringVarP(&resourcesOutput, "output", "o", "table", "Output format: table, json")
	resourcesCmd.Flags().StringVarP(&resourcesType, "type", "t", "", "Filter by resource type")
}

func runResources(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	resources, err := rt.orch.CurrentResources(args[0])
	if err != nil {
		return err
	}

	if resourcesType != "" {
		filtered := resources[:0]
		for _, r := range resources {
			if string(r.Type) == resourcesType {
				filtered = append(filtered, r)
			}
		}
		resources = filtered
	}

	if resourcesOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resources)
	}
	return printResourceTable(resources)
}

func printResourceTable(resources []storage.MaterializedResource) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tTYPE\tREGION\tSTATUS\tCOST\tPARENT\tFLAGS")

	var total float64
	for _, r := range resources {
		flags := ""
		if r.Status == types.StatusDeletedBilled {
			flags += "zombie "
		}
		if r.LowConfidence {
			flags += "low-confidence"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
			r.ProviderResourceID, r.Type, r.Region, r.Status, r.Cost, r.ParentResourceID, flags)
		if r.ParentResourceID == "" {
			total += r.Cost
		}
	}

	fmt.Fprintf(w, "\nTOTAL\t\t\t\t%.2f\t\t\n", total)
	return w.Flush()
}
