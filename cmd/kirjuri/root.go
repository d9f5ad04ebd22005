package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sjkallio/kirjuri/config"
	"github.com/sjkallio/kirjuri/journal"
	"github.com/sjkallio/kirjuri/orchestrator"
	"github.com/sjkallio/kirjuri/storage"

	// Provider adapters register themselves on import
	_ "github.com/sjkallio/kirjuri/providers/aws"
	_ "github.com/sjkallio/kirjuri/providers/azure"
)

var (
	version    = "0.1.0"
	configPath string

	rootCmd = &cobra.Command{
		Use:   "kirjuri",
		Short: "Cloud Cost Scribe",
		Long: `Kirjuri - Cloud Cost Scribe

Kirjuri reconciles what your cloud providers say exists against what
they bill you for. Every sync produces an immutable snapshot: live
resources with their real costs, deleted resources that still bill,
and billing rows nothing can explain.

Billing is the source of truth. If it bills, it exists.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.SetVersionTemplate(`Kirjuri {{.Version}} - Cloud Cost Scribe
`)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "kirjuri.yaml", "Path to config file")
}

// runtime bundles the open handles every command needs.
type runtime struct {
	cfg   *config.Config
	store *storage.Store
	jnl   *journal.Journal
	orch  *orchestrator.Orchestrator
}

// openRuntime loads config and opens storage and journal.
func openRuntime() (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	jnl, err := journal.Open(cfg.JournalDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	orch, err := orchestrator.New(cfg, store, jnl)
	if err != nil {
		jnl.Close()
		store.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, store: store, jnl: jnl, orch: orch}, nil
}

func (r *runtime) close() {
	_ = r.jnl.Close()
	_ = r.store.Close()
}
