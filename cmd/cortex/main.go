// Package main provides the CLI entry point for cortex-go.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cortexos/cortex-go/cmd/cortex/commands"
	cortex "github.com/cortexos/cortex-go/pkg/cortex"
)

var (
	version = "0.3.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cortex",
	Short: "Cortex - agent kernel and cascade router",
	Long: `Cortex is a kernel substrate for agent systems.

It provides:
  - A dispatch table of layered primitives with dependency validation
  - Concurrency- and timeout-bounded primitive invocation
  - Confidence-gated cascade routing across model tiers
  - Adaptive threshold learning from recorded outcomes
  - A SQLite journal of kernel and routing events`,
	Version: version,
}

// ============================================================================
// Status Command
// ============================================================================

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Long:  `Show the assembled system's registry and router state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := commands.LoadSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		registryStats := sys.Registry().Stats()
		routerStats := sys.Router().Stats()

		status := map[string]interface{}{
			"version":        version,
			"primitives":     len(cortex.AllPrimitives()),
			"registered":     registryStats.Registered,
			"tiers":          len(sys.Router().Tiers()),
			"activeRoutes":   routerStats.ActiveRoutes,
			"journalEnabled": sys.Journal() != nil,
			"maxConcurrency": sys.Registry().Config().MaxConcurrency,
			"callTimeoutMs":  sys.Registry().Config().CallTimeout.Milliseconds(),
		}

		output, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(output))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", "", "Path to YAML config file")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(commands.KernelCmd)
	rootCmd.AddCommand(commands.RouterCmd)
	rootCmd.AddCommand(commands.BenchCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.JournalCmd)
}
