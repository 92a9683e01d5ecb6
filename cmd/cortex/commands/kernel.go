package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	kerneldomain "github.com/cortexos/cortex-go/internal/domain/kernel"
	cortex "github.com/cortexos/cortex-go/pkg/cortex"
)

// Kernel command flags
var (
	kernelOutput         string
	kernelOnlyPrimitives []string
	kernelCallPrimitive  string
	kernelCallInput      string
)

// KernelCmd is the parent command for kernel operations.
var KernelCmd = &cobra.Command{
	Use:   "kernel",
	Short: "Kernel dispatch table commands",
	Long:  `Commands for inspecting and exercising the kernel dispatch table.`,
}

// kernelTableCmd prints the static primitive table.
var kernelTableCmd = &cobra.Command{
	Use:   "table",
	Short: "Show the primitive table",
	Long:  `Show every primitive with its layer and dependencies.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		type row struct {
			ID           cortex.PrimitiveID   `json:"id"`
			Layer        int                  `json:"layer"`
			LayerName    string               `json:"layerName"`
			Dependencies []cortex.PrimitiveID `json:"dependencies,omitempty"`
		}

		rows := make([]row, 0, len(cortex.AllPrimitives()))
		for _, id := range cortex.AllPrimitives() {
			layer, _ := kerneldomain.LayerOf(id)
			rows = append(rows, row{
				ID:           id,
				Layer:        layer,
				LayerName:    kerneldomain.LayerName(layer),
				Dependencies: kerneldomain.DependenciesOf(id),
			})
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Layer != rows[j].Layer {
				return rows[i].Layer < rows[j].Layer
			}
			return rows[i].ID < rows[j].ID
		})

		if kernelOutput == "json" {
			printJSON(rows)
			return nil
		}

		current := -1
		for _, r := range rows {
			if r.Layer != current {
				current = r.Layer
				fmt.Printf("Layer %d (%s)\n", r.Layer, r.LayerName)
			}
			deps := "-"
			if len(r.Dependencies) > 0 {
				parts := make([]string, len(r.Dependencies))
				for i, d := range r.Dependencies {
					parts[i] = string(d)
				}
				deps = strings.Join(parts, ", ")
			}
			fmt.Printf("  %-12s deps: %s\n", r.ID, deps)
		}
		return nil
	},
}

// kernelValidateCmd validates dependencies of the registered set.
var kernelValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate primitive dependencies",
	Long: `Register primitives and check that every dependency is satisfied.

With --primitives, only the listed primitives are registered, which shows
the missing dependencies a partial deployment would have.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := LoadSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		if len(kernelOnlyPrimitives) > 0 {
			for _, name := range kernelOnlyPrimitives {
				id := cortex.PrimitiveID(strings.TrimSpace(name))
				if sys.Registry().Has(id) {
					continue
				}
				err := sys.Registry().Register(id, func(ctx context.Context, input interface{}) (interface{}, error) {
					return input, nil
				})
				if err != nil {
					return err
				}
			}
		} else if err := registerEchoHandlers(sys); err != nil {
			return err
		}

		result := sys.Registry().ValidateDependencies()

		if kernelOutput == "json" {
			printJSON(result)
		} else if result.Valid {
			fmt.Println("✓ All dependencies satisfied")
		} else {
			for _, missing := range result.MissingDependencies {
				fmt.Printf("✗ %s requires %s (not registered)\n", missing.PrimitiveID, missing.DependsOn)
			}
			for _, cycle := range result.CircularDependencies {
				parts := make([]string, len(cycle))
				for i, id := range cycle {
					parts[i] = string(id)
				}
				fmt.Printf("✗ cycle: %s\n", strings.Join(parts, " -> "))
			}
		}

		if !result.Valid {
			return fmt.Errorf("dependency validation failed")
		}
		return nil
	},
}

// kernelOrderCmd prints the initialization order.
var kernelOrderCmd = &cobra.Command{
	Use:   "order",
	Short: "Show initialization order",
	Long:  `Show the dependency-respecting initialization order of registered primitives.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := LoadSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		if err := registerEchoHandlers(sys); err != nil {
			return err
		}

		order := sys.Registry().InitializationOrder()

		if kernelOutput == "json" {
			printJSON(order)
			return nil
		}
		for i, id := range order {
			fmt.Printf("%2d. %s\n", i+1, id)
		}
		return nil
	},
}

// kernelStatsCmd prints per-layer and registry-wide stats.
var kernelStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show registry statistics",
	Long:  `Show per-layer registration counts and registry-wide call totals.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := LoadSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		if err := registerEchoHandlers(sys); err != nil {
			return err
		}

		stats := map[string]interface{}{
			"registry": sys.Registry().Stats(),
			"layers":   sys.Registry().LayerStats(),
			"budget":   sys.Registry().Budget(),
		}

		if kernelOutput == "json" {
			printJSON(stats)
			return nil
		}
		for _, layer := range sys.Registry().LayerStats() {
			fmt.Printf("Layer %d (%s): %d registered, %d enabled\n",
				layer.Layer, layer.Name, layer.Registered, layer.Enabled)
		}
		registry := sys.Registry().Stats()
		fmt.Printf("\nTotal: %d registered, %d calls, %d errors\n",
			registry.Registered, registry.TotalCalls, registry.TotalErrors)
		return nil
	},
}

// kernelCallCmd dispatches a single primitive with a string input.
var kernelCallCmd = &cobra.Command{
	Use:   "call",
	Short: "Dispatch a primitive",
	Long:  `Dispatch a primitive through the kernel with a string input.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := LoadSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		if err := registerEchoHandlers(sys); err != nil {
			return err
		}

		id := cortex.PrimitiveID(kernelCallPrimitive)
		output, err := sys.Call(context.Background(), id, kernelCallInput)
		if err != nil {
			return err
		}

		printJSON(map[string]interface{}{
			"primitive": id,
			"output":    output,
			"budget":    sys.Registry().Budget(),
		})
		return nil
	},
}

func init() {
	KernelCmd.PersistentFlags().StringVarP(&kernelOutput, "output", "o", "text", "Output format (text|json)")

	kernelValidateCmd.Flags().StringSliceVarP(&kernelOnlyPrimitives, "primitives", "p", nil, "Only register the listed primitives")

	kernelCallCmd.Flags().StringVarP(&kernelCallPrimitive, "primitive", "p", "", "Primitive id (required)")
	kernelCallCmd.Flags().StringVarP(&kernelCallInput, "input", "i", "", "Input string")
	kernelCallCmd.MarkFlagRequired("primitive")

	KernelCmd.AddCommand(kernelTableCmd)
	KernelCmd.AddCommand(kernelValidateCmd)
	KernelCmd.AddCommand(kernelOrderCmd)
	KernelCmd.AddCommand(kernelStatsCmd)
	KernelCmd.AddCommand(kernelCallCmd)
}
