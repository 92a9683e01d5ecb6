package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	cortex "github.com/cortexos/cortex-go/pkg/cortex"
)

// Router command flags
var (
	routerOutput       string
	cascadeTask        string
	cascadeConfidence  float64
	cascadeDepth       int
	cascadeCaps        []string
	cascadeMaxCost     float64
	cascadePreferModel string
	cascadeRecord      bool
	routeModality      string
)

// RouterCmd is the parent command for router operations.
var RouterCmd = &cobra.Command{
	Use:   "router",
	Short: "Cascade router commands",
	Long:  `Commands for inspecting tiers and routing requests through the cascade.`,
}

// routerTiersCmd lists the registered tiers.
var routerTiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "List model tiers",
	Long:  `List the registered model tiers in cost order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := LoadSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		tiers := sys.Router().Tiers()
		if routerOutput == "json" {
			printJSON(tiers)
			return nil
		}
		for _, tier := range tiers {
			fmt.Printf("%-14s %-18s threshold %.2f  cost/token %.7f  caps %v\n",
				tier.ID, tier.Model, tier.ConfidenceThreshold, tier.CostPerToken, tier.Capabilities)
		}
		return nil
	},
}

// routerModalitiesCmd lists the modality routes.
var routerModalitiesCmd = &cobra.Command{
	Use:   "modalities",
	Short: "List modality routes",
	Long:  `List the per-modality model preferences.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := LoadSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		routes := sys.Router().ModalityRoutes()
		if routerOutput == "json" {
			printJSON(routes)
			return nil
		}
		for _, route := range routes {
			fallback := route.FallbackModel
			if fallback == "" {
				fallback = "-"
			}
			fmt.Printf("%-16s preferred %-20s fallback %s\n", route.Modality, route.PreferredModel, fallback)
		}
		return nil
	},
}

// routerCascadeCmd routes one request through the cascade.
var routerCascadeCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Route a request",
	Long: `Route a request through the confidence-gated cascade and print the
decision. With --record, a successful outcome is recorded immediately so the
route slot is released and the tier threshold adapts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := LoadSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		req := cortex.CascadeRequest{
			Task:  cascadeTask,
			Depth: cascadeDepth,
		}
		if cmd.Flags().Changed("confidence") {
			confidence := cascadeConfidence
			req.Confidence = &confidence
		}
		if len(cascadeCaps) > 0 || cascadeMaxCost > 0 || cascadePreferModel != "" {
			req.Constraints = &cortex.RouteConstraints{
				RequiredCapabilities: cascadeCaps,
				MaxCost:              cascadeMaxCost,
				PreferredModel:       cascadePreferModel,
			}
		}

		decision, err := sys.Cascade(req)
		if err != nil {
			return err
		}

		if cascadeRecord {
			sys.RecordOutcome(decision.ID, cortex.Outcome{Success: true, Quality: 0.8})
		}

		if routerOutput == "json" {
			printJSON(decision)
			return nil
		}
		fmt.Printf("Decision %s\n", decision.ID)
		fmt.Printf("  Tier:       %s (%s)\n", decision.Tier.ID, decision.Tier.Model)
		fmt.Printf("  Confidence: %.2f\n", decision.Confidence)
		fmt.Printf("  Reasoning:  %s\n", decision.Reasoning)
		return nil
	},
}

// routerRouteCmd routes by modality.
var routerRouteCmd = &cobra.Command{
	Use:   "route",
	Short: "Route by modality",
	Long:  `Route a request by input modality, pinning to the modality's preferred model when a tier backs it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := LoadSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		decision, err := sys.Router().Route(cortex.Modality(routeModality), nil)
		if err != nil {
			return err
		}

		if routerOutput == "json" {
			printJSON(decision)
			return nil
		}
		fmt.Printf("Decision %s\n", decision.ID)
		fmt.Printf("  Modality:   %s\n", decision.Modality)
		fmt.Printf("  Tier:       %s (%s)\n", decision.Tier.ID, decision.Tier.Model)
		fmt.Printf("  Confidence: %.2f\n", decision.Confidence)
		fmt.Printf("  Reasoning:  %s\n", decision.Reasoning)
		return nil
	},
}

// routerStatsCmd prints router counters.
var routerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show router statistics",
	Long:  `Show route, escalation, and tier usage counters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := LoadSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		stats := sys.Router().Stats()
		if routerOutput == "json" {
			printJSON(stats)
			return nil
		}
		fmt.Printf("Routes:      %d\n", stats.TotalRoutes)
		fmt.Printf("Escalations: %d\n", stats.TotalEscalations)
		fmt.Printf("Active:      %d\n", stats.ActiveRoutes)
		for id, count := range stats.TierUsage {
			fmt.Printf("  %s: %d\n", id, count)
		}
		return nil
	},
}

func init() {
	RouterCmd.PersistentFlags().StringVarP(&routerOutput, "output", "o", "text", "Output format (text|json)")

	routerCascadeCmd.Flags().StringVarP(&cascadeTask, "task", "t", "", "Task description")
	routerCascadeCmd.Flags().Float64VarP(&cascadeConfidence, "confidence", "c", 0, "Request confidence in [0,1]")
	routerCascadeCmd.Flags().IntVarP(&cascadeDepth, "depth", "d", 0, "Cascade depth")
	routerCascadeCmd.Flags().StringSliceVar(&cascadeCaps, "capabilities", nil, "Required tier capabilities")
	routerCascadeCmd.Flags().Float64Var(&cascadeMaxCost, "max-cost", 0, "Maximum cost per token")
	routerCascadeCmd.Flags().StringVar(&cascadePreferModel, "prefer-model", "", "Preferred backing model")
	routerCascadeCmd.Flags().BoolVar(&cascadeRecord, "record", false, "Record a successful outcome immediately")

	routerRouteCmd.Flags().StringVarP(&routeModality, "modality", "m", "text", "Input modality")

	RouterCmd.AddCommand(routerTiersCmd)
	RouterCmd.AddCommand(routerModalitiesCmd)
	RouterCmd.AddCommand(routerCascadeCmd)
	RouterCmd.AddCommand(routerRouteCmd)
	RouterCmd.AddCommand(routerStatsCmd)
}
