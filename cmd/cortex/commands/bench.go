package commands

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	cortex "github.com/cortexos/cortex-go/pkg/cortex"
)

// Bench command flags
var (
	benchIterations  int
	benchConcurrency int
	benchOutput      string
	benchPrimitive   string
)

// benchReport summarizes one benchmark run.
type benchReport struct {
	Name        string  `json:"name"`
	Iterations  int     `json:"iterations"`
	Concurrency int     `json:"concurrency"`
	TotalMs     int64   `json:"totalMs"`
	MeanUs      float64 `json:"meanUs"`
	P95Us       float64 `json:"p95Us"`
	MaxUs       float64 `json:"maxUs"`
	OpsPerSec   float64 `json:"opsPerSec"`
}

// BenchCmd is the parent command for benchmarks.
var BenchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run performance benchmarks",
	Long: `Commands for benchmarking kernel dispatch and cascade routing.

Available suites:
  - dispatch: Kernel call overhead with pass-through handlers
  - cascade:  Cascade decision plus outcome recording`,
}

// benchDispatchCmd benchmarks kernel dispatch.
var benchDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Benchmark kernel dispatch",
	Long:  `Benchmark kernel call overhead using a pass-through handler.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := LoadSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		if err := registerEchoHandlers(sys); err != nil {
			return err
		}

		id := cortex.PrimitiveID(benchPrimitive)
		report, err := runBench("dispatch/"+benchPrimitive, func(ctx context.Context) error {
			_, err := sys.Call(ctx, id, "bench")
			return err
		})
		if err != nil {
			return err
		}
		return outputBenchReport(report)
	},
}

// benchCascadeCmd benchmarks cascade routing.
var benchCascadeCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Benchmark cascade routing",
	Long:  `Benchmark a cascade decision followed by an outcome record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := LoadSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		confidence := 0.9
		report, err := runBench("cascade", func(ctx context.Context) error {
			decision, err := sys.Cascade(cortex.CascadeRequest{
				Task:       "bench",
				Confidence: &confidence,
			})
			if err != nil {
				return err
			}
			sys.RecordOutcome(decision.ID, cortex.Outcome{Success: true, Quality: 0.5})
			return nil
		})
		if err != nil {
			return err
		}
		return outputBenchReport(report)
	},
}

// runBench runs op benchIterations times across benchConcurrency workers and
// aggregates latencies.
func runBench(name string, op func(context.Context) error) (*benchReport, error) {
	if benchIterations < 1 {
		benchIterations = 1
	}
	if benchConcurrency < 1 {
		benchConcurrency = 1
	}

	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, benchIterations)
	)

	group, ctx := errgroup.WithContext(context.Background())
	group.SetLimit(benchConcurrency)

	start := time.Now()
	for i := 0; i < benchIterations; i++ {
		group.Go(func() error {
			opStart := time.Now()
			if err := op(ctx); err != nil {
				return err
			}
			elapsed := time.Since(opStart)

			mu.Lock()
			latencies = append(latencies, elapsed)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	total := time.Since(start)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	p95Index := len(latencies) * 95 / 100
	if p95Index >= len(latencies) {
		p95Index = len(latencies) - 1
	}
	p95 := latencies[p95Index]

	return &benchReport{
		Name:        name,
		Iterations:  benchIterations,
		Concurrency: benchConcurrency,
		TotalMs:     total.Milliseconds(),
		MeanUs:      float64(sum.Microseconds()) / float64(len(latencies)),
		P95Us:       float64(p95.Microseconds()),
		MaxUs:       float64(latencies[len(latencies)-1].Microseconds()),
		OpsPerSec:   float64(len(latencies)) / total.Seconds(),
	}, nil
}

// outputBenchReport prints the report in the requested format.
func outputBenchReport(report *benchReport) error {
	if benchOutput == "json" {
		printJSON(report)
		return nil
	}
	fmt.Printf("%s: %d iterations, concurrency %d\n", report.Name, report.Iterations, report.Concurrency)
	fmt.Printf("  mean %.1fus  p95 %.1fus  max %.1fus  %.0f ops/sec\n",
		report.MeanUs, report.P95Us, report.MaxUs, report.OpsPerSec)
	return nil
}

func init() {
	addBenchFlags := func(cmd *cobra.Command) {
		cmd.Flags().IntVarP(&benchIterations, "iterations", "i", 1000, "Number of iterations")
		cmd.Flags().IntVarP(&benchConcurrency, "concurrency", "c", 8, "Concurrent workers")
		cmd.Flags().StringVarP(&benchOutput, "output", "o", "text", "Output format (text|json)")
	}

	addBenchFlags(benchDispatchCmd)
	addBenchFlags(benchCascadeCmd)
	benchDispatchCmd.Flags().StringVarP(&benchPrimitive, "primitive", "p", "tokenize", "Primitive to dispatch")

	BenchCmd.AddCommand(benchDispatchCmd)
	BenchCmd.AddCommand(benchCascadeCmd)
}
