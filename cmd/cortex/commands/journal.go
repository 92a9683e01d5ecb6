package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cortexos/cortex-go/internal/config"
	"github.com/cortexos/cortex-go/internal/infrastructure/eventsourcing"
	"github.com/cortexos/cortex-go/internal/shared"
)

// Journal command flags
var (
	journalLimit  int
	journalOffset int
	journalTypes  []string
	journalOutput string
)

// JournalCmd is the parent command for journal inspection.
var JournalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Event journal commands",
	Long:  `Commands for inspecting the SQLite event journal.`,
}

// openJournal opens the journal at the configured database path.
func openJournal() (*eventsourcing.Journal, error) {
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return nil, err
	}
	return eventsourcing.NewJournal(eventsourcing.JournalConfig{
		DatabasePath: cfg.Journal.DatabasePath,
	})
}

// journalTailCmd lists recent journal entries.
var journalTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "List journal entries",
	Long:  `List journaled events, oldest first, with optional type filters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		journal, err := openJournal()
		if err != nil {
			return err
		}
		defer journal.Close()

		query := eventsourcing.Query{
			Limit:  journalLimit,
			Offset: journalOffset,
		}
		for _, t := range journalTypes {
			query.EventTypes = append(query.EventTypes, shared.EventType(t))
		}

		entries, err := journal.Entries(context.Background(), query)
		if err != nil {
			return err
		}

		if journalOutput == "json" {
			printJSON(entries)
			return nil
		}
		if len(entries) == 0 {
			fmt.Println("No journal entries")
			return nil
		}
		for _, entry := range entries {
			timestamp := time.UnixMilli(entry.Timestamp).Format(time.RFC3339)
			fmt.Printf("%s  %-20s %s\n", timestamp, entry.Type, string(entry.Payload))
		}
		return nil
	},
}

// journalStatsCmd prints event counts.
var journalStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show journal statistics",
	Long:  `Show total and per-type event counts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		journal, err := openJournal()
		if err != nil {
			return err
		}
		defer journal.Close()

		ctx := context.Background()
		total, err := journal.Count(ctx)
		if err != nil {
			return err
		}
		byType, err := journal.CountByType(ctx)
		if err != nil {
			return err
		}

		if journalOutput == "json" {
			printJSON(map[string]interface{}{
				"total":  total,
				"byType": byType,
			})
			return nil
		}
		fmt.Printf("Total events: %d\n", total)
		for eventType, count := range byType {
			fmt.Printf("  %-20s %d\n", eventType, count)
		}
		return nil
	},
}

func init() {
	JournalCmd.PersistentFlags().StringVarP(&journalOutput, "output", "o", "text", "Output format (text|json)")

	journalTailCmd.Flags().IntVarP(&journalLimit, "limit", "l", 50, "Maximum entries")
	journalTailCmd.Flags().IntVar(&journalOffset, "offset", 0, "Entries to skip")
	journalTailCmd.Flags().StringSliceVarP(&journalTypes, "type", "t", nil, "Filter by event type")

	JournalCmd.AddCommand(journalTailCmd)
	JournalCmd.AddCommand(journalStatsCmd)
}
