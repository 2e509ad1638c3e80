package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-owner storage statistics",
	Long: `Show memory, summary and turn counts for the owner, including how
many turns still await consolidation and how many memories are stored
under an outdated embedding model.

Examples:
  recall stats --owner conv-42`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	scope, err := owner()
	if err != nil {
		return err
	}
	if err := initLLM(ctx); err != nil {
		return fmt.Errorf("init services: %w", err)
	}

	stats, err := memoryService().Stats(ctx, scope)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	fmt.Printf("Owner: %s\n\n", scope.Key())

	total := 0
	fmt.Println("Memories:")
	for _, kc := range stats.MemoriesByKind {
		fmt.Printf("  %-15s %d\n", kc.Kind, kc.Count)
		total += kc.Count
	}
	fmt.Printf("  %-15s %d\n", "total", total)

	fmt.Printf("\nTurns: %d (%d unsummarized)\n", stats.Turns, stats.UnsummarizedTurn)
	fmt.Printf("Summaries: %d (last summarized seq %d)\n", stats.Summaries, stats.LastSummarized)
	if stats.StaleEmbeddings > 0 {
		fmt.Printf("\n%d memories need re-embedding. Run 'recall reembed'.\n", stats.StaleEmbeddings)
	}

	return nil
}
