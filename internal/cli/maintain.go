package cli

import (
	"context"
	"fmt"

	"github.com/perso-labs/recall/internal/models"
	"github.com/spf13/cobra"
)

var (
	maintainDryRun    bool
	maintainThreshold float64
)

var maintainCmd = &cobra.Command{
	Use:   "maintain <retire|prune|similar>",
	Short: "Retention maintenance",
	Long: `Run a retention maintenance action for the owner.

  retire   soft-retire memories whose decayed relevance fell below the floor
  prune    delete memories retired longer than the retention window
  similar  list near-duplicate memory pairs the dedup heuristic declined to merge

Examples:
  recall maintain retire --owner conv-42 --dry-run
  recall maintain prune --owner conv-42
  recall maintain similar --owner conv-42 --threshold 0.88`,
	Args: cobra.ExactArgs(1),
	RunE: runMaintain,
}

func init() {
	maintainCmd.Flags().BoolVar(&maintainDryRun, "dry-run", false, "preview without applying")
	maintainCmd.Flags().Float64Var(&maintainThreshold, "threshold", 0.85, "min similarity for 'similar'")
}

func runMaintain(cmd *cobra.Command, args []string) error {
	action := args[0]
	ctx := context.Background()

	scope, err := owner()
	if err != nil {
		return err
	}
	if err := initLLM(ctx); err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	memories := memoryService()

	switch action {
	case "retire":
		res, err := memories.RetireFaded(ctx, scope, maintainDryRun)
		if err != nil {
			return fmt.Errorf("retire: %w", err)
		}
		if res.DryRun {
			fmt.Printf("Would retire %d of %d memories:\n", len(res.Affected), res.Examined)
			for _, id := range res.Affected {
				fmt.Printf("  %s\n", id)
			}
		} else {
			fmt.Printf("Retired %d of %d memories.\n", res.Retired, res.Examined)
		}

	case "prune":
		res, err := memories.PruneRetired(ctx, scope, maintainDryRun)
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		if res.DryRun {
			fmt.Printf("Would prune %d memories.\n", len(res.Affected))
		} else {
			fmt.Printf("Pruned %d memories.\n", res.Pruned)
		}

	case "similar":
		if maintainThreshold <= 0 || maintainThreshold > 1 {
			return fmt.Errorf("threshold must be in (0, 1]")
		}
		pairs, err := memories.SimilarPairs(ctx, scope, maintainThreshold)
		if err != nil {
			return fmt.Errorf("similar: %w", err)
		}
		if len(pairs) == 0 {
			fmt.Println("No similar pairs found.")
			return nil
		}
		fmt.Printf("Found %d similar pairs:\n\n", len(pairs))
		for _, p := range pairs {
			fmt.Printf("%.3f  %s\n", p.Similarity, p.A.Content)
			fmt.Printf("       %s\n", p.B.Content)
			if verbose {
				fmt.Printf("       ids: %s, %s\n",
					models.MustRecordIDString(p.A.ID), models.MustRecordIDString(p.B.ID))
			}
			fmt.Println()
		}

	default:
		return fmt.Errorf("unknown action %q: use retire, prune or similar", action)
	}

	return nil
}
