package cli

import (
	"context"
	"fmt"

	"github.com/perso-labs/recall/internal/service"
	"github.com/spf13/cobra"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run one consolidation pass",
	Long: `Attempt one consolidation pass for the owner. When a full block of
unsummarized turns has accumulated, they are folded into a summary;
otherwise nothing happens. Safe to run from cron or multiple hosts,
passes are serialized through a per-owner lease.

Examples:
  recall consolidate --owner conv-42`,
	RunE: runConsolidate,
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	scope, err := owner()
	if err != nil {
		return err
	}
	if err := initLLM(ctx); err != nil {
		return fmt.Errorf("init services: %w", err)
	}

	res, err := consolidationService().MaybeConsolidate(ctx, scope)
	if err != nil {
		return fmt.Errorf("consolidate: %w", err)
	}

	switch res.Outcome {
	case service.OutcomeSummarized:
		fmt.Printf("Consolidated turns %d-%d for %s\n",
			res.Summary.TurnStart, res.Summary.TurnEnd, scope.Key())
		if verbose {
			fmt.Printf("  %s\n", res.Summary.SummaryText)
		}
	case service.OutcomeInProgress:
		fmt.Println("Consolidation already in progress elsewhere.")
	default:
		fmt.Printf("Nothing to consolidate (%d unsummarized turns).\n", res.Backlog)
	}

	return nil
}
