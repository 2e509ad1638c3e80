package cli

import (
	"context"
	"fmt"

	"github.com/perso-labs/recall/internal/service"
	"github.com/spf13/cobra"
)

var turnRole string

var turnCmd = &cobra.Command{
	Use:   "turn <content>",
	Short: "Record a conversation turn",
	Long: `Record a conversation turn and run the derived pipeline: memory
extraction, dedup-by-reinforcement and, when a full block of turns has
accumulated, consolidation into a summary.

Examples:
  recall turn --owner conv-42 "I prefer tabs over spaces"
  recall turn --owner conv-42 --role assistant "Noted, tabs it is"`,
	Args: cobra.ExactArgs(1),
	RunE: runTurn,
}

func init() {
	turnCmd.Flags().StringVarP(&turnRole, "role", "r", "user", "speaker role: user or assistant")
}

func runTurn(cmd *cobra.Command, args []string) error {
	content := args[0]
	ctx := context.Background()

	scope, err := owner()
	if err != nil {
		return err
	}
	if turnRole != "user" && turnRole != "assistant" {
		return fmt.Errorf("invalid role %q: use 'user' or 'assistant'", turnRole)
	}

	if err := initLLM(ctx); err != nil {
		return fmt.Errorf("init services: %w", err)
	}

	memories := memoryService()
	ingest := service.NewIngestService(dbClient, model, memories, consolidationService(), collector)

	res, err := ingest.RecordTurn(ctx, scope, turnRole, content)
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}

	fmt.Printf("Recorded turn %d for %s\n", res.Turn.Seq, scope.Key())
	if res.Created > 0 || res.Reinforced > 0 {
		fmt.Printf("  Memories: %d created, %d reinforced\n", res.Created, res.Reinforced)
	}
	if res.Consolidation != nil {
		switch res.Consolidation.Outcome {
		case service.OutcomeSummarized:
			s := res.Consolidation.Summary
			fmt.Printf("  Consolidated turns %d-%d into a summary\n", s.TurnStart, s.TurnEnd)
		case service.OutcomeInProgress:
			fmt.Println("  Consolidation already in progress elsewhere")
		}
		if verbose {
			fmt.Printf("  Backlog: %d unsummarized turns\n", res.Consolidation.Backlog)
		}
	}

	return nil
}
