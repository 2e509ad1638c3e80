package cli

import (
	"context"
	"fmt"

	"github.com/perso-labs/recall/internal/service"
	"github.com/spf13/cobra"
)

var assembleBudget int

var assembleCmd = &cobra.Command{
	Use:   "assemble <query>",
	Short: "Assemble a context block for the next exchange",
	Long: `Assemble the owner's conversation summary, most relevant memories and
recent turns into one rendered block. With --budget the block is
truncated to fit: memories are dropped first, then the summary; recent
turns are always kept.

Examples:
  recall assemble --owner conv-42 "continuing the deployment discussion"
  recall assemble --owner conv-42 "planning" --budget 1500`,
	Args: cobra.ExactArgs(1),
	RunE: runAssemble,
}

func init() {
	assembleCmd.Flags().IntVarP(&assembleBudget, "budget", "b", 0, "token budget (0 = unbounded)")
}

func runAssemble(cmd *cobra.Command, args []string) error {
	query := args[0]
	ctx := context.Background()

	scope, err := owner()
	if err != nil {
		return err
	}
	if assembleBudget < 0 {
		return fmt.Errorf("token budget cannot be negative")
	}
	if err := initLLM(ctx); err != nil {
		return fmt.Errorf("init services: %w", err)
	}

	counter, err := service.NewTokenCounter()
	if err != nil {
		return fmt.Errorf("init token counter: %w", err)
	}

	assembly := service.NewAssemblyService(dbClient, memoryService(), counter, policy, collector)
	assembled, err := assembly.Assemble(ctx, scope, query, assembleBudget)
	if err != nil {
		return fmt.Errorf("assemble: %w", err)
	}

	fmt.Print(assembled.Text)
	if verbose {
		fmt.Printf("\n--\n%d tokens, %d memories, %d turns, summary=%v, truncated=%v\n",
			assembled.TokenCount, len(assembled.MemoryIDs), assembled.TurnCount,
			assembled.Summary, assembled.Truncated)
	}

	return nil
}
