package cli

import (
	"context"
	"fmt"

	"github.com/perso-labs/recall/internal/models"
	"github.com/perso-labs/recall/internal/service"
	"github.com/spf13/cobra"
)

var (
	searchKind         string
	searchLimit        int
	searchMinRelevance float64
	searchNoAccess     bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored memories",
	Long: `Search an owner's memories by composite score: semantic similarity
blended with time-decayed relevance and importance.

Returned memories count as accessed unless --no-access is given.

Examples:
  recall search --owner conv-42 "editor preferences"
  recall search --owner conv-42 "deployment" --kind decision
  recall search --owner conv-42 "kubernetes" -n 3 --no-access`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchKind, "kind", "k", "", "filter by memory kind")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "max results (default from policy)")
	searchCmd.Flags().Float64Var(&searchMinRelevance, "min-relevance", 0, "drop hits below this decayed relevance")
	searchCmd.Flags().BoolVar(&searchNoAccess, "no-access", false, "skip access tracking")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]
	ctx := context.Background()

	scope, err := owner()
	if err != nil {
		return err
	}
	if err := initLLM(ctx); err != nil {
		return fmt.Errorf("init services: %w", err)
	}

	opts := service.SearchOptions{
		Limit:              searchLimit,
		SkipAccessTracking: searchNoAccess,
	}
	if cmd.Flags().Changed("min-relevance") {
		opts.MinRelevance = &searchMinRelevance
	}
	if searchKind != "" {
		kind := models.MemoryKind(searchKind)
		if !kind.Valid() {
			return fmt.Errorf("invalid kind %q", searchKind)
		}
		opts.Kind = &kind
	}

	results, err := memoryService().Search(ctx, scope, query, opts)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(results))
	for i, hit := range results {
		fmt.Printf("%d. [%s] %s\n", i+1, hit.Memory.Kind, hit.Memory.Content)
		fmt.Printf("   score %.3f (sim %.3f, relevance %.3f, importance %.2f)\n",
			hit.Score, hit.Similarity, hit.Relevance, hit.Memory.Importance)
		if verbose {
			fmt.Printf("   id %s, accessed %d times\n",
				models.MustRecordIDString(hit.Memory.ID), hit.Memory.AccessCount)
		}
		fmt.Println()
	}

	return nil
}
