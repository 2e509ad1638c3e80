// Package cli provides the command-line interface for recall.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/perso-labs/recall/internal/config"
	"github.com/perso-labs/recall/internal/db"
	"github.com/perso-labs/recall/internal/llm"
	"github.com/perso-labs/recall/internal/metrics"
	"github.com/perso-labs/recall/internal/models"
	"github.com/perso-labs/recall/internal/service"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	ownerKind string
	ownerID   string

	// Global config, policy and db client
	cfg       config.Config
	policy    config.Policy
	dbClient  *db.Client
	collector *metrics.Collector

	// Lazy-initialized LLM components
	embedder *llm.Embedder
	model    *llm.Model
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Long-term conversational memory engine",
	Long: `Recall gives conversational agents a durable long-term memory.

Turns are recorded verbatim, atomic memories are extracted and
deduplicated, full blocks of old turns are consolidated into summaries,
and retrieval blends semantic similarity with time-decayed relevance.
Context for the next exchange is assembled within a token budget.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip DB connection for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		// Load config and policy
		cfg = config.Load()

		var err error
		policy, err = config.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("load policy: %w", err)
		}

		collector = metrics.NewCollector()

		// Connect to database
		ctx := context.Background()
		dbCfg := db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}

		dbClient, err = db.NewClient(ctx, dbCfg, nil, collector)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		// Initialize schema
		if err := dbClient.InitSchema(ctx, cfg.EmbedDimension); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		// Close database connection
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
	},
}

// owner resolves the owner scope from flags and config defaults.
func owner() (models.Owner, error) {
	kind := ownerKind
	if kind == "" {
		kind = cfg.DefaultOwnerKind
	}
	id := ownerID
	if id == "" {
		id = cfg.DefaultOwnerID
	}
	if id == "" {
		return models.Owner{}, fmt.Errorf("owner ID required: use --owner or set RECALL_OWNER_ID")
	}
	if kind != "persona" && kind != "conversation" {
		return models.Owner{}, fmt.Errorf("invalid owner kind %q: use 'persona' or 'conversation'", kind)
	}
	return models.Owner{Kind: kind, ID: id}, nil
}

// initLLM lazily initializes the embedder and the generation model.
func initLLM(ctx context.Context) error {
	if embedder != nil {
		return nil
	}
	var err error
	embedder, err = llm.NewEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	model, err = llm.NewModel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init model: %w", err)
	}
	return nil
}

// memoryService builds the memory service. Requires initLLM.
func memoryService() *service.MemoryService {
	return service.NewMemoryService(dbClient, embedder, policy, collector)
}

// consolidationService builds the consolidation service. Requires initLLM.
func consolidationService() *service.ConsolidationService {
	return service.NewConsolidationService(dbClient, embedder, model, policy, collector)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&ownerKind, "owner-kind", "", "owner scope kind: persona or conversation")
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", "", "owner identifier")

	// Add subcommands
	rootCmd.AddCommand(turnCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(assembleCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(reembedCmd)
	rootCmd.AddCommand(wipeCmd)
}
