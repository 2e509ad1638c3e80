package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var wipeYes bool

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete all stored data",
	Long: `Delete every memory, summary, turn and lease in the configured
database. Intended for development and test environments.

Examples:
  recall wipe --yes`,
	RunE: runWipe,
}

func init() {
	wipeCmd.Flags().BoolVar(&wipeYes, "yes", false, "confirm deletion")
}

func runWipe(cmd *cobra.Command, args []string) error {
	if !wipeYes {
		return fmt.Errorf("refusing to wipe without --yes")
	}

	if err := dbClient.WipeData(context.Background()); err != nil {
		return fmt.Errorf("wipe: %w", err)
	}

	fmt.Println("All data deleted.")
	return nil
}
