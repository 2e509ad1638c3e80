package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/perso-labs/recall/internal/service"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var reembedBatchSize int

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Re-encode memories stored under an older embedding model",
	Long: `Start a re-embedding job covering every memory whose stored embedding
was produced by a model other than the configured one. Such memories
stay stored but are skipped by retrieval until re-encoded.

On a terminal the job progress is shown interactively; otherwise plain
progress lines are printed.

Examples:
  recall reembed --owner-kind persona
  recall reembed --batch-size 32`,
	RunE: runReembed,
}

func init() {
	reembedCmd.Flags().IntVar(&reembedBatchSize, "batch-size", 16, "records per embedding batch")
}

func runReembed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := initLLM(ctx); err != nil {
		return fmt.Errorf("init services: %w", err)
	}

	manager := service.NewReembedManager(dbClient, embedder, reembedBatchSize)
	job, err := manager.Start(ctx)
	if err != nil {
		return fmt.Errorf("start reembed job: %w", err)
	}

	snap := job.Snapshot()
	if snap.Total == 0 {
		fmt.Println("All memories already use the configured embedding model.")
		return nil
	}

	fmt.Printf("Job %s: re-encoding %d memories to %s\n", snap.ID, snap.Total, snap.Model)

	if term.IsTerminal(int(os.Stdout.Fd())) {
		if err := RunJobProgress(manager, snap.ID); err != nil {
			return err
		}
		// The job dies with the process, so keep waiting even after the
		// user stops watching.
		if j := manager.GetJob(snap.ID); j != nil {
			s := j.Snapshot()
			if s.Status == service.JobStatusPending || s.Status == service.JobStatusRunning {
				return followJobPlain(manager, snap.ID)
			}
		}
		return nil
	}
	return followJobPlain(manager, snap.ID)
}

// followJobPlain polls the job without the TUI, for piped output.
func followJobPlain(manager *service.ReembedManager, jobID string) error {
	for {
		time.Sleep(pollInterval)

		job := manager.GetJob(jobID)
		if job == nil {
			return fmt.Errorf("job disappeared: %s", jobID)
		}
		snap := job.Snapshot()

		switch snap.Status {
		case service.JobStatusCompleted:
			fmt.Printf("Completed: %d re-encoded, %d failed\n",
				snap.Result.Reencoded, snap.Result.Failed)
			for _, e := range snap.Result.Errors {
				fmt.Fprintf(os.Stderr, "  warning: %s\n", e)
			}
			return nil
		case service.JobStatusFailed:
			return fmt.Errorf("job failed: %s", snap.Error)
		default:
			fmt.Printf("  %d/%d\n", snap.Progress, snap.Total)
		}
	}
}
