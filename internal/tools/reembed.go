package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/perso-labs/recall/internal/service"
)

// ReembedInput defines the input schema for the reembed tool.
type ReembedInput struct {
	Action string `json:"action" jsonschema:"required,enum=start|status|list,Job action: 'start' launches a re-embedding job, 'status' checks one, 'list' shows all"`
	JobID  string `json:"job_id,omitempty" jsonschema:"Job ID for 'status'"`
}

// JobView is a job snapshot in tool output.
type JobView struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Model       string     `json:"model"`
	Progress    int        `json:"progress"`
	Total       int        `json:"total"`
	Reencoded   int        `json:"reencoded,omitempty"`
	Failed      int        `json:"failed,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func jobView(job *service.Job) JobView {
	snap := job.Snapshot()
	view := JobView{
		ID:          snap.ID,
		Status:      string(snap.Status),
		Model:       snap.Model,
		Progress:    snap.Progress,
		Total:       snap.Total,
		Error:       snap.Error,
		StartedAt:   snap.StartedAt,
		CompletedAt: snap.CompletedAt,
	}
	if snap.Result != nil {
		view.Reencoded = snap.Result.Reencoded
		view.Failed = snap.Result.Failed
	}
	return view
}

// NewReembedHandler creates the reembed tool handler.
// Manages background jobs that re-encode records tagged with an older
// embedding model.
func NewReembedHandler(deps *Dependencies) mcp.ToolHandlerFor[ReembedInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ReembedInput) (
		*mcp.CallToolResult, any, error,
	) {
		switch input.Action {
		case "start":
			job, err := deps.Reembed.Start(ctx)
			if err != nil {
				deps.Logger.Error("reembed start failed", "error", err)
				return ErrorResult("Failed to start re-embedding job", "Database may be unavailable"), nil, nil
			}
			jsonBytes, _ := json.MarshalIndent(jobView(job), "", "  ")
			return TextResult(string(jsonBytes)), nil, nil

		case "status":
			if input.JobID == "" {
				return ErrorResult("Job ID is required", "Provide job_id from a previous 'start'"), nil, nil
			}
			job := deps.Reembed.GetJob(input.JobID)
			if job == nil {
				return ErrorResult("Job not found: "+input.JobID, "Use action 'list' to see known jobs"), nil, nil
			}
			jsonBytes, _ := json.MarshalIndent(jobView(job), "", "  ")
			return TextResult(string(jsonBytes)), nil, nil

		case "list":
			jobs := deps.Reembed.ListJobs()
			views := make([]JobView, 0, len(jobs))
			for _, job := range jobs {
				views = append(views, jobView(job))
			}
			jsonBytes, _ := json.MarshalIndent(views, "", "  ")
			return TextResult(string(jsonBytes)), nil, nil

		default:
			return ErrorResult("Invalid action", "Use 'start', 'status' or 'list'"), nil, nil
		}
	}
}
