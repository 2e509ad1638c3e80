package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/perso-labs/recall/internal/llm"
	"github.com/perso-labs/recall/internal/models"
)

// JobStatus represents the state of a background job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ReembedResult summarizes a re-embedding run.
type ReembedResult struct {
	Reencoded int
	Failed    int
	Errors    []string
}

// Job represents a background re-embedding job.
type Job struct {
	ID          string
	Status      JobStatus
	Model       string // target embedding model
	Progress    int
	Total       int
	Result      *ReembedResult
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time

	mu sync.RWMutex
}

// ReembedManager runs and tracks re-embedding jobs. Records tagged with an
// older embedding model version stay stored but unsearchable until a job
// re-encodes them under the active model.
type ReembedManager struct {
	jobs      map[string]*Job
	mu        sync.RWMutex
	store     Store
	embedder  Embedder
	batchSize int
}

// NewReembedManager creates a re-embed manager.
func NewReembedManager(store Store, embedder Embedder, batchSize int) *ReembedManager {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &ReembedManager{
		jobs:      make(map[string]*Job),
		store:     store,
		embedder:  embedder,
		batchSize: batchSize,
	}
}

// Start creates a job covering every stale record and runs it in the
// background. Returns immediately with the pending job.
func (m *ReembedManager) Start(ctx context.Context) (*Job, error) {
	total, err := m.store.CountStaleEmbeddings(ctx, m.embedder.Model())
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:        uuid.New().String()[:8], // Short ID for convenience
		Status:    JobStatusPending,
		Model:     m.embedder.Model(),
		Total:     total,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	slog.Info("reembed job created", "job_id", job.ID, "model", job.Model, "stale", total)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("reembed job panicked", "job_id", job.ID, "panic", r)
				m.fail(job, fmt.Errorf("internal panic: %v", r))
			}
		}()

		// The job must outlive the request that started it.
		result, err := m.run(context.WithoutCancel(ctx), job)
		if err != nil {
			m.fail(job, err)
			return
		}
		m.complete(job, result)
	}()

	return job, nil
}

// run re-encodes stale records in batches until none remain.
func (m *ReembedManager) run(ctx context.Context, job *Job) (*ReembedResult, error) {
	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()

	result := &ReembedResult{}

	// Records that fail stay stale and keep showing up in the listing.
	// Remember them so each failure is counted exactly once and later
	// batches can reach past a failed prefix.
	failed := make(map[string]bool)

	for {
		listed, err := m.store.ListStaleEmbeddings(ctx, m.embedder.Model(), m.batchSize+len(failed))
		if err != nil {
			return result, err
		}
		stale := listed[:0]
		for _, rec := range listed {
			if !failed[models.MustRecordIDString(rec.ID)] {
				stale = append(stale, rec)
			}
		}
		if len(stale) > m.batchSize {
			stale = stale[:m.batchSize]
		}
		if len(stale) == 0 {
			if result.Failed > 0 {
				slog.Warn("reembed finished with failures", "job_id", job.ID, "failed", result.Failed)
			}
			return result, nil
		}

		texts := make([]string, len(stale))
		for i, rec := range stale {
			texts[i] = rec.Content
		}

		vectors, err := m.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if errors.Is(err, llm.ErrFatalAPI) {
				// Quota or credentials; retrying the next batch would
				// fail the same way.
				return result, err
			}
			// Fall back to one-by-one so a single poisoned text does
			// not block the batch.
			vectors = make([][]float32, len(stale))
			for i := range stale {
				v, embErr := m.embedder.Embed(ctx, texts[i])
				if embErr != nil {
					if errors.Is(embErr, llm.ErrFatalAPI) {
						return result, embErr
					}
					id := models.MustRecordIDString(stale[i].ID)
					failed[id] = true
					result.Failed++
					result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, embErr))
					continue
				}
				vectors[i] = v
			}
		}

		batchReencoded := 0
		for i, rec := range stale {
			if vectors[i] == nil {
				continue
			}
			id := models.MustRecordIDString(rec.ID)
			if err := m.store.UpdateEmbedding(ctx, id, vectors[i], m.embedder.Model()); err != nil {
				failed[id] = true
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
				continue
			}
			batchReencoded++
		}
		result.Reencoded += batchReencoded

		job.mu.Lock()
		job.Progress = result.Reencoded + result.Failed
		job.mu.Unlock()
	}
}

// GetJob retrieves a job by ID.
func (m *ReembedManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all jobs, most recent first.
func (m *ReembedManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}

	slices.SortFunc(jobs, func(a, b *Job) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	return jobs
}

func (m *ReembedManager) complete(job *Job, result *ReembedResult) {
	job.mu.Lock()
	job.Status = JobStatusCompleted
	job.Result = result
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()

	slog.Info("reembed job completed", "job_id", job.ID, "reencoded", result.Reencoded, "failed", result.Failed)
}

func (m *ReembedManager) fail(job *Job, err error) {
	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Error = err.Error()
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()

	slog.Error("reembed job failed", "job_id", job.ID, "error", err)
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() Job {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Job{
		ID:          j.ID,
		Status:      j.Status,
		Model:       j.Model,
		Progress:    j.Progress,
		Total:       j.Total,
		Result:      j.Result,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
