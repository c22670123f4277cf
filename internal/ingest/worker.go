// Package ingest runs background jobs from the SQLite queue: per-category
// headline fetches and recommendation index rebuilds.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mpetrov/newsrec/internal/storage"
)

// Job type names. A refresh batch is one JobFetchCategory per configured
// category followed by a single JobRebuildIndex; the queue is FIFO on a
// single worker, so the rebuild observes every fetched article.
const (
	JobFetchCategory = "fetch_category"
	JobRebuildIndex  = "rebuild_index"
)

// JobStore abstracts the queue and article persistence.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	UpsertArticle(a storage.Article) (int64, error)
}

// Fetcher fetches headlines for a single category.
type Fetcher interface {
	FetchCategory(ctx context.Context, category string) ([]storage.Article, error)
}

// Rebuilder swaps in a fresh recommendation index.
type Rebuilder interface {
	Rebuild(ctx context.Context) (int, error)
}

// Worker processes queue jobs until its context is cancelled.
type Worker struct {
	store     JobStore
	fetcher   Fetcher
	rebuilder Rebuilder
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, fetcher Fetcher, rebuilder Rebuilder, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		fetcher:   fetcher,
		rebuilder: rebuilder,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobFetchCategory, JobRebuildIndex})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type fetchPayload struct {
	Category string `json:"category"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	switch job.Type {
	case JobFetchCategory:
		var payload fetchPayload
		if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		if payload.Category == "" {
			return fmt.Errorf("fetch job %s has no category", job.ID)
		}

		articles, err := w.fetcher.FetchCategory(ctx, payload.Category)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", payload.Category, err)
		}
		for _, a := range articles {
			if _, err := w.store.UpsertArticle(a); err != nil {
				return fmt.Errorf("storing article %q: %w", a.URL, err)
			}
		}
		w.logger.Info("fetched category", "category", payload.Category, "articles", len(articles))
		return nil

	case JobRebuildIndex:
		count, err := w.rebuilder.Rebuild(ctx)
		if err != nil {
			return fmt.Errorf("rebuilding index: %w", err)
		}
		w.logger.Info("rebuilt recommendation index", "articles", count)
		return nil

	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

// JobEnqueuer abstracts queue insertion for refresh scheduling.
type JobEnqueuer interface {
	EnqueueJob(job storage.Job) error
}

// EnqueueRefresh queues a full refresh batch: one fetch job per category
// plus a trailing index rebuild. Returns the queued job IDs.
func EnqueueRefresh(store JobEnqueuer, categories []string) ([]string, error) {
	ids := make([]string, 0, len(categories)+1)

	for _, category := range categories {
		payload, err := json.Marshal(fetchPayload{Category: category})
		if err != nil {
			return nil, fmt.Errorf("marshaling payload: %w", err)
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        JobFetchCategory,
			PayloadJSON: string(payload),
		}
		if err := store.EnqueueJob(job); err != nil {
			return nil, fmt.Errorf("enqueuing fetch job for %s: %w", category, err)
		}
		ids = append(ids, job.ID)
	}

	rebuild := storage.Job{
		ID:   uuid.New().String(),
		Type: JobRebuildIndex,
	}
	if err := store.EnqueueJob(rebuild); err != nil {
		return nil, fmt.Errorf("enqueuing rebuild job: %w", err)
	}
	ids = append(ids, rebuild.ID)

	return ids, nil
}

// Scheduler periodically enqueues refresh batches.
type Scheduler struct {
	store      JobEnqueuer
	categories []string
	interval   time.Duration
	logger     *slog.Logger
}

// NewScheduler creates a Scheduler. A non-positive interval disables it.
func NewScheduler(store JobEnqueuer, categories []string, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:      store,
		categories: categories,
		interval:   interval,
		logger:     slog.Default(),
	}
}

// Run enqueues a refresh batch every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := EnqueueRefresh(s.store, s.categories); err != nil {
				s.logger.Error("scheduling refresh failed", "error", err)
				continue
			}
			s.logger.Info("scheduled refresh batch", "categories", len(s.categories))
		}
	}
}
