package generate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/foliolabs/folio/internal/cache"
	"github.com/foliolabs/folio/internal/events"
	"github.com/foliolabs/folio/internal/store"
)

// DefaultBatchSize is the number of pages per sequential batch.
const DefaultBatchSize = 10

// Coordinator owns the job lifecycle: accepting generation requests,
// walking a document batch by batch, and finalizing the terminal status.
type Coordinator struct {
	Store     store.Store
	Opener    SourceOpener
	Batch     *BatchProcessor
	Events    events.Sink
	Cache     *cache.JobCache
	Logger    *slog.Logger
	BatchSize int
}

// Start accepts a generation request for a document. It conditionally
// creates the job and enqueues it; ErrJobAlreadyActive passes through when
// a queued or processing job already exists. Forced regeneration takes the
// same path, so it too is refused while a job is active.
func (c *Coordinator) Start(ctx context.Context, pool *Pool, documentID, userID string) (*store.GenerationJob, error) {
	job := &store.GenerationJob{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		UserID:     userID,
		Status:     store.StatusQueued,
		QueuedAt:   time.Now().UTC(),
	}
	if err := c.Store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	c.Cache.Invalidate(ctx, documentID)
	c.Events.Publish(ctx, events.Event{
		Type:       events.TypeGenerationQueued,
		DocumentID: documentID,
		JobID:      job.ID,
		At:         time.Now().UTC(),
	})

	if err := pool.Submit(job.ID); err != nil {
		failure := store.PageFailure{Page: 0, Message: err.Error(), At: time.Now().UTC()}
		if ferr := c.Store.FailJob(ctx, job.ID, failure); ferr != nil {
			c.Logger.Error("failing unqueueable job", "job_id", job.ID, "error", ferr)
		}
		return nil, err
	}
	return job, nil
}

// Process runs one job to a terminal state. It is the pool's JobHandler.
func (c *Coordinator) Process(ctx context.Context, jobID string) {
	logger := c.Logger.With("job_id", jobID)

	job, err := c.Store.GetJob(ctx, jobID)
	if err != nil {
		logger.Error("loading job", "error", err)
		return
	}
	logger = logger.With("document_id", job.DocumentID)

	if err := c.Store.MarkJobProcessing(ctx, jobID); err != nil {
		logger.Error("marking job processing", "error", err)
		return
	}
	c.Events.Publish(ctx, events.Event{
		Type:       events.TypeGenerationStarted,
		DocumentID: job.DocumentID,
		JobID:      jobID,
		At:         time.Now().UTC(),
	})

	src, err := c.Opener.Open(ctx, job.DocumentID)
	if err != nil {
		c.failJob(ctx, job, err, logger)
		return
	}
	defer src.Close()

	total := src.PageCount()
	if err := c.Store.SetJobTotalPages(ctx, jobID, total); err != nil {
		logger.Error("recording total pages", "error", err)
		return
	}
	logger.Info("generation started", "total_pages", total)

	batchSize := c.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var completed, failed, lastDecile int
	for first := 1; first <= total; first += batchSize {
		last := first + batchSize - 1
		if last > total {
			last = total
		}
		result, err := c.Batch.ProcessBatch(ctx, job, src, first, last)
		completed += result.Completed
		failed += result.Failed
		if err != nil {
			// Shutdown mid-job: leave the job non-terminal so the startup
			// recovery sweep re-runs it from scratch.
			if ctx.Err() != nil {
				logger.Info("generation interrupted, job will be requeued on restart",
					"completed_pages", completed, "failed_pages", failed)
				return
			}
			logger.Error("batch aborted", "first", first, "last", last, "error", err)
			c.finalize(ctx, job, completed, failed, logger)
			return
		}
		lastDecile = c.emitProgress(ctx, job, completed, failed, total, lastDecile)
	}

	c.Batch.Wait()
	c.finalize(ctx, job, completed, failed, logger)
}

// emitProgress publishes one progress event for every 10% boundary the
// processed-page count crossed since the last call. A large batch on a
// small document crosses several deciles at once and emits each of them;
// the 100% boundary is covered by the terminal event instead.
func (c *Coordinator) emitProgress(ctx context.Context, job *store.GenerationJob, completed, failed, total, lastDecile int) int {
	if total <= 0 {
		return lastDecile
	}
	decile := (completed + failed) * 10 / total
	for d := lastDecile + 1; d <= decile && d < 10; d++ {
		c.Events.Publish(ctx, events.Event{
			Type:       events.TypeGenerationProgress,
			DocumentID: job.DocumentID,
			JobID:      job.ID,
			At:         time.Now().UTC(),
			Payload: map[string]any{
				"percent":         d * 10,
				"completed_pages": completed,
				"failed_pages":    failed,
				"total_pages":     total,
			},
		})
	}
	if decile > lastDecile {
		return decile
	}
	return lastDecile
}

// Recover requeues jobs left queued or processing by a previous run and
// resubmits them. Called once on startup before traffic is accepted; a job
// that cannot be enqueued is failed so it releases the document's active
// slot.
func (c *Coordinator) Recover(ctx context.Context, pool *Pool) error {
	ids, err := c.Store.UnfinishedJobs(ctx)
	if err != nil {
		return err
	}
	for _, jobID := range ids {
		if err := c.Store.RequeueJob(ctx, jobID); err != nil {
			c.Logger.Error("requeueing orphaned job", "job_id", jobID, "error", err)
			continue
		}
		if err := pool.Submit(jobID); err != nil {
			failure := store.PageFailure{Page: 0, Message: err.Error(), At: time.Now().UTC()}
			if ferr := c.Store.FailJob(ctx, jobID, failure); ferr != nil {
				c.Logger.Error("failing unqueueable job", "job_id", jobID, "error", ferr)
			}
		}
	}
	if len(ids) > 0 {
		c.Logger.Info("recovered orphaned jobs", "count", len(ids))
	}
	return nil
}

// failJob handles a source that could not be opened: the job fails with a
// synthetic failure entry and the page counters stay untouched.
// The terminal write is detached from ctx cancellation so a shutdown racing
// the failure cannot strand the job in processing.
func (c *Coordinator) failJob(ctx context.Context, job *store.GenerationJob, cause error, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	logger.Error("opening source", "error", cause)
	failure := store.PageFailure{Page: 0, Message: cause.Error(), At: time.Now().UTC()}
	if err := c.Store.FailJob(ctx, job.ID, failure); err != nil {
		logger.Error("failing job", "error", err)
		return
	}
	c.cacheTerminal(ctx, job.ID)
	c.Events.Publish(ctx, events.Event{
		Type:       events.TypeGenerationFailed,
		DocumentID: job.DocumentID,
		JobID:      job.ID,
		At:         time.Now().UTC(),
		Payload: map[string]any{
			"completed_pages": 0,
			"failed_pages":    0,
			"total_pages":     0,
		},
	})
}

// finalize writes the terminal status. The write is detached from ctx
// cancellation: every page has already been accounted for, so a shutdown
// racing the last batch must not leave the job in processing.
func (c *Coordinator) finalize(ctx context.Context, job *store.GenerationJob, completed, failed int, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	var status store.Status
	var eventType string
	switch {
	case failed == 0:
		status, eventType = store.StatusCompleted, events.TypeGenerationCompleted
	case completed > 0:
		status, eventType = store.StatusPartial, events.TypeGenerationPartial
	default:
		status, eventType = store.StatusFailed, events.TypeGenerationFailed
	}

	if err := c.Store.FinalizeJob(ctx, job.ID, status); err != nil {
		logger.Error("finalizing job", "error", err)
		return
	}
	c.cacheTerminal(ctx, job.ID)
	logger.Info("generation finished",
		"status", status,
		"completed_pages", completed,
		"failed_pages", failed)

	c.Events.Publish(ctx, events.Event{
		Type:       eventType,
		DocumentID: job.DocumentID,
		JobID:      job.ID,
		At:         time.Now().UTC(),
		Payload: map[string]any{
			"completed_pages": completed,
			"failed_pages":    failed,
		},
	})

	if completed > 0 {
		c.ensureCover(ctx, job.DocumentID, logger)
	}
}

// ensureCover re-checks cover presence after a job finishes, covering the
// case where the fire-and-forget derivation during the first batch failed.
func (c *Coordinator) ensureCover(ctx context.Context, documentID string, logger *slog.Logger) {
	if c.Batch.Covers == nil {
		return
	}
	if _, err := c.Store.GetCover(ctx, documentID); err == nil {
		return
	} else if !errors.Is(err, store.ErrCoverNotFound) {
		logger.Error("checking cover", "error", err)
		return
	}
	if _, err := c.Store.GetPage(ctx, documentID, 1); err != nil {
		return
	}
	if err := c.Batch.Covers.DeriveFromPage1(ctx, documentID); err != nil {
		logger.Warn("cover derivation failed", "error", err)
	}
}

func (c *Coordinator) cacheTerminal(ctx context.Context, jobID string) {
	job, err := c.Store.GetJob(ctx, jobID)
	if err != nil {
		return
	}
	c.Cache.SetJob(ctx, job)
}
