package materialize

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

// JobStore is the slice of the application datastore the worker needs:
// the job lifecycle plus model lookups and the refresh stamp.
type JobStore interface {
	CreateJob(ctx context.Context, modelID string, incremental bool) (*core.RefreshJob, error)
	MarkJobRunning(ctx context.Context, id string) error
	CompleteJob(ctx context.Context, id string, rowsProcessed int64) error
	FailJob(ctx context.Context, id, errorMessage string) error
	GetJob(ctx context.Context, id string) (*core.RefreshJob, error)
	GetModel(ctx context.Context, id string) (*core.ModelDefinition, error)
	StampModelRefreshed(ctx context.Context, id string, at time.Time) error
}

// Worker drives materialization runs asynchronously through the job
// state machine: pending -> running -> success | error. Failures are
// recorded on the job row and never propagate to the trigger caller;
// there are no automatic retries.
type Worker struct {
	store  JobStore
	engine *Engine
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	wg    sync.WaitGroup
}

// NewWorker creates a worker. A nil logger discards.
func NewWorker(store JobStore, engine *Engine, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Worker{
		store:  store,
		engine: engine,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// TriggerRefresh creates a pending job and returns immediately with its
// record; processing runs detached from the caller's context. Failures
// are only visible via subsequent GetJobStatus polls.
func (w *Worker) TriggerRefresh(ctx context.Context, modelID string, opts Options) (*core.RefreshJob, error) {
	if _, err := w.store.GetModel(ctx, modelID); err != nil {
		return nil, err
	}

	job, err := w.store.CreateJob(ctx, modelID, opts.Incremental)
	if err != nil {
		return nil, err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.Process(context.WithoutCancel(ctx), job, opts)
	}()

	return job, nil
}

// Process runs one job to a terminal state. Any materialization failure
// is recorded on the job row; Process itself never fails the caller.
func (w *Worker) Process(ctx context.Context, job *core.RefreshJob, opts Options) {
	if err := w.store.MarkJobRunning(ctx, job.ID); err != nil {
		w.logger.Error("failed to start job", "job_id", job.ID, "error", err)
		return
	}

	// Concurrent refreshes of one model must not interleave their
	// delete/insert windows.
	lock := w.modelLock(job.ModelID)
	lock.Lock()
	defer lock.Unlock()

	model, err := w.store.GetModel(ctx, job.ModelID)
	if err != nil {
		w.fail(ctx, job.ID, err.Error())
		return
	}

	rows, err := w.engine.Materialize(ctx, model, opts)
	if err != nil {
		w.fail(ctx, job.ID, err.Error())
		return
	}

	if err := w.store.CompleteJob(ctx, job.ID, rows); err != nil {
		w.logger.Error("failed to complete job", "job_id", job.ID, "error", err)
		return
	}
	if err := w.store.StampModelRefreshed(ctx, model.ID, time.Now().UTC()); err != nil {
		w.logger.Error("failed to stamp model refresh", "model_id", model.ID, "error", err)
	}

	w.logger.Info("refresh job finished", "job_id", job.ID, "model", model.Name, "rows", rows)
}

// GetJobStatus is a pure read of the job record.
func (w *Worker) GetJobStatus(ctx context.Context, jobID string) (*core.RefreshJob, error) {
	return w.store.GetJob(ctx, jobID)
}

// Wait blocks until all in-flight jobs have reached a terminal state.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) fail(ctx context.Context, jobID, message string) {
	w.logger.Error("refresh job failed", "job_id", jobID, "error", message)
	if err := w.store.FailJob(ctx, jobID, message); err != nil {
		w.logger.Error("failed to record job failure", "job_id", jobID, "error", err)
	}
}

func (w *Worker) modelLock(modelID string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	lock, ok := w.locks[modelID]
	if !ok {
		lock = &sync.Mutex{}
		w.locks[modelID] = lock
	}
	return lock
}
