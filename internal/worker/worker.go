// Package worker drains queued AI edits in the background.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/folio/internal/planner"
	"github.com/kalambet/folio/internal/storage"
	"github.com/kalambet/folio/internal/workspace"
)

const defaultPoll = 500 * time.Millisecond

// Queue is the subset of the store the worker needs.
type Queue interface {
	ClaimJob(jobType string) (*storage.Job, error)
	CompleteJob(id string) error
	RetryJob(id, cause string) error
	AbandonJob(id, cause string) error
}

// Editor runs an AI edit against a stored portfolio.
type Editor interface {
	Edit(ctx context.Context, req workspace.EditRequest) (workspace.Outcome, error)
}

// Worker executes ai_edit jobs one at a time.
type Worker struct {
	queue  Queue
	editor Editor
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker returns a Worker that checks the queue every poll interval when
// idle. A non-positive poll uses 500ms.
func NewWorker(queue Queue, editor Editor, poll time.Duration) *Worker {
	if poll <= 0 {
		poll = defaultPoll
	}
	return &Worker{queue: queue, editor: editor, poll: poll, logger: slog.Default()}
}

// Run drains the queue, sleeping between empty polls, until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	idle := time.NewTimer(0)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
		}
		for ctx.Err() == nil {
			handled, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.Error("worker: queue error", "error", err)
			}
			if !handled {
				break
			}
		}
		idle.Reset(w.poll)
	}
}

// RunOnce handles at most one due job and reports whether it found one.
// Edit failures are recorded on the job, not returned; the error is only
// for queue failures.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.queue.ClaimJob(workspace.JobTypeEdit)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	log := w.logger.With("job_id", job.ID, "attempt", job.Attempts+1)
	req, out, editErr := w.execute(ctx, job)

	var settleErr error
	switch {
	case editErr == nil:
		log.Info("edit job done", "portfolio_id", req.PortfolioID, "edit_id", out.EditID, "success", out.Result.Success)
		settleErr = w.queue.CompleteJob(job.ID)
	case ctx.Err() != nil || shouldRetry(req, editErr):
		log.Warn("edit job failed, requeued", "error", editErr)
		settleErr = w.queue.RetryJob(job.ID, editErr.Error())
	default:
		log.Warn("edit job failed", "error", editErr)
		settleErr = w.queue.AbandonJob(job.ID, editErr.Error())
	}
	if settleErr != nil {
		return true, fmt.Errorf("settling job %s: %w", job.ID, settleErr)
	}
	return true, nil
}

func (w *Worker) execute(ctx context.Context, job *storage.Job) (workspace.EditRequest, workspace.Outcome, error) {
	var req workspace.EditRequest
	if err := json.Unmarshal([]byte(job.PayloadJSON), &req); err != nil {
		return req, workspace.Outcome{}, fmt.Errorf("decoding payload: %w", err)
	}
	out, err := w.editor.Edit(ctx, req)
	if err != nil {
		return req, out, fmt.Errorf("editing portfolio %s: %w", req.PortfolioID, err)
	}
	return req, out, nil
}

// shouldRetry accepts transient generation failures and revision conflicts
// on requests that did not pin a revision.
func shouldRetry(req workspace.EditRequest, err error) bool {
	var ge *planner.GenerationError
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return req.ExpectedRevision == 0 && errors.Is(err, storage.ErrConflict)
}
