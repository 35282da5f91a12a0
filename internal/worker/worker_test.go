package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kalambet/folio/internal/planner"
	"github.com/kalambet/folio/internal/storage"
	"github.com/kalambet/folio/internal/workspace"
)

// fakeQueue hands out its jobs in order and records how each was settled.
type fakeQueue struct {
	mu       sync.Mutex
	pending  []*storage.Job
	settled  map[string]string
	causes   map[string]string
	claimErr error
}

func newFakeQueue(t *testing.T, reqs map[string]workspace.EditRequest, order ...string) *fakeQueue {
	t.Helper()
	q := &fakeQueue{settled: map[string]string{}, causes: map[string]string{}}
	for _, id := range order {
		payload, err := json.Marshal(reqs[id])
		if err != nil {
			t.Fatal(err)
		}
		q.pending = append(q.pending, &storage.Job{ID: id, Type: workspace.JobTypeEdit, PayloadJSON: string(payload)})
	}
	return q
}

func (q *fakeQueue) ClaimJob(jobType string) (*storage.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.claimErr != nil {
		return nil, q.claimErr
	}
	if len(q.pending) == 0 || jobType != workspace.JobTypeEdit {
		return nil, nil
	}
	j := q.pending[0]
	q.pending = q.pending[1:]
	return j, nil
}

func (q *fakeQueue) settle(id, how, cause string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.settled[id] = how
	q.causes[id] = cause
	return nil
}

func (q *fakeQueue) CompleteJob(id string) error       { return q.settle(id, "complete", "") }
func (q *fakeQueue) RetryJob(id, cause string) error   { return q.settle(id, "retry", cause) }
func (q *fakeQueue) AbandonJob(id, cause string) error { return q.settle(id, "abandon", cause) }

type mockEditor struct {
	mu    sync.Mutex
	calls []workspace.EditRequest
	err   error
}

func (m *mockEditor) Edit(_ context.Context, req workspace.EditRequest) (workspace.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return workspace.Outcome{}, m.err
	}
	return workspace.Outcome{EditID: "edit-1"}, nil
}

func (m *mockEditor) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func TestRunOnce_Success(t *testing.T) {
	req := workspace.EditRequest{PortfolioID: "p1", Instruction: "swap about and skills", Role: "chef"}
	q := newFakeQueue(t, map[string]workspace.EditRequest{"job-1": req}, "job-1")
	ed := &mockEditor{}
	w := NewWorker(q, ed, 0)

	handled, err := w.RunOnce(context.Background())
	if err != nil || !handled {
		t.Fatalf("RunOnce = %v, %v", handled, err)
	}
	if ed.count() != 1 || ed.calls[0] != req {
		t.Errorf("editor calls = %+v", ed.calls)
	}
	if q.settled["job-1"] != "complete" {
		t.Errorf("job settled as %q, want complete", q.settled["job-1"])
	}

	handled, err = w.RunOnce(context.Background())
	if err != nil || handled {
		t.Errorf("empty queue: handled = %v, err = %v", handled, err)
	}
}

func TestRunOnce_FailureRouting(t *testing.T) {
	unpinned := workspace.EditRequest{PortfolioID: "p1", Instruction: "x"}
	pinned := workspace.EditRequest{PortfolioID: "p1", Instruction: "x", ExpectedRevision: 3}

	tests := []struct {
		name string
		req  workspace.EditRequest
		err  error
		want string
	}{
		{"rate limited", unpinned, &planner.GenerationError{Reason: planner.ReasonRateLimited, Retryable: true, Err: errors.New("429")}, "retry"},
		{"unauthorized", unpinned, &planner.GenerationError{Reason: planner.ReasonUnauthorized, Err: errors.New("401")}, "abandon"},
		{"missing portfolio", unpinned, storage.ErrNotFound, "abandon"},
		{"unpinned conflict", unpinned, fmt.Errorf("saving: %w", storage.ErrConflict), "retry"},
		{"pinned conflict", pinned, fmt.Errorf("stale: %w", storage.ErrConflict), "abandon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newFakeQueue(t, map[string]workspace.EditRequest{"job": tt.req}, "job")
			if _, err := NewWorker(q, &mockEditor{err: tt.err}, 0).RunOnce(context.Background()); err != nil {
				t.Fatalf("RunOnce: %v", err)
			}
			if q.settled["job"] != tt.want {
				t.Errorf("settled as %q, want %q", q.settled["job"], tt.want)
			}
			if q.causes["job"] == "" {
				t.Error("failure cause not recorded")
			}
		})
	}
}

func TestRunOnce_BadPayload(t *testing.T) {
	q := &fakeQueue{
		pending: []*storage.Job{{ID: "junk", Type: workspace.JobTypeEdit, PayloadJSON: "{"}},
		settled: map[string]string{}, causes: map[string]string{},
	}
	ed := &mockEditor{}
	if _, err := NewWorker(q, ed, 0).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if q.settled["junk"] != "abandon" || ed.count() != 0 {
		t.Errorf("settled = %q, editor calls = %d", q.settled["junk"], ed.count())
	}
}

func TestRunOnce_ClaimError(t *testing.T) {
	q := &fakeQueue{claimErr: errors.New("database is locked")}
	if handled, err := NewWorker(q, &mockEditor{}, 0).RunOnce(context.Background()); err == nil || handled {
		t.Errorf("RunOnce = %v, %v, want queue error", handled, err)
	}
}

// The retry path against the real queue: a transient failure leaves the job
// pending with one attempt used.
func TestRunOnce_SQLiteRetry(t *testing.T) {
	store, err := storage.Open(storage.MemoryDSN)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	payload, _ := json.Marshal(workspace.EditRequest{PortfolioID: "p1", Instruction: "x"})
	if err := store.EnqueueJob(storage.Job{ID: "job-r", Type: workspace.JobTypeEdit, PayloadJSON: string(payload)}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	ed := &mockEditor{err: &planner.GenerationError{Reason: planner.ReasonUnavailable, Retryable: true, Err: errors.New("503")}}

	if _, err := NewWorker(store, ed, 0).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got, err := store.GetJob("job-r")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != storage.JobPending || got.Attempts != 1 || got.LastError == "" {
		t.Errorf("job = %+v, want pending after one attempt", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	q := newFakeQueue(t, map[string]workspace.EditRequest{
		"a": {PortfolioID: "p1", Instruction: "x"},
		"b": {PortfolioID: "p1", Instruction: "y"},
	}, "a", "b")
	ed := &mockEditor{}
	w := NewWorker(q, ed, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for ed.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("worker handled %d of 2 jobs", ed.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
