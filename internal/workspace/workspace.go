// Package workspace owns stored portfolios: it runs AI edits and user plans
// against the latest revision, persists the outcome and keeps the edit log.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/folio/internal/action"
	"github.com/kalambet/folio/internal/diff"
	"github.com/kalambet/folio/internal/editor"
	"github.com/kalambet/folio/internal/executor"
	"github.com/kalambet/folio/internal/planner"
	"github.com/kalambet/folio/internal/portfolio"
	"github.com/kalambet/folio/internal/resume"
	"github.com/kalambet/folio/internal/storage"
)

// JobTypeEdit is the job type of queued AI edits.
const JobTypeEdit = "ai_edit"

const historyLimit = 1000

var (
	// ErrNothingToUndo is returned by Undo when no change is left to revert.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrInvalidDocument is returned for documents that fail basic checks.
	ErrInvalidDocument = errors.New("invalid document")
)

// Editor generates and applies AI edit plans.
type Editor interface {
	Edit(ctx context.Context, req editor.Request) (editor.Response, error)
	Preview(ctx context.Context, req editor.Request) (editor.Response, error)
	SyncFromResume(ctx context.Context, doc portfolio.Document, resumeText string, pctx planner.Context) (editor.Response, error)
}

// EditRequest asks for an AI edit of a stored portfolio. A non-zero
// ExpectedRevision must match the current revision.
type EditRequest struct {
	PortfolioID      string `json:"portfolioId"`
	Instruction      string `json:"instruction"`
	Role             string `json:"role,omitempty"`
	ExpectedRevision int    `json:"expectedRevision,omitempty"`
}

// Outcome is the result of running a plan against a stored portfolio.
// Portfolio is the latest state; Persisted reports whether a new revision
// was written.
type Outcome struct {
	Portfolio storage.Portfolio `json:"portfolio"`
	Result    executor.Result   `json:"result"`
	Changes   []diff.Change     `json:"changes"`
	Persisted bool              `json:"persisted"`
	EditID    string            `json:"editId,omitempty"`
	Meta      *editor.Metadata  `json:"meta,omitempty"`
}

// Preview is a proposed edit that was not persisted.
type Preview struct {
	Document portfolio.Document `json:"document"`
	Result   executor.Result    `json:"result"`
	Changes  []diff.Change      `json:"changes"`
	Meta     editor.Metadata    `json:"meta"`
}

// Service is the workspace.
type Service struct {
	store  *storage.Store
	editor Editor
	exec   *executor.Executor
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithExecutor sets the executor used for user-constructed plans.
func WithExecutor(e *executor.Executor) Option {
	return func(s *Service) {
		if e != nil {
			s.exec = e
		}
	}
}

// New creates a Service.
func New(store *storage.Store, ed Editor, opts ...Option) *Service {
	s := &Service{store: store, editor: ed, exec: executor.New(), logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create stores a new portfolio. A nil doc starts from an empty document.
func (s *Service) Create(ctx context.Context, name string, doc *portfolio.Document) (storage.Portfolio, error) {
	d := portfolio.New()
	if doc != nil {
		d = doc.Clone()
	}
	if err := checkDocument(d); err != nil {
		return storage.Portfolio{}, err
	}
	p, err := s.store.CreatePortfolio(strings.TrimSpace(name), d, storage.SourceUser)
	if err != nil {
		return storage.Portfolio{}, fmt.Errorf("creating portfolio: %w", err)
	}
	s.logger.Info("portfolio created", "portfolio_id", p.ID)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (storage.Portfolio, error) {
	return s.store.GetPortfolio(id)
}

func (s *Service) List(ctx context.Context, limit int) ([]storage.Portfolio, error) {
	return s.store.ListPortfolios(limit)
}

// Replace stores a user-edited document as the next revision.
func (s *Service) Replace(ctx context.Context, id string, expectedRevision int, doc portfolio.Document) (storage.Portfolio, error) {
	if err := checkDocument(doc); err != nil {
		return storage.Portfolio{}, err
	}
	p, err := s.store.SavePortfolio(id, expectedRevision, doc, storage.SourceUser, "")
	if err != nil {
		return storage.Portfolio{}, fmt.Errorf("saving portfolio %s: %w", id, err)
	}
	return p, nil
}

// checkDocument rejects documents whose layout fields name unsupported
// values. Content is free-form.
func checkDocument(doc portfolio.Document) error {
	if doc.Template != "" && !portfolio.IsKnownTemplate(doc.Template) {
		return fmt.Errorf("%w: unknown template %q", ErrInvalidDocument, doc.Template)
	}
	switch doc.ColorMode {
	case "", portfolio.ColorModeLight, portfolio.ColorModeDark:
	default:
		return fmt.Errorf("%w: unknown color mode %q", ErrInvalidDocument, doc.ColorMode)
	}
	for _, c := range []string{doc.Theme.PrimaryColor, doc.Theme.BackgroundColor, doc.Theme.TextColor} {
		if c == "" {
			continue
		}
		if _, ok := action.NormalizeColor(c); !ok {
			return fmt.Errorf("%w: invalid color %q", ErrInvalidDocument, c)
		}
	}
	return nil
}

// Edit generates a plan for req, applies it to the latest revision and
// stores the result. Every attempt is recorded in the edit log, including
// generation failures, which are returned as the error.
func (s *Service) Edit(ctx context.Context, req EditRequest) (Outcome, error) {
	p, err := s.load(req.PortfolioID, req.ExpectedRevision)
	if err != nil {
		return Outcome{}, err
	}

	rec := storage.Edit{
		ID:           uuid.NewString(),
		PortfolioID:  p.ID,
		Instruction:  req.Instruction,
		BaseRevision: p.Revision,
	}
	start := time.Now()
	resp, err := s.editor.Edit(ctx, editor.Request{
		Instruction: req.Instruction,
		Document:    p.Document,
		Context:     planner.Context{Role: req.Role},
	})
	rec.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		if errors.Is(err, editor.ErrEmptyInstruction) {
			return Outcome{}, err
		}
		s.recordFailure(rec, req.Role, err)
		return Outcome{}, err
	}
	rec.Role = resp.Meta.Role
	return s.commit(p, resp, rec, storage.SourceAI)
}

// ImportResume extracts text from an uploaded resume and runs a sync edit
// against the portfolio.
func (s *Service) ImportResume(ctx context.Context, id, filename, contentType string, data []byte) (Outcome, error) {
	text, err := resume.Extract(filename, contentType, data)
	if err != nil {
		return Outcome{}, fmt.Errorf("reading resume: %w", err)
	}
	p, err := s.load(id, 0)
	if err != nil {
		return Outcome{}, err
	}

	rec := storage.Edit{
		ID:           uuid.NewString(),
		PortfolioID:  p.ID,
		Instruction:  "import resume " + filename,
		BaseRevision: p.Revision,
	}
	start := time.Now()
	resp, err := s.editor.SyncFromResume(ctx, p.Document, text, planner.Context{})
	rec.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		s.recordFailure(rec, "", err)
		return Outcome{}, err
	}
	rec.Role = resp.Meta.Role
	return s.commit(p, resp, rec, storage.SourceImport)
}

// Preview runs an AI edit without persisting anything.
func (s *Service) Preview(ctx context.Context, req EditRequest) (Preview, error) {
	p, err := s.load(req.PortfolioID, req.ExpectedRevision)
	if err != nil {
		return Preview{}, err
	}
	resp, err := s.editor.Preview(ctx, editor.Request{
		Instruction: req.Instruction,
		Document:    p.Document,
		Context:     planner.Context{Role: req.Role},
	})
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		Document: resp.Document,
		Result:   resp.Result,
		Changes:  diff.Document(p.Document, resp.Document),
		Meta:     resp.Meta,
	}, nil
}

// ApplyPlan executes a caller-constructed plan. With atomic set, a plan
// that does not fully succeed leaves the portfolio untouched.
func (s *Service) ApplyPlan(ctx context.Context, id string, plan action.Plan, atomic bool, expectedRevision int) (Outcome, error) {
	p, err := s.load(id, expectedRevision)
	if err != nil {
		return Outcome{}, err
	}
	doc, res := s.exec.Apply(p.Document, plan)
	out := Outcome{Portfolio: p, Result: res, Changes: diff.Document(p.Document, doc)}
	if atomic && !res.Success {
		out.Changes = nil
		return out, nil
	}
	if len(out.Changes) == 0 {
		return out, nil
	}
	saved, err := s.store.SavePortfolio(p.ID, p.Revision, doc, storage.SourceUser, "")
	if err != nil {
		return Outcome{}, fmt.Errorf("saving portfolio %s: %w", p.ID, err)
	}
	out.Portfolio = saved
	out.Persisted = true
	s.logger.Info("plan applied",
		"portfolio_id", p.ID,
		"revision", saved.Revision,
		"changed", diff.Paths(out.Changes),
	)
	return out, nil
}

// Undo reverts the most recent change that has not already been undone.
// Repeated calls walk further back through the history.
func (s *Service) Undo(ctx context.Context, id string) (storage.Portfolio, error) {
	p, err := s.store.GetPortfolio(id)
	if err != nil {
		return storage.Portfolio{}, err
	}
	revs, err := s.store.ListRevisions(id, historyLimit)
	if err != nil {
		return storage.Portfolio{}, fmt.Errorf("listing revisions: %w", err)
	}

	target := 0
	pending := 0
	for _, r := range revs {
		if r.Source == storage.SourceUndo {
			pending++
			continue
		}
		if pending > 0 {
			pending--
			continue
		}
		target = r.Revision - 1
		break
	}
	if target < 1 {
		return storage.Portfolio{}, ErrNothingToUndo
	}

	reverted, err := s.store.RevertPortfolio(id, target, p.Revision)
	if err != nil {
		return storage.Portfolio{}, fmt.Errorf("reverting to revision %d: %w", target, err)
	}
	s.logger.Info("portfolio reverted", "portfolio_id", id, "restored", target, "revision", reverted.Revision)
	return reverted, nil
}

// EnqueueEdit queues an AI edit for the background worker.
func (s *Service) EnqueueEdit(ctx context.Context, req EditRequest) (storage.Job, error) {
	if strings.TrimSpace(req.Instruction) == "" {
		return storage.Job{}, editor.ErrEmptyInstruction
	}
	if _, err := s.load(req.PortfolioID, req.ExpectedRevision); err != nil {
		return storage.Job{}, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return storage.Job{}, fmt.Errorf("encoding job payload: %w", err)
	}
	id := uuid.NewString()
	if err := s.store.EnqueueJob(storage.Job{ID: id, Type: JobTypeEdit, PayloadJSON: string(payload)}); err != nil {
		return storage.Job{}, fmt.Errorf("enqueueing edit: %w", err)
	}
	return s.store.GetJob(id)
}

func (s *Service) Revisions(ctx context.Context, id string, limit int) ([]storage.Revision, error) {
	if _, err := s.store.GetPortfolio(id); err != nil {
		return nil, err
	}
	return s.store.ListRevisions(id, limit)
}

func (s *Service) Edits(ctx context.Context, id string, limit int) ([]storage.Edit, error) {
	if _, err := s.store.GetPortfolio(id); err != nil {
		return nil, err
	}
	return s.store.ListEdits(id, limit)
}

// EditDetail is a logged edit with its decoded plan and result.
type EditDetail struct {
	storage.Edit
	Plan   *action.Plan     `json:"plan,omitempty"`
	Result *executor.Result `json:"result,omitempty"`
}

func (s *Service) GetEdit(ctx context.Context, id string) (EditDetail, error) {
	e, err := s.store.GetEdit(id)
	if err != nil {
		return EditDetail{}, err
	}
	d := EditDetail{Edit: e}
	if e.ResultJSON != "" {
		var res executor.Result
		if err := json.Unmarshal([]byte(e.ResultJSON), &res); err != nil {
			return EditDetail{}, fmt.Errorf("decoding result of edit %s: %w", id, err)
		}
		d.Result = &res
		d.Plan = &res.Plan
	}
	return d, nil
}

func (s *Service) Stats(ctx context.Context, id string, days int) ([]storage.DayStats, error) {
	if _, err := s.store.GetPortfolio(id); err != nil {
		return nil, err
	}
	return s.store.EditStatsByDay(id, days)
}

func (s *Service) GetJob(ctx context.Context, id string) (storage.Job, error) {
	return s.store.GetJob(id)
}

func (s *Service) load(id string, expectedRevision int) (storage.Portfolio, error) {
	p, err := s.store.GetPortfolio(id)
	if err != nil {
		return storage.Portfolio{}, err
	}
	if expectedRevision != 0 && p.Revision != expectedRevision {
		return storage.Portfolio{}, fmt.Errorf("portfolio %s is at revision %d, not %d: %w", id, p.Revision, expectedRevision, storage.ErrConflict)
	}
	return p, nil
}

// commit persists an AI edit result and records it in the edit log.
func (s *Service) commit(p storage.Portfolio, resp editor.Response, rec storage.Edit, source storage.Source) (Outcome, error) {
	out := Outcome{
		Portfolio: p,
		Result:    resp.Result,
		Changes:   diff.Document(p.Document, resp.Document),
		EditID:    rec.ID,
		Meta:      &resp.Meta,
	}

	switch {
	case resp.Result.Success:
		rec.Status = storage.EditApplied
	case len(resp.Result.AppliedChanges) > 0:
		rec.Status = storage.EditPartial
	default:
		rec.Status = storage.EditFailed
	}
	if err := resp.Result.Err(); err != nil {
		rec.Error = err.Error()
	}

	var commitErr error
	if len(out.Changes) > 0 {
		saved, err := s.store.SavePortfolio(p.ID, p.Revision, resp.Document, source, rec.ID)
		if err != nil {
			commitErr = fmt.Errorf("saving portfolio %s: %w", p.ID, err)
			rec.Status = storage.EditFailed
			rec.Error = commitErr.Error()
		} else {
			out.Portfolio = saved
			out.Persisted = true
			rec.Revision = saved.Revision
		}
	}

	if data, err := json.Marshal(resp.Result); err == nil {
		rec.ResultJSON = string(data)
	}
	if data, err := json.Marshal(resp.Result.Plan); err == nil {
		rec.PlanJSON = string(data)
	}
	if err := s.store.SaveEdit(rec); err != nil {
		s.logger.Warn("recording edit failed", "edit_id", rec.ID, "error", err)
	}
	if commitErr != nil {
		return Outcome{}, commitErr
	}

	s.logger.Info("portfolio edited",
		"portfolio_id", p.ID,
		"edit_id", rec.ID,
		"status", rec.Status,
		"revision", out.Portfolio.Revision,
		"changed", diff.Paths(out.Changes),
	)
	return out, nil
}

func (s *Service) recordFailure(rec storage.Edit, role string, err error) {
	rec.Role = role
	rec.Status = storage.EditGenerationFailed
	rec.Error = err.Error()
	var ge *planner.GenerationError
	if errors.As(err, &ge) {
		rec.Reason = string(ge.Reason)
	}
	if saveErr := s.store.SaveEdit(rec); saveErr != nil {
		s.logger.Warn("recording failed edit failed", "edit_id", rec.ID, "error", saveErr)
	}
}
