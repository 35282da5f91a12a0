package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/folio/internal/action"
	"github.com/kalambet/folio/internal/editor"
	"github.com/kalambet/folio/internal/planner"
	"github.com/kalambet/folio/internal/portfolio"
	"github.com/kalambet/folio/internal/resume"
	"github.com/kalambet/folio/internal/storage"
	"github.com/kalambet/folio/internal/workspace"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds what the HTTP API needs.
type Deps struct {
	Workspace     *workspace.Service
	Token         string
	MaxBatchDepth int
	Logger        *slog.Logger
}

// NewHandler returns the folio REST API. Everything except /health requires
// the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxBatchDepth <= 0 {
		deps.MaxBatchDepth = action.DefaultMaxBatchDepth
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(deps.Logger))

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/schema", handleSchema(deps))

		r.Route("/portfolios", func(r chi.Router) {
			r.Post("/", handleCreatePortfolio(deps))
			r.Get("/", handleListPortfolios(deps))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handleGetPortfolio(deps))
				r.Put("/", handleReplacePortfolio(deps))
				r.Post("/edit", handleEdit(deps))
				r.Post("/actions", handleApplyActions(deps))
				r.Post("/preview", handlePreview(deps))
				r.Post("/resume", handleImportResume(deps))
				r.Get("/revisions", handleRevisions(deps))
				r.Post("/undo", handleUndo(deps))
				r.Get("/edits", handleListEdits(deps))
				r.Get("/stats", handleStats(deps))
			})
		})

		r.Get("/edits/{id}", handleGetEdit(deps))
		r.Get("/jobs/{id}", handleGetJob(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleSchema(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"schemaVersion":  action.SchemaVersion,
			"actionTypes":    action.Types,
			"contentFields":  action.ContentFieldNames(),
			"templates":      portfolio.KnownTemplates(),
			"sections":       portfolio.DefaultSectionOrder(),
			"colorModes":     []string{portfolio.ColorModeLight, portfolio.ColorModeDark},
			"maxBatchDepth":  deps.MaxBatchDepth,
			"generatorGuide": planner.SystemPrompt(deps.MaxBatchDepth),
		})
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var ge *planner.GenerationError
	if errors.As(err, &ge) {
		code := http.StatusBadGateway
		if ge.Retryable {
			code = http.StatusServiceUnavailable
		}
		writeErrorBody(w, code, errorBody{
			Message:   err.Error(),
			Type:      typeGeneration,
			Reason:    string(ge.Reason),
			Retryable: ge.Retryable,
		})
		return
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		fail(w, http.StatusNotFound, typeNotFound, "%v", err)
	case errors.Is(err, storage.ErrConflict), errors.Is(err, workspace.ErrNothingToUndo):
		fail(w, http.StatusConflict, typeConflict, "%v", err)
	case errors.Is(err, editor.ErrEmptyInstruction),
		errors.Is(err, workspace.ErrInvalidDocument),
		errors.Is(err, resume.ErrNotPDF),
		errors.Is(err, resume.ErrNoText),
		errors.Is(err, resume.ErrTooLarge):
		fail(w, http.StatusBadRequest, typeInvalid, "%v", err)
	default:
		slog.Error("request failed", "error", err)
		fail(w, http.StatusInternalServerError, typeInternal, "%v", err)
	}
}

// intParam reads a positive integer query parameter, falling back to def
// and capping at max.
func intParam(r *http.Request, name string, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return min(v, max)
}
