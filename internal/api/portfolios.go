package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/folio/internal/action"
	"github.com/kalambet/folio/internal/portfolio"
	"github.com/kalambet/folio/internal/resume"
	"github.com/kalambet/folio/internal/workspace"
)

type CreatePortfolioRequest struct {
	Name     string              `json:"name"`
	Document *portfolio.Document `json:"document,omitempty"`
}

type ReplacePortfolioRequest struct {
	Revision int                `json:"revision"`
	Document portfolio.Document `json:"document"`
}

type EditRequest struct {
	Instruction string `json:"instruction"`
	Role        string `json:"role,omitempty"`
	Revision    int    `json:"revision,omitempty"`
	Async       bool   `json:"async,omitempty"`
}

// ApplyActionsRequest is a caller-built plan. Revision, when set, must match
// the current revision.
type ApplyActionsRequest struct {
	action.Plan
	Revision int `json:"revision,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		fail(w, http.StatusBadRequest, typeInvalid, "invalid request body: %v", err)
		return false
	}
	return true
}

func handleCreatePortfolio(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePortfolioRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p, err := deps.Workspace.Create(r.Context(), req.Name, req.Document)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func handleListPortfolios(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Workspace.List(r.Context(), intParam(r, "limit", 20, 100))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"portfolios": nonNil(list)})
	}
}

func handleGetPortfolio(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Workspace.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleReplacePortfolio(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReplacePortfolioRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Revision <= 0 {
			fail(w, http.StatusBadRequest, typeInvalid, "revision is required")
			return
		}
		p, err := deps.Workspace.Replace(r.Context(), chi.URLParam(r, "id"), req.Revision, req.Document)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleEdit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EditRequest
		if !decodeBody(w, r, &req) {
			return
		}
		wreq := workspace.EditRequest{
			PortfolioID:      chi.URLParam(r, "id"),
			Instruction:      req.Instruction,
			Role:             req.Role,
			ExpectedRevision: req.Revision,
		}

		if req.Async {
			job, err := deps.Workspace.EnqueueEdit(r.Context(), wreq)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]any{"job": job})
			return
		}

		out, err := deps.Workspace.Edit(r.Context(), wreq)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleApplyActions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ApplyActionsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Actions == nil {
			fail(w, http.StatusBadRequest, typeInvalid, "actions is required")
			return
		}
		atomic := r.URL.Query().Get("atomic") == "true"
		out, err := deps.Workspace.ApplyPlan(r.Context(), chi.URLParam(r, "id"), req.Plan, atomic, req.Revision)
		if err != nil {
			writeError(w, err)
			return
		}
		code := http.StatusOK
		if atomic && !out.Result.Success {
			code = http.StatusUnprocessableEntity
		}
		writeJSON(w, code, out)
	}
}

func handlePreview(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EditRequest
		if !decodeBody(w, r, &req) {
			return
		}
		pv, err := deps.Workspace.Preview(r.Context(), workspace.EditRequest{
			PortfolioID:      chi.URLParam(r, "id"),
			Instruction:      req.Instruction,
			Role:             req.Role,
			ExpectedRevision: req.Revision,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pv)
	}
}

// handleImportResume accepts a multipart upload in the "file" field or a
// raw body whose Content-Type names the format.
func handleImportResume(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, resume.MaxPDFBytes+1<<20)
		defer r.Body.Close()

		var (
			name        = r.URL.Query().Get("filename")
			contentType = r.Header.Get("Content-Type")
			data        []byte
			err         error
		)
		if mt, _, _ := mime.ParseMediaType(contentType); strings.HasPrefix(mt, "multipart/") {
			file, header, ferr := r.FormFile("file")
			if ferr != nil {
				fail(w, http.StatusBadRequest, typeInvalid, "file is required: %v", ferr)
				return
			}
			defer file.Close()
			name = header.Filename
			contentType = header.Header.Get("Content-Type")
			data, err = io.ReadAll(file)
		} else {
			data, err = io.ReadAll(r.Body)
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				fail(w, http.StatusRequestEntityTooLarge, typeInvalid, "resume is too large")
				return
			}
			fail(w, http.StatusBadRequest, typeInvalid, "reading upload: %v", err)
			return
		}
		if len(data) == 0 {
			fail(w, http.StatusBadRequest, typeInvalid, "resume is empty")
			return
		}

		out, err := deps.Workspace.ImportResume(r.Context(), chi.URLParam(r, "id"), name, contentType, data)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleRevisions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		revs, err := deps.Workspace.Revisions(r.Context(), chi.URLParam(r, "id"), intParam(r, "limit", 20, 200))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"revisions": nonNil(revs)})
	}
}

func handleUndo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Workspace.Undo(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleListEdits(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edits, err := deps.Workspace.Edits(r.Context(), chi.URLParam(r, "id"), intParam(r, "limit", 20, 200))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"edits": nonNil(edits)})
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Workspace.Stats(r.Context(), chi.URLParam(r, "id"), intParam(r, "days", 30, 365))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"days": nonNil(stats)})
	}
}

func handleGetEdit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := deps.Workspace.GetEdit(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := deps.Workspace.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, j)
	}
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
