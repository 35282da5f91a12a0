package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/folio/internal/planner"
	"github.com/kalambet/folio/internal/storage"
	"github.com/kalambet/folio/internal/workspace"
)

const testToken = "test-token-12345"

func setupHandler(t *testing.T, gen planner.Generator) (http.Handler, *workspace.Service) {
	t.Helper()
	ws := newTestWorkspace(t, gen)
	return NewHandler(Deps{Workspace: ws, Token: testToken}), ws
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v; body = %s", err, rr.Body.String())
	}
}

type testErrorReply struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Reason    string `json:"reason"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func TestHealth_NoAuth(t *testing.T) {
	h, _ := setupHandler(t, &stubGenerator{})
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestAuth(t *testing.T) {
	h, _ := setupHandler(t, &stubGenerator{})

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"valid", testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, authReq(http.MethodGet, "/portfolios", "", tt.token))
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestAuth_EmptyServerToken(t *testing.T) {
	h := NewHandler(Deps{Workspace: newTestWorkspace(t, &stubGenerator{})})
	req := httptest.NewRequest(http.MethodGet, "/portfolios", nil)
	req.Header.Set("Authorization", "Bearer ")
	if rr := serve(h, req); rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 when no token is configured", rr.Code)
	}
}

func TestSchema(t *testing.T) {
	h, _ := setupHandler(t, &stubGenerator{})
	rr := serve(h, authReq(http.MethodGet, "/schema", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got map[string]any
	decode(t, rr, &got)
	if got["maxBatchDepth"] != float64(3) {
		t.Errorf("maxBatchDepth = %v", got["maxBatchDepth"])
	}
	types, _ := got["actionTypes"].([]any)
	if len(types) == 0 {
		t.Error("actionTypes is empty")
	}
}

func TestCreateAndGetPortfolio(t *testing.T) {
	h, _ := setupHandler(t, &stubGenerator{})

	rr := serve(h, authReq(http.MethodPost, "/portfolios", `{"name":"jane","document":{"heroTitle":"Jane","template":"modern"}}`, testToken))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var created storage.Portfolio
	decode(t, rr, &created)
	if created.ID == "" || created.Revision != 1 {
		t.Fatalf("created = %+v", created)
	}

	rr = serve(h, authReq(http.MethodGet, "/portfolios/"+created.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got storage.Portfolio
	decode(t, rr, &got)
	if got.Document.HeroTitle != "Jane" {
		t.Errorf("heroTitle = %q", got.Document.HeroTitle)
	}

	rr = serve(h, authReq(http.MethodGet, "/portfolios", "", testToken))
	var list struct {
		Portfolios []storage.Portfolio `json:"portfolios"`
	}
	decode(t, rr, &list)
	if len(list.Portfolios) != 1 {
		t.Errorf("listed %d portfolios, want 1", len(list.Portfolios))
	}
}

func TestCreatePortfolio_Invalid(t *testing.T) {
	h, _ := setupHandler(t, &stubGenerator{})

	for _, body := range []string{`{not json`, `{"name":"x","document":{"template":"brutalist"}}`} {
		rr := serve(h, authReq(http.MethodPost, "/portfolios", body, testToken))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rr.Code)
		}
	}
}

func TestGetPortfolio_NotFound(t *testing.T) {
	h, _ := setupHandler(t, &stubGenerator{})
	rr := serve(h, authReq(http.MethodGet, "/portfolios/missing", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	var eb testErrorReply
	decode(t, rr, &eb)
	if eb.Error.Type != "not_found_error" {
		t.Errorf("type = %q", eb.Error.Type)
	}
}

func TestReplacePortfolio_Conflict(t *testing.T) {
	h, ws := setupHandler(t, &stubGenerator{})
	p := seedPortfolio(t, ws)

	rr := serve(h, authReq(http.MethodPut, "/portfolios/"+p.ID, `{"revision":1,"document":{"heroTitle":"New"}}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	rr = serve(h, authReq(http.MethodPut, "/portfolios/"+p.ID, `{"revision":1,"document":{"heroTitle":"Stale"}}`, testToken))
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rr.Code)
	}

	rr = serve(h, authReq(http.MethodPut, "/portfolios/"+p.ID, `{"document":{}}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without revision", rr.Code)
	}
}

func TestEdit(t *testing.T) {
	h, ws := setupHandler(t, &stubGenerator{plan: swapPlan()})
	p := seedPortfolio(t, ws)

	rr := serve(h, authReq(http.MethodPost, "/portfolios/"+p.ID+"/edit", `{"instruction":"swap about and skills"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var out workspace.Outcome
	decode(t, rr, &out)
	if !out.Persisted || out.Portfolio.Revision != 2 || out.EditID == "" {
		t.Errorf("outcome = %+v", out)
	}
	if got := strings.Join(out.Portfolio.Document.SectionOrder, ","); got != "hero,skills,about" {
		t.Errorf("sectionOrder = %s", got)
	}

	rr = serve(h, authReq(http.MethodGet, "/edits/"+out.EditID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("get edit status = %d", rr.Code)
	}
	var detail map[string]any
	decode(t, rr, &detail)
	if detail["status"] != string(storage.EditApplied) || detail["plan"] == nil {
		t.Errorf("edit detail = %v", detail)
	}
}

func TestEdit_EmptyInstruction(t *testing.T) {
	h, ws := setupHandler(t, &stubGenerator{plan: swapPlan()})
	p := seedPortfolio(t, ws)

	rr := serve(h, authReq(http.MethodPost, "/portfolios/"+p.ID+"/edit", `{"instruction":"  "}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestEdit_GenerationErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       *planner.GenerationError
		wantCode  int
		retryable bool
	}{
		{"transient", &planner.GenerationError{Reason: planner.ReasonRateLimited, Retryable: true, Err: errors.New("429")}, http.StatusServiceUnavailable, true},
		{"terminal", &planner.GenerationError{Reason: planner.ReasonUnauthorized, Err: errors.New("401")}, http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ws := setupHandler(t, &stubGenerator{err: tt.err})
			p := seedPortfolio(t, ws)

			rr := serve(h, authReq(http.MethodPost, "/portfolios/"+p.ID+"/edit", `{"instruction":"x"}`, testToken))
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			var eb testErrorReply
			decode(t, rr, &eb)
			if eb.Error.Reason != string(tt.err.Reason) || eb.Error.Retryable != tt.retryable {
				t.Errorf("error = %+v", eb.Error)
			}
		})
	}
}

func TestEdit_Async(t *testing.T) {
	h, ws := setupHandler(t, &stubGenerator{plan: swapPlan()})
	p := seedPortfolio(t, ws)

	rr := serve(h, authReq(http.MethodPost, "/portfolios/"+p.ID+"/edit", `{"instruction":"swap","async":true}`, testToken))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Job storage.Job `json:"job"`
	}
	decode(t, rr, &resp)
	if resp.Job.ID == "" || resp.Job.Status != storage.JobPending {
		t.Fatalf("job = %+v", resp.Job)
	}

	rr = serve(h, authReq(http.MethodGet, "/jobs/"+resp.Job.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Errorf("get job status = %d", rr.Code)
	}
}

func TestApplyActions(t *testing.T) {
	h, ws := setupHandler(t, &stubGenerator{})
	p := seedPortfolio(t, ws)

	body := `{"summary":"manual","confidence":"high","actions":[{"type":"update_layout","payload":{"template":"classic"}}]}`
	rr := serve(h, authReq(http.MethodPost, "/portfolios/"+p.ID+"/actions", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var out workspace.Outcome
	decode(t, rr, &out)
	if out.Portfolio.Document.Template != "classic" || !out.Result.Success {
		t.Errorf("outcome = %+v", out)
	}
}

func TestApplyActions_Atomic(t *testing.T) {
	h, ws := setupHandler(t, &stubGenerator{})
	p := seedPortfolio(t, ws)

	body := `{"summary":"manual","confidence":"high","actions":[
		{"type":"update_layout","payload":{"template":"classic"}},
		{"type":"remove_section","payload":{"sectionId":"ghost"}}]}`
	rr := serve(h, authReq(http.MethodPost, "/portfolios/"+p.ID+"/actions?atomic=true", body, testToken))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422; body = %s", rr.Code, rr.Body.String())
	}

	got, err := ws.Get(t.Context(), p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Revision != 1 {
		t.Errorf("revision = %d, want unchanged", got.Revision)
	}
}

func TestApplyActions_MissingActions(t *testing.T) {
	h, ws := setupHandler(t, &stubGenerator{})
	p := seedPortfolio(t, ws)

	rr := serve(h, authReq(http.MethodPost, "/portfolios/"+p.ID+"/actions", `{"summary":"x"}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestPreview_DoesNotPersist(t *testing.T) {
	h, ws := setupHandler(t, &stubGenerator{plan: swapPlan()})
	p := seedPortfolio(t, ws)

	rr := serve(h, authReq(http.MethodPost, "/portfolios/"+p.ID+"/preview", `{"instruction":"swap"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var pv workspace.Preview
	decode(t, rr, &pv)
	if len(pv.Changes) != 1 {
		t.Errorf("changes = %+v", pv.Changes)
	}

	got, _ := ws.Get(t.Context(), p.ID)
	if got.Revision != 1 {
		t.Errorf("preview persisted revision %d", got.Revision)
	}
}

func TestUndoAndRevisions(t *testing.T) {
	h, ws := setupHandler(t, &stubGenerator{plan: swapPlan()})
	p := seedPortfolio(t, ws)

	serve(h, authReq(http.MethodPost, "/portfolios/"+p.ID+"/edit", `{"instruction":"swap"}`, testToken))

	rr := serve(h, authReq(http.MethodPost, "/portfolios/"+p.ID+"/undo", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("undo status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var undone storage.Portfolio
	decode(t, rr, &undone)
	if got := strings.Join(undone.Document.SectionOrder, ","); got != "hero,about,skills" {
		t.Errorf("sectionOrder = %s after undo", got)
	}

	rr = serve(h, authReq(http.MethodPost, "/portfolios/"+p.ID+"/undo", "", testToken))
	if rr.Code != http.StatusConflict {
		t.Errorf("second undo status = %d, want 409", rr.Code)
	}

	rr = serve(h, authReq(http.MethodGet, "/portfolios/"+p.ID+"/revisions", "", testToken))
	var revs struct {
		Revisions []storage.Revision `json:"revisions"`
	}
	decode(t, rr, &revs)
	if len(revs.Revisions) != 3 || revs.Revisions[0].Source != storage.SourceUndo {
		t.Errorf("revisions = %+v", revs.Revisions)
	}
}

func TestEditsAndStats(t *testing.T) {
	h, ws := setupHandler(t, &stubGenerator{plan: swapPlan()})
	p := seedPortfolio(t, ws)

	serve(h, authReq(http.MethodPost, "/portfolios/"+p.ID+"/edit", `{"instruction":"swap"}`, testToken))

	rr := serve(h, authReq(http.MethodGet, "/portfolios/"+p.ID+"/edits", "", testToken))
	var edits struct {
		Edits []storage.Edit `json:"edits"`
	}
	decode(t, rr, &edits)
	if len(edits.Edits) != 1 {
		t.Fatalf("edits = %+v", edits.Edits)
	}

	rr = serve(h, authReq(http.MethodGet, "/portfolios/"+p.ID+"/stats?days=7", "", testToken))
	var stats struct {
		Days []storage.DayStats `json:"days"`
	}
	decode(t, rr, &stats)
	if len(stats.Days) != 1 || stats.Days[0].Applied != 1 {
		t.Errorf("stats = %+v", stats.Days)
	}
}

func TestImportResume(t *testing.T) {
	h, ws := setupHandler(t, &stubGenerator{plan: swapPlan()})
	p := seedPortfolio(t, ws)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "resume.txt")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("Jane Doe\nSenior engineer at Acme."))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/portfolios/"+p.ID+"/resume", &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := serve(h, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var out workspace.Outcome
	decode(t, rr, &out)
	if !out.Persisted {
		t.Errorf("outcome = %+v", out)
	}
}

func TestImportResume_Empty(t *testing.T) {
	h, ws := setupHandler(t, &stubGenerator{plan: swapPlan()})
	p := seedPortfolio(t, ws)

	req := httptest.NewRequest(http.MethodPost, "/portfolios/"+p.ID+"/resume?filename=cv.txt", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "text/plain")
	if rr := serve(h, req); rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestImportResume_NotPDF(t *testing.T) {
	h, ws := setupHandler(t, &stubGenerator{plan: swapPlan()})
	p := seedPortfolio(t, ws)

	req := httptest.NewRequest(http.MethodPost, "/portfolios/"+p.ID+"/resume?filename=cv.pdf", strings.NewReader("plain text"))
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/pdf")
	if rr := serve(h, req); rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}
