package editor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/folio/internal/action"
	"github.com/kalambet/folio/internal/executor"
	"github.com/kalambet/folio/internal/planner"
	"github.com/kalambet/folio/internal/portfolio"
)

type mockGenerator struct {
	plan  action.Plan
	err   error
	calls int
	got   struct {
		instruction string
		ctx         planner.Context
	}
}

func (m *mockGenerator) Generate(_ context.Context, instruction string, _ portfolio.Document, pctx planner.Context) (action.Plan, error) {
	m.calls++
	m.got.instruction = instruction
	m.got.ctx = pctx
	return m.plan, m.err
}

type mockRoles struct {
	role  string
	calls int
}

func (m *mockRoles) Detect(context.Context, portfolio.Document) string {
	m.calls++
	return m.role
}

type memCache struct {
	plans map[string]action.Plan
	sets  int
}

func (c *memCache) Get(_ context.Context, key string) (action.Plan, bool, error) {
	p, ok := c.plans[key]
	return p, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, plan action.Plan) error {
	c.sets++
	c.plans[key] = plan
	return nil
}

func staticKey(instruction, role string, _ portfolio.Document) (string, error) {
	return instruction + "|" + role, nil
}

func swapPlan() action.Plan {
	return action.Plan{
		Summary:    "Swap about and skills",
		Confidence: action.ConfidenceHigh,
		Actions:    action.List{action.ReorderSections{NewOrder: []string{"hero", "skills", "about"}}},
	}
}

func threeSections() portfolio.Document {
	return portfolio.Document{SectionOrder: []string{"hero", "about", "skills"}}
}

func TestEdit_SwapScenario(t *testing.T) {
	gen := &mockGenerator{plan: swapPlan()}
	resp, err := New(gen, nil).Edit(context.Background(), Request{
		Instruction: "swap about and skills",
		Document:    threeSections(),
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if diff := cmp.Diff([]string{"hero", "skills", "about"}, resp.Document.SectionOrder); diff != "" {
		t.Errorf("SectionOrder mismatch (-want +got):\n%s", diff)
	}
	if !resp.Result.Success || len(resp.Result.AppliedChanges) != 1 {
		t.Errorf("result = %+v, want success with one applied change", resp.Result)
	}
	if resp.Result.Plan.Confidence != action.ConfidenceHigh {
		t.Errorf("confidence = %q, want passed through", resp.Result.Plan.Confidence)
	}
}

func TestEdit_GenerationFailed(t *testing.T) {
	genErr := &planner.GenerationError{Reason: planner.ReasonRateLimited, Retryable: true, Err: errors.New("429")}
	_, err := New(&mockGenerator{err: genErr}, nil).Edit(context.Background(), Request{
		Instruction: "make it pop",
		Document:    threeSections(),
	})
	if !errors.Is(err, planner.ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	var ge *planner.GenerationError
	if !errors.As(err, &ge) || !ge.Retryable {
		t.Errorf("err = %#v, want retryable GenerationError", err)
	}
}

func TestEdit_PartialFailureIsNotAnError(t *testing.T) {
	gen := &mockGenerator{plan: action.Plan{Confidence: action.ConfidenceLow, Actions: action.List{
		action.UpdateTheme{Theme: action.ThemePatch{PrimaryColor: "not-a-color"}},
		action.UpdateLayout{Template: "classic"},
	}}}
	doc := threeSections()
	doc.Theme.PrimaryColor = "#123456"

	resp, err := New(gen, nil).Edit(context.Background(), Request{Instruction: "x", Document: doc})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if resp.Result.Success || len(resp.Result.Errors) != 1 {
		t.Errorf("result = %+v", resp.Result)
	}
	if resp.Document.Theme.PrimaryColor != "#123456" || resp.Document.Template != "classic" {
		t.Errorf("document = %+v", resp.Document)
	}
}

func TestEdit_EmptyInstruction(t *testing.T) {
	gen := &mockGenerator{plan: swapPlan()}
	if _, err := New(gen, nil).Edit(context.Background(), Request{Instruction: "  "}); !errors.Is(err, ErrEmptyInstruction) {
		t.Fatalf("err = %v, want ErrEmptyInstruction", err)
	}
	if gen.calls != 0 {
		t.Error("generator should not be called")
	}
}

func TestEdit_RoleDetection(t *testing.T) {
	gen := &mockGenerator{plan: swapPlan()}
	roles := &mockRoles{role: "photographer"}
	ed := New(gen, nil, WithRoleDetector(roles))

	resp, err := ed.Edit(context.Background(), Request{Instruction: "x", Document: threeSections()})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if gen.got.ctx.Role != "photographer" || !resp.Meta.RoleDetected {
		t.Errorf("role = %q detected = %v", gen.got.ctx.Role, resp.Meta.RoleDetected)
	}

	_, err = ed.Edit(context.Background(), Request{Instruction: "x", Document: threeSections(), Context: planner.Context{Role: "chef"}})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if roles.calls != 1 || gen.got.ctx.Role != "chef" {
		t.Errorf("caller role should win: calls = %d role = %q", roles.calls, gen.got.ctx.Role)
	}
}

func TestEdit_Cache(t *testing.T) {
	gen := &mockGenerator{plan: action.Plan{Confidence: action.ConfidenceHigh, Actions: action.List{action.AddSection{Title: "Press"}}}}
	cache := &memCache{plans: map[string]action.Plan{}}
	ed := New(gen, executor.New(executor.WithIDGenerator(func() string { return "custom-1" })), WithCache(cache, staticKey))

	first, err := ed.Edit(context.Background(), Request{Instruction: "add press", Document: threeSections()})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if cache.sets != 1 || first.Meta.CacheHit {
		t.Fatalf("sets = %d hit = %v", cache.sets, first.Meta.CacheHit)
	}
	if cached := cache.plans["add press|"].Actions[0].(action.AddSection); cached.SectionID != "custom-1" {
		t.Errorf("cached plan should carry the generated id, got %q", cached.SectionID)
	}

	second, err := ed.Edit(context.Background(), Request{Instruction: "add press", Document: threeSections()})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if gen.calls != 1 || !second.Meta.CacheHit {
		t.Errorf("calls = %d hit = %v, want cached plan reused", gen.calls, second.Meta.CacheHit)
	}
	if diff := cmp.Diff(first.Document, second.Document); diff != "" {
		t.Errorf("replayed document differs (-first +second):\n%s", diff)
	}
}

func TestEdit_CacheHitSkipsRoleDetection(t *testing.T) {
	gen := &mockGenerator{plan: swapPlan()}
	roles := &mockRoles{role: "photographer"}
	cache := &memCache{plans: map[string]action.Plan{}}
	ed := New(gen, nil, WithRoleDetector(roles), WithCache(cache, staticKey))

	if _, err := ed.Edit(context.Background(), Request{Instruction: "swap", Document: threeSections()}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if _, ok := cache.plans["swap|"]; !ok {
		t.Fatalf("plan cached under %v, want the caller's empty role", cache.plans)
	}

	// A detector that would now answer differently must not change the key.
	roles.role = "chef"
	resp, err := ed.Edit(context.Background(), Request{Instruction: "swap", Document: threeSections()})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if !resp.Meta.CacheHit || resp.Meta.RoleDetected {
		t.Errorf("meta = %+v, want a cache hit without detection", resp.Meta)
	}
	if roles.calls != 1 || gen.calls != 1 {
		t.Errorf("detector calls = %d generator calls = %d, want 1 and 1", roles.calls, gen.calls)
	}
}

func TestEdit_CacheSkipsFailures(t *testing.T) {
	gen := &mockGenerator{plan: action.Plan{Confidence: action.ConfidenceHigh, Actions: action.List{action.RemoveSection{SectionID: "blog"}}}}
	cache := &memCache{plans: map[string]action.Plan{}}
	if _, err := New(gen, nil, WithCache(cache, staticKey)).Edit(context.Background(), Request{Instruction: "x", Document: threeSections()}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if cache.sets != 0 {
		t.Error("failed plans must not be cached")
	}
}

func TestPreview_DoesNotCache(t *testing.T) {
	cache := &memCache{plans: map[string]action.Plan{}}
	ed := New(&mockGenerator{plan: swapPlan()}, nil, WithCache(cache, staticKey))
	if _, err := ed.Preview(context.Background(), Request{Instruction: "swap", Document: threeSections()}); err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if cache.sets != 0 {
		t.Error("Preview wrote to the cache")
	}
}

func TestEdit_CanceledAfterGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := planner.GeneratorFunc(func(context.Context, string, portfolio.Document, planner.Context) (action.Plan, error) {
		cancel()
		return swapPlan(), nil
	})
	_, err := New(gen, nil).Edit(ctx, Request{Instruction: "swap", Document: threeSections()})
	var ge *planner.GenerationError
	if !errors.As(err, &ge) || ge.Reason != planner.ReasonCanceled {
		t.Fatalf("err = %v, want canceled", err)
	}
}

func TestSyncFromResume(t *testing.T) {
	gen := &mockGenerator{plan: action.Plan{Confidence: action.ConfidenceMedium, Actions: action.List{}}}
	resume := "Senior engineer. " + strings.Repeat("é", maxResumeChars)

	if _, err := New(gen, nil).SyncFromResume(context.Background(), threeSections(), resume, planner.Context{}); err != nil {
		t.Fatalf("SyncFromResume: %v", err)
	}
	if !strings.Contains(gen.got.instruction, "[Resume]\nSenior engineer.") {
		t.Errorf("instruction = %.80q", gen.got.instruction)
	}
	idx := strings.Index(gen.got.instruction, "[Resume]\n")
	if body := gen.got.instruction[idx+len("[Resume]\n"):]; len(body) > maxResumeChars || !strings.HasSuffix(body, "é") {
		t.Errorf("resume body length = %d, want truncated on a rune boundary", len(body))
	}

	if _, err := New(gen, nil).SyncFromResume(context.Background(), threeSections(), "  ", planner.Context{}); err == nil {
		t.Error("expected error for empty resume")
	}
}
