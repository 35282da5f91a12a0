package storage

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/folio/internal/portfolio"
)

func sampleDoc(title string) portfolio.Document {
	doc := portfolio.New()
	doc.HeroTitle = title
	doc.Skills = []string{"Go", "SQL"}
	return doc
}

func TestCreateAndGetPortfolio(t *testing.T) {
	s := openTestStore(t)

	created, err := s.CreatePortfolio("Jane", sampleDoc("Jane Doe"), SourceUser)
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	if created.ID == "" || created.Revision != 1 {
		t.Fatalf("created = %+v", created)
	}

	got, err := s.GetPortfolio(created.ID)
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("portfolio mismatch (-created +got):\n%s", diff)
	}

	revs, err := s.ListRevisions(created.ID, 10)
	if err != nil {
		t.Fatalf("ListRevisions: %v", err)
	}
	if len(revs) != 1 || revs[0].Revision != 1 || revs[0].Source != SourceUser {
		t.Errorf("revisions = %+v", revs)
	}
}

func TestGetPortfolioNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetPortfolio("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSavePortfolio(t *testing.T) {
	s := openTestStore(t)
	p, err := s.CreatePortfolio("Jane", sampleDoc("v1"), SourceUser)
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}

	saved, err := s.SavePortfolio(p.ID, 1, sampleDoc("v2"), SourceAI, "edit-1")
	if err != nil {
		t.Fatalf("SavePortfolio: %v", err)
	}
	if saved.Revision != 2 || saved.Document.HeroTitle != "v2" {
		t.Errorf("saved = %+v", saved)
	}

	rev, err := s.GetRevision(p.ID, 2)
	if err != nil {
		t.Fatalf("GetRevision: %v", err)
	}
	if rev.Source != SourceAI || rev.EditID != "edit-1" || rev.Document.HeroTitle != "v2" {
		t.Errorf("revision = %+v", rev)
	}
}

func TestSavePortfolio_EmptySectionOrder(t *testing.T) {
	s := openTestStore(t)
	p, err := s.CreatePortfolio("Jane", sampleDoc("v1"), SourceUser)
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}

	doc := sampleDoc("v2")
	doc.SectionOrder = []string{}
	if _, err := s.SavePortfolio(p.ID, 1, doc, SourceAI, ""); err != nil {
		t.Fatalf("SavePortfolio: %v", err)
	}

	got, err := s.GetPortfolio(p.ID)
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}
	if got.Document.SectionOrder == nil {
		t.Fatal("empty section order came back unset")
	}
	if ids := got.Document.SectionIDs(); len(ids) != 0 {
		t.Errorf("SectionIDs() = %v, want none", ids)
	}
}

func TestSavePortfolio_Conflict(t *testing.T) {
	s := openTestStore(t)
	p, err := s.CreatePortfolio("Jane", sampleDoc("v1"), SourceUser)
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	if _, err := s.SavePortfolio(p.ID, 1, sampleDoc("v2"), SourceUser, ""); err != nil {
		t.Fatalf("SavePortfolio: %v", err)
	}

	if _, err := s.SavePortfolio(p.ID, 1, sampleDoc("stale"), SourceUser, ""); !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
	if _, err := s.SavePortfolio("missing", 1, sampleDoc("x"), SourceUser, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	got, err := s.GetPortfolio(p.ID)
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}
	if got.Revision != 2 || got.Document.HeroTitle != "v2" {
		t.Errorf("conflicting save changed the portfolio: %+v", got)
	}
	revs, err := s.ListRevisions(p.ID, 10)
	if err != nil {
		t.Fatalf("ListRevisions: %v", err)
	}
	if len(revs) != 2 {
		t.Errorf("got %d revisions, want 2", len(revs))
	}
}

func TestRevertPortfolio(t *testing.T) {
	s := openTestStore(t)
	p, err := s.CreatePortfolio("Jane", sampleDoc("v1"), SourceUser)
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	if _, err := s.SavePortfolio(p.ID, 1, sampleDoc("v2"), SourceAI, "e1"); err != nil {
		t.Fatalf("SavePortfolio: %v", err)
	}

	reverted, err := s.RevertPortfolio(p.ID, 1, 2)
	if err != nil {
		t.Fatalf("RevertPortfolio: %v", err)
	}
	if reverted.Revision != 3 || reverted.Document.HeroTitle != "v1" {
		t.Errorf("reverted = %+v", reverted)
	}

	revs, err := s.ListRevisions(p.ID, 10)
	if err != nil {
		t.Fatalf("ListRevisions: %v", err)
	}
	var sources []Source
	for _, r := range revs {
		sources = append(sources, r.Source)
	}
	if diff := cmp.Diff([]Source{SourceUndo, SourceAI, SourceUser}, sources); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.RevertPortfolio(p.ID, 9, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.RevertPortfolio(p.ID, 1, 2); !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestListPortfolios(t *testing.T) {
	s := openTestStore(t)
	first, err := s.CreatePortfolio("first", sampleDoc("a"), SourceUser)
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	if _, err := s.CreatePortfolio("second", sampleDoc("b"), SourceImport); err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	if _, err := s.SavePortfolio(first.ID, 1, sampleDoc("a2"), SourceUser, ""); err != nil {
		t.Fatalf("SavePortfolio: %v", err)
	}

	list, err := s.ListPortfolios(10)
	if err != nil {
		t.Fatalf("ListPortfolios: %v", err)
	}
	if len(list) != 2 || list[0].Name != "first" {
		t.Errorf("list = %+v, want most recently updated first", list)
	}

	list, err = s.ListPortfolios(1)
	if err != nil {
		t.Fatalf("ListPortfolios: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("limit ignored: %d results", len(list))
	}
}
