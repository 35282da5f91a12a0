package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kalambet/folio/internal/portfolio"
)

// CreatePortfolio stores a new portfolio at revision 1 under a generated id.
func (s *Store) CreatePortfolio(name string, doc portfolio.Document, source Source) (Portfolio, error) {
	id := uuid.NewString()
	data, err := json.Marshal(doc)
	if err != nil {
		return Portfolio{}, fmt.Errorf("encoding document: %w", err)
	}
	now := s.now().UTC().Round(0)
	ts := formatTime(now)

	tx, err := s.db.Begin()
	if err != nil {
		return Portfolio{}, fmt.Errorf("beginning create transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO portfolios (id, name, revision, document_json, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)`, id, name, string(data), ts, ts); err != nil {
		return Portfolio{}, fmt.Errorf("inserting portfolio: %w", err)
	}
	if err := insertRevision(tx, id, 1, data, source, "", ts); err != nil {
		return Portfolio{}, err
	}
	if err := tx.Commit(); err != nil {
		return Portfolio{}, fmt.Errorf("committing create: %w", err)
	}

	return Portfolio{ID: id, Name: name, Revision: 1, Document: doc, CreatedAt: now, UpdatedAt: now}, nil
}

const portfolioColumns = `id, name, revision, document_json, created_at, updated_at`

func scanPortfolio(row scanner) (Portfolio, error) {
	var p Portfolio
	var data, createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Name, &p.Revision, &data, &createdAt, &updatedAt); err != nil {
		return Portfolio{}, err
	}
	if err := json.Unmarshal([]byte(data), &p.Document); err != nil {
		return Portfolio{}, fmt.Errorf("decoding document of portfolio %s: %w", p.ID, err)
	}
	var err error
	if p.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Portfolio{}, err
	}
	if p.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Portfolio{}, err
	}
	return p, nil
}

func (s *Store) GetPortfolio(id string) (Portfolio, error) {
	p, err := scanPortfolio(s.db.QueryRow(`SELECT `+portfolioColumns+` FROM portfolios WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Portfolio{}, ErrNotFound
	}
	return p, err
}

// ListPortfolios returns portfolios, most recently updated first.
func (s *Store) ListPortfolios(limit int) ([]Portfolio, error) {
	rows, err := s.db.Query(`SELECT `+portfolioColumns+` FROM portfolios ORDER BY updated_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// SavePortfolio stores doc as the next revision of the portfolio. It fails
// with ErrConflict when the current revision is not expectedRevision.
func (s *Store) SavePortfolio(id string, expectedRevision int, doc portfolio.Document, source Source, editID string) (Portfolio, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return Portfolio{}, fmt.Errorf("encoding document: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Portfolio{}, fmt.Errorf("beginning save transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := s.save(tx, id, expectedRevision, data, source, editID)
	if err != nil {
		return Portfolio{}, err
	}
	if err := tx.Commit(); err != nil {
		return Portfolio{}, fmt.Errorf("committing save: %w", err)
	}
	p.Document = doc
	return p, nil
}

func (s *Store) save(tx *sql.Tx, id string, expectedRevision int, data []byte, source Source, editID string) (Portfolio, error) {
	ts := formatTime(s.now())
	next := expectedRevision + 1
	res, err := tx.Exec(`
		UPDATE portfolios SET revision = ?, document_json = ?, updated_at = ?
		WHERE id = ? AND revision = ?`, next, string(data), ts, id, expectedRevision)
	if err != nil {
		return Portfolio{}, fmt.Errorf("updating portfolio: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Portfolio{}, err
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM portfolios WHERE id = ?`, id).Scan(&exists); err != nil {
			return Portfolio{}, err
		}
		if exists == 0 {
			return Portfolio{}, ErrNotFound
		}
		return Portfolio{}, ErrConflict
	}
	if err := insertRevision(tx, id, next, data, source, editID, ts); err != nil {
		return Portfolio{}, err
	}

	p, err := scanPortfolio(tx.QueryRow(`SELECT `+portfolioColumns+` FROM portfolios WHERE id = ?`, id))
	if err != nil {
		return Portfolio{}, fmt.Errorf("reading saved portfolio: %w", err)
	}
	return p, nil
}

func insertRevision(tx *sql.Tx, id string, revision int, data []byte, source Source, editID, ts string) error {
	if _, err := tx.Exec(`
		INSERT INTO portfolio_revisions (portfolio_id, revision, document_json, source, edit_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, id, revision, string(data), string(source), editID, ts); err != nil {
		return fmt.Errorf("inserting revision %d: %w", revision, err)
	}
	return nil
}

const revisionColumns = `portfolio_id, revision, document_json, source, edit_id, created_at`

func scanRevision(row scanner) (Revision, error) {
	var r Revision
	var data, source, createdAt string
	if err := row.Scan(&r.PortfolioID, &r.Revision, &data, &source, &r.EditID, &createdAt); err != nil {
		return Revision{}, err
	}
	if err := json.Unmarshal([]byte(data), &r.Document); err != nil {
		return Revision{}, fmt.Errorf("decoding revision %d: %w", r.Revision, err)
	}
	r.Source = Source(source)
	var err error
	if r.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Revision{}, err
	}
	return r, nil
}

// ListRevisions returns a portfolio's history, newest first.
func (s *Store) ListRevisions(id string, limit int) ([]Revision, error) {
	rows, err := s.db.Query(`SELECT `+revisionColumns+` FROM portfolio_revisions
		WHERE portfolio_id = ? ORDER BY revision DESC LIMIT ?`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Revision
	for rows.Next() {
		r, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) GetRevision(id string, revision int) (Revision, error) {
	r, err := scanRevision(s.db.QueryRow(`SELECT `+revisionColumns+` FROM portfolio_revisions
		WHERE portfolio_id = ? AND revision = ?`, id, revision))
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, ErrNotFound
	}
	return r, err
}

// RevertPortfolio restores the document of an earlier revision as a new
// revision with source undo. History is never rewritten.
func (s *Store) RevertPortfolio(id string, revision, expectedRevision int) (Portfolio, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Portfolio{}, fmt.Errorf("beginning revert transaction: %w", err)
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRow(`SELECT document_json FROM portfolio_revisions WHERE portfolio_id = ? AND revision = ?`, id, revision).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Portfolio{}, ErrNotFound
	}
	if err != nil {
		return Portfolio{}, fmt.Errorf("reading revision %d: %w", revision, err)
	}

	p, err := s.save(tx, id, expectedRevision, []byte(data), SourceUndo, "")
	if err != nil {
		return Portfolio{}, err
	}
	if err := tx.Commit(); err != nil {
		return Portfolio{}, fmt.Errorf("committing revert: %w", err)
	}
	return p, nil
}
