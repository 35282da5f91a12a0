package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveEdit records an AI edit. A zero CreatedAt is set to now.
func (s *Store) SaveEdit(e Edit) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.db.Exec(`
		INSERT INTO ai_edits (id, portfolio_id, instruction, role, status, reason, plan_json, result_json, error, base_revision, revision, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PortfolioID, e.Instruction, e.Role, string(e.Status), e.Reason, e.PlanJSON, e.ResultJSON,
		e.Error, e.BaseRevision, e.Revision, e.DurationMs, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting edit %s: %w", e.ID, err)
	}
	return nil
}

const editColumns = `id, portfolio_id, instruction, role, status, reason, plan_json, result_json, error, base_revision, revision, duration_ms, created_at`

func scanEdit(row scanner) (Edit, error) {
	var e Edit
	var status, createdAt string
	if err := row.Scan(&e.ID, &e.PortfolioID, &e.Instruction, &e.Role, &status, &e.Reason, &e.PlanJSON, &e.ResultJSON,
		&e.Error, &e.BaseRevision, &e.Revision, &e.DurationMs, &createdAt); err != nil {
		return Edit{}, err
	}
	e.Status = EditStatus(status)
	var err error
	if e.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Edit{}, err
	}
	return e, nil
}

func (s *Store) GetEdit(id string) (Edit, error) {
	e, err := scanEdit(s.db.QueryRow(`SELECT `+editColumns+` FROM ai_edits WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Edit{}, ErrNotFound
	}
	return e, err
}

// ListEdits returns a portfolio's AI edits, newest first.
func (s *Store) ListEdits(portfolioID string, limit int) ([]Edit, error) {
	rows, err := s.db.Query(`SELECT `+editColumns+` FROM ai_edits
		WHERE portfolio_id = ? ORDER BY created_at DESC, id LIMIT ?`, portfolioID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Edit
	for rows.Next() {
		e, err := scanEdit(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// EditStatsByDay counts a portfolio's edits per UTC day over the last days
// days, oldest day first. Days without edits are omitted.
func (s *Store) EditStatsByDay(portfolioID string, days int) ([]DayStats, error) {
	if days <= 0 {
		days = 1
	}
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))

	rows, err := s.db.Query(`
		SELECT substr(created_at, 1, 10) AS day,
		       COUNT(*),
		       SUM(CASE WHEN status = 'applied' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'partial' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'generation_failed' THEN 1 ELSE 0 END)
		FROM ai_edits
		WHERE portfolio_id = ? AND created_at >= ?
		GROUP BY day
		ORDER BY day ASC`, portfolioID, formatTime(start))
	if err != nil {
		return nil, fmt.Errorf("querying edit stats: %w", err)
	}
	defer rows.Close()

	var results []DayStats
	for rows.Next() {
		var d DayStats
		if err := rows.Scan(&d.Day, &d.Total, &d.Applied, &d.Partial, &d.Failed, &d.GenerationFailed); err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}
