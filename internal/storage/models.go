package storage

import (
	"errors"
	"time"

	"github.com/kalambet/folio/internal/portfolio"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a portfolio changed since the caller read it.
	ErrConflict = errors.New("revision conflict")
)

// Source records who produced a portfolio revision.
type Source string

const (
	SourceUser   Source = "user"
	SourceAI     Source = "ai"
	SourceUndo   Source = "undo"
	SourceImport Source = "import"
)

// Portfolio is the latest revision of a stored document.
type Portfolio struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Revision  int                `json:"revision"`
	Document  portfolio.Document `json:"document"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Revision is one historical state of a portfolio.
type Revision struct {
	PortfolioID string             `json:"portfolioId"`
	Revision    int                `json:"revision"`
	Document    portfolio.Document `json:"document"`
	Source      Source             `json:"source"`
	EditID      string             `json:"editId,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// EditStatus is the outcome of an AI edit.
type EditStatus string

const (
	EditApplied          EditStatus = "applied"
	EditPartial          EditStatus = "partial"
	EditFailed           EditStatus = "failed"
	EditGenerationFailed EditStatus = "generation_failed"
)

// Edit records one AI edit request and what came of it.
type Edit struct {
	ID           string     `json:"id"`
	PortfolioID  string     `json:"portfolioId"`
	Instruction  string     `json:"instruction"`
	Role         string     `json:"role,omitempty"`
	Status       EditStatus `json:"status"`
	Reason       string     `json:"reason,omitempty"`
	PlanJSON     string     `json:"-"`
	ResultJSON   string     `json:"-"`
	Error        string     `json:"error,omitempty"`
	BaseRevision int        `json:"baseRevision"`
	Revision     int        `json:"revision,omitempty"` // 0 when nothing was persisted
	DurationMs   int64      `json:"durationMs"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// DayStats aggregates a portfolio's AI edits for one UTC day.
type DayStats struct {
	Day              string `json:"day"`
	Total            int    `json:"total"`
	Applied          int    `json:"applied"`
	Partial          int    `json:"partial"`
	Failed           int    `json:"failed"`
	GenerationFailed int    `json:"generationFailed"`
}

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

type Job struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	PayloadJSON string    `json:"-"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`
	RunAfter    time.Time `json:"runAfter"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	LastError   string    `json:"lastError,omitempty"`
}
