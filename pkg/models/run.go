package models

import (
	"time"
)

// Run statuses
const (
	RunStatusPending     = "pending"
	RunStatusConfiguring = "configuring"
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusAborted     = "aborted"
	RunStatusFailed      = "failed"
)

// Run represents one acquisition run (for internal use)
type Run struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	SourceMode  string         `json:"source_mode"`
	Options     map[string]any `json:"options"`
	Planned     int            `json:"planned"`
	Samples     int            `json:"samples"`
	Progress    int            `json:"progress"`
	ErrorMsg    *string        `json:"error_message,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Finished reports whether the run has reached a final status
func (r *Run) Finished() bool {
	switch r.Status {
	case RunStatusCompleted, RunStatusAborted, RunStatusFailed:
		return true
	}
	return false
}

// RunResults represents the measurement table of a finished run
type RunResults struct {
	RunID     string               `json:"run_id"`
	Columns   []string             `json:"columns"`
	SetPoints []float64            `json:"set_points"`
	Samples   []map[string]float64 `json:"samples"`
	Skipped   []SkippedRecord      `json:"skipped,omitempty"`
	Complete  bool                 `json:"complete"`
	CreatedAt time.Time            `json:"created_at"`
}

// SkippedRecord is a list file record dropped during loading
type SkippedRecord struct {
	Line   int      `json:"line" doc:"Line number in the list file"`
	Record []string `json:"record" doc:"Raw record fields"`
	Reason string   `json:"reason" doc:"Why the record was skipped"`
}

// Export represents an exported artefact of a run
type Export struct {
	RunID       string    `json:"run_id"`
	Format      string    `json:"format"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}
