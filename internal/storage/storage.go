package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no run matches an id or prefix.
var ErrNotFound = errors.New("run not found")

// Run is one journaled execution.
type Run struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	Language   string    `json:"language"`
	Source     string    `json:"source"`
	Output     string    `json:"output"`
	Failed     bool      `json:"failed"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunListOptions controls filtering and pagination for ListRuns.
type RunListOptions struct {
	SessionID string
	Language  string
	Limit     int
	Offset    int
}

// Store is the persistence interface for the run journal.
type Store interface {
	// RecordRun inserts a run. The ID field must be set by the caller;
	// CreatedAt is set when zero.
	RecordRun(ctx context.Context, r *Run) error

	// GetRun returns a run by ID or unique ID prefix.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs ordered by created_at descending.
	ListRuns(ctx context.Context, opts RunListOptions) ([]Run, error)

	// DeleteRun removes a run by ID or unique ID prefix.
	DeleteRun(ctx context.Context, id string) error

	// Close releases resources.
	Close() error
}
