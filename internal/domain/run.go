package domain

import (
	"context"
	"sync/atomic"
	"time"
)

type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run represents one batch invocation queued on the single browser session
type Run struct {
	ID     string    `json:"id"`
	Status RunStatus `json:"status"`
	Addons []string  `json:"addons"`

	Percent atomic.Int32 `json:"-"`
	Changed int          `json:"changed"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`

	CancelFunc context.CancelFunc `json:"-"`
}

// RunView is a copy of a Run that is safe to serialize.
type RunView struct {
	ID         string    `json:"id"`
	Status     RunStatus `json:"status"`
	Addons     []string  `json:"addons"`
	Percent    int       `json:"percent"`
	Changed    int       `json:"changed"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func (r *Run) View() RunView {
	addons := make([]string, len(r.Addons))
	copy(addons, r.Addons)
	return RunView{
		ID:         r.ID,
		Status:     r.Status,
		Addons:     addons,
		Percent:    int(r.Percent.Load()),
		Changed:    r.Changed,
		CreatedAt:  r.CreatedAt,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Error:      r.Error,
	}
}
