package models

import "time"

// RunKind identifies the operation recorded in history.
type RunKind string

const (
	RunBackup  RunKind = "backup"
	RunRestore RunKind = "restore"
)

// RunStatus represents the status of a backup or restore run.
type RunStatus string

const (
	// StatusRunning indicates the run is in progress.
	StatusRunning RunStatus = "running"
	// StatusSuccess indicates every module/path completed.
	StatusSuccess RunStatus = "success"
	// StatusPartial indicates the run finished with per-item failures.
	StatusPartial RunStatus = "partial"
	// StatusFailed indicates the run aborted.
	StatusFailed RunStatus = "failed"
)

// Run is a recorded backup or restore operation.
type Run struct {
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	ID         string     `json:"id"`
	Kind       RunKind    `json:"kind"`
	Status     RunStatus  `json:"status"`
	Archive    string     `json:"archive"`
	Modules    string     `json:"modules"`
	Error      string     `json:"error,omitempty"`
	Items      []RunItem  `json:"items,omitempty"`
}

// RunItem is a per-module (backup) or per-path (restore) outcome.
type RunItem struct {
	Module  string `json:"module"`
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

// Event is a progress notification emitted while a run executes.
type Event struct {
	Time    time.Time `json:"time"`
	RunID   string    `json:"run_id"`
	Module  string    `json:"module,omitempty"`
	Stage   string    `json:"stage"`
	Message string    `json:"message,omitempty"`
	Done    bool      `json:"done,omitempty"`
}
