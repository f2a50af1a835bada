package models

import "time"

// ModuleStatus is the outcome of backing up a single module.
type ModuleStatus string

const (
	// ModuleSucceeded indicates every declared path (or the backup script) succeeded.
	ModuleSucceeded ModuleStatus = "succeeded"
	// ModulePartial indicates the builtin copy ran but some declared paths were absent.
	ModulePartial ModuleStatus = "partial"
	// ModuleFailed indicates the module could not be backed up.
	ModuleFailed ModuleStatus = "failed"
	// ModuleCanceled indicates the run was canceled before the module started.
	ModuleCanceled ModuleStatus = "canceled"
)

// ModuleResult describes what happened to one module during a backup.
type ModuleResult struct {
	Module       string       `json:"module"`
	Status       ModuleStatus `json:"status"`
	Reason       string       `json:"reason,omitempty"`
	MissingPaths []string     `json:"missing_paths,omitempty"`
	Profiles     []string     `json:"profiles,omitempty"`
}

// BackupReport enumerates per-module outcomes of a backup run.
type BackupReport struct {
	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Archive     string         `json:"archive,omitempty"`
	ArchiveSize int64          `json:"archive_size,omitempty"`
	Error       string         `json:"error,omitempty"`
	Modules     []ModuleResult `json:"modules"`
}

// Result returns the entry for module, if present.
func (r *BackupReport) Result(module string) (ModuleResult, bool) {
	for _, m := range r.Modules {
		if m.Module == module {
			return m, true
		}
	}
	return ModuleResult{}, false
}

// Failed returns the modules that did not back up.
func (r *BackupReport) Failed() []ModuleResult {
	var failed []ModuleResult
	for _, m := range r.Modules {
		if m.Status == ModuleFailed || m.Status == ModuleCanceled {
			failed = append(failed, m)
		}
	}
	return failed
}

// OK reports full success: an archive was produced and no module failed.
// Partial modules count as success since absent paths are not errors.
func (r *BackupReport) OK() bool {
	return r.Error == "" && len(r.Failed()) == 0
}

// PathKind distinguishes declared backup paths from profiles.
type PathKind string

const (
	KindData    PathKind = "data"
	KindProfile PathKind = "profile"
)

// PathOutcome is the result of replaying one entry during a restore.
type PathOutcome string

const (
	OutcomeCopied       PathOutcome = "copied"
	OutcomeSkipped      PathOutcome = "skipped"
	OutcomeSourceAbsent PathOutcome = "source-absent"
	OutcomeFailed       PathOutcome = "failed"
)

// PathResult records the outcome for one restored entry.
type PathResult struct {
	Kind        PathKind    `json:"kind"`
	Name        string      `json:"name"`
	Source      string      `json:"source"`
	Destination string      `json:"destination"`
	Outcome     PathOutcome `json:"outcome"`
	Reason      string      `json:"reason,omitempty"`
}

// RestoreMode selects between replaying everything and a profile subset.
type RestoreMode string

const (
	RestoreFull    RestoreMode = "full"
	RestorePartial RestoreMode = "partial"
)

// RestoreReport enumerates per-path outcomes of a restore.
type RestoreReport struct {
	RunID          string       `json:"run_id"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at"`
	Archive        string       `json:"archive"`
	Module         string       `json:"module,omitempty"`
	Mode           RestoreMode  `json:"mode"`
	FinalState     string       `json:"final_state"`
	ScriptRan      bool         `json:"script_ran"`
	SkippedModules []string     `json:"skipped_modules,omitempty"`
	Error          string       `json:"error,omitempty"`
	Paths          []PathResult `json:"paths"`

	// ModuleRequested is set when the caller named Module, so the other
	// subtrees were left out on purpose.
	ModuleRequested bool `json:"module_requested"`
}

// Count returns how many entries ended with outcome.
func (r *RestoreReport) Count(outcome PathOutcome) int {
	n := 0
	for _, p := range r.Paths {
		if p.Outcome == outcome {
			n++
		}
	}
	return n
}

// Find returns the result for a named entry of the given kind.
func (r *RestoreReport) Find(kind PathKind, name string) (PathResult, bool) {
	for _, p := range r.Paths {
		if p.Kind == kind && p.Name == name {
			return p, true
		}
	}
	return PathResult{}, false
}

// OK reports that the restore completed, no entry failed and no module in
// the archive was left out unless the caller picked one.
func (r *RestoreReport) OK() bool {
	if len(r.SkippedModules) > 0 && !r.ModuleRequested {
		return false
	}
	return r.Error == "" && r.Count(OutcomeFailed) == 0
}
