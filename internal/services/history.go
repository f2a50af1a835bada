package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pandeptwidyaop/modbackup/internal/database"
	"github.com/pandeptwidyaop/modbackup/internal/models"
)

var ErrRunNotFound = errors.New("run not found")

// HistoryService records backup and restore runs.
type HistoryService struct {
	db *database.DB
}

// NewHistoryService creates a new HistoryService instance.
func NewHistoryService(db *database.DB) *HistoryService {
	return &HistoryService{db: db}
}

// CreateRun inserts a running entry and returns it.
func (s *HistoryService) CreateRun(kind models.RunKind, modules []string, archive string) (*models.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.Exec(
		"INSERT INTO runs (id, kind, status, archive, modules, started_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, kind, models.StatusRunning, archive, strings.Join(modules, ","), now,
	)
	if err != nil {
		return nil, err
	}

	return s.GetRun(id)
}

// FinishBackup stores the outcome of a backup run and its per-module items.
func (s *HistoryService) FinishBackup(runID string, report *models.BackupReport, runErr error) error {
	items := make([]models.RunItem, 0, len(report.Modules))
	for _, m := range report.Modules {
		items = append(items, models.RunItem{
			Module:  m.Module,
			Kind:    "module",
			Path:    strings.Join(m.MissingPaths, ","),
			Outcome: string(m.Status),
			Reason:  m.Reason,
		})
	}

	status := models.StatusSuccess
	switch {
	case runErr != nil:
		status = models.StatusFailed
	case !report.OK():
		status = models.StatusPartial
	}

	return s.finish(runID, status, report.Archive, errString(runErr), report, items)
}

// FinishRestore stores the outcome of a restore run and its per-path items.
func (s *HistoryService) FinishRestore(runID string, report *models.RestoreReport, runErr error) error {
	items := make([]models.RunItem, 0, len(report.Paths))
	for _, p := range report.Paths {
		items = append(items, models.RunItem{
			Module:  report.Module,
			Kind:    string(p.Kind),
			Path:    p.Destination,
			Outcome: string(p.Outcome),
			Reason:  p.Reason,
		})
	}

	status := models.StatusSuccess
	switch {
	case runErr != nil:
		status = models.StatusFailed
	case !report.OK():
		status = models.StatusPartial
	}

	return s.finish(runID, status, report.Archive, errString(runErr), report, items)
}

func (s *HistoryService) finish(runID string, status models.RunStatus, archive, errMsg string, summary interface{}, items []models.RunItem) error {
	var summaryJSON string
	if bytes, err := json.Marshal(summary); err == nil {
		summaryJSON = string(bytes)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(
		"UPDATE runs SET status = ?, archive = ?, error = ?, summary = ?, finished_at = ? WHERE id = ?",
		status, archive, errMsg, summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}

	for _, item := range items {
		_, err := tx.Exec(
			"INSERT INTO run_items (run_id, module, kind, path, outcome, reason) VALUES (?, ?, ?, ?, ?, ?)",
			runID, item.Module, item.Kind, item.Path, item.Outcome, item.Reason,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRun returns a run with its items.
func (s *HistoryService) GetRun(id string) (*models.Run, error) {
	run, err := scanRun(s.db.QueryRow(
		"SELECT id, kind, status, archive, modules, error, started_at, finished_at FROM runs WHERE id = ?", id,
	))
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		"SELECT module, kind, path, outcome, reason FROM run_items WHERE run_id = ? ORDER BY id", id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.RunItem
		var path, reason sql.NullString
		if err := rows.Scan(&item.Module, &item.Kind, &path, &item.Outcome, &reason); err != nil {
			return nil, err
		}
		item.Path = path.String
		item.Reason = reason.String
		run.Items = append(run.Items, item)
	}

	return run, rows.Err()
}

// ListRuns returns runs newest first.
func (s *HistoryService) ListRuns(limit, offset int) ([]models.Run, error) {
	if limit == 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, kind, status, archive, modules, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// Empty slice so JSON renders [] rather than null.
	runs := make([]models.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var run models.Run
	var archive, modules, errMsg sql.NullString
	var finishedAt sql.NullTime

	if err := row.Scan(&run.ID, &run.Kind, &run.Status, &archive, &modules, &errMsg, &run.StartedAt, &finishedAt); err != nil {
		return nil, err
	}

	run.Archive = archive.String
	run.Modules = modules.String
	run.Error = errMsg.String
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
