package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/pandeptwidyaop/modbackup/internal/archive"
	"github.com/pandeptwidyaop/modbackup/internal/backup"
	"github.com/pandeptwidyaop/modbackup/internal/config"
	"github.com/pandeptwidyaop/modbackup/internal/conflict"
	"github.com/pandeptwidyaop/modbackup/internal/fetch"
	"github.com/pandeptwidyaop/modbackup/internal/fsutil"
	"github.com/pandeptwidyaop/modbackup/internal/models"
	"github.com/pandeptwidyaop/modbackup/internal/registry"
	"github.com/pandeptwidyaop/modbackup/internal/restore"
	"github.com/pandeptwidyaop/modbackup/internal/runner"
	"github.com/pandeptwidyaop/modbackup/internal/validation"
)

var (
	ErrNoModules     = errors.New("no modules selected")
	ErrNoArchive     = errors.New("archive path or remote file is required")
	ErrArchiveAbsent = errors.New("archive not found")
)

// OperationDeps wires an OperationService.
type OperationDeps struct {
	Config   *config.Config
	Registry *registry.Registry
	Runner   runner.Runner
	History  *HistoryService
	Remotes  *RemoteService
	Events   *EventHub
	Fetcher  fetch.Fetcher
}

// OperationService runs backups and restores against the current registry
// snapshot, recording each run in history and streaming its progress.
type OperationService struct {
	cfg      *config.Config
	registry *registry.Registry
	runner   runner.Runner
	history  *HistoryService
	remotes  *RemoteService
	events   *EventHub
	fetcher  fetch.Fetcher
	home     string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOperationService(deps OperationDeps) (*OperationService, error) {
	home, err := fsutil.ResolveHome(deps.Config.Modules.HomeDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}
	if deps.Events == nil {
		deps.Events = NewEventHub()
	}
	if deps.Fetcher == nil {
		deps.Fetcher = fetch.NewMux()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &OperationService{
		cfg:      deps.Config,
		registry: deps.Registry,
		runner:   deps.Runner,
		history:  deps.History,
		remotes:  deps.Remotes,
		events:   deps.Events,
		fetcher:  deps.Fetcher,
		home:     home,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Events returns the hub progress is published on.
func (s *OperationService) Events() *EventHub {
	return s.events
}

func (s *OperationService) configRoot() string {
	return fsutil.ExpandHome(s.cfg.Modules.ConfigRoot, s.home)
}

// Backup runs a backup synchronously and returns its report.
func (s *OperationService) Backup(ctx context.Context, req *models.BackupRequest) (*models.BackupReport, error) {
	run, codec, err := s.prepareBackup(req)
	if err != nil {
		return nil, err
	}
	return s.executeBackup(ctx, run.ID, req, codec)
}

// StartBackup records a run and executes it in the background.
func (s *OperationService) StartBackup(req *models.BackupRequest) (*models.Run, error) {
	run, codec, err := s.prepareBackup(req)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.executeBackup(s.ctx, run.ID, req, codec)
	}()

	return run, nil
}

func (s *OperationService) prepareBackup(req *models.BackupRequest) (*models.Run, archive.Codec, error) {
	if len(req.Modules) == 0 {
		return nil, nil, ErrNoModules
	}
	format := req.Format
	if format == "" {
		format = s.cfg.Backup.Format
	}
	codec, err := archive.ForFormat(format)
	if err != nil {
		return nil, nil, err
	}

	run, err := s.history.CreateRun(models.RunBackup, req.Modules, "")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record run: %w", err)
	}
	return run, codec, nil
}

func (s *OperationService) executeBackup(ctx context.Context, runID string, req *models.BackupRequest, codec archive.Codec) (*models.BackupReport, error) {
	dest := req.Destination
	if dest == "" {
		dest = s.cfg.Backup.Destination
	}
	workers := req.Workers
	if workers <= 0 {
		workers = s.cfg.Backup.Workers
	}

	svc := backup.NewService(backup.ServiceOptions{
		Executor: backup.ExecutorOptions{
			Runner:        s.runner,
			Home:          s.home,
			ConfigRoot:    s.configRoot(),
			Workers:       workers,
			ScriptTimeout: s.cfg.Execution.ScriptTimeout(),
		},
		StagingDir:   s.cfg.Backup.StagingDir,
		MinFreeBytes: s.cfg.Backup.MinFreeBytes,
	})

	log.Printf("[Operations] Backup %s started: %s", runID, strings.Join(req.Modules, ", "))
	report, err := svc.Run(ctx, s.registry.Current(), backup.Request{
		RunID:       runID,
		Modules:     req.Modules,
		Destination: fsutil.ExpandHome(dest, s.home),
		Codec:       codec,
		Progress:    s.events.Publish,
	})

	if herr := s.history.FinishBackup(runID, report, err); herr != nil {
		log.Printf("[Operations] Failed to record backup %s: %v", runID, herr)
	}

	msg := backupSummary(report, err)
	log.Printf("[Operations] Backup %s finished: %s", runID, msg)
	s.events.Complete(runID, msg)
	return report, err
}

// Restore runs a restore synchronously. resolver overrides req.Conflict
// when set.
func (s *OperationService) Restore(ctx context.Context, req *models.RestoreRequest, resolver conflict.Resolver) (*models.RestoreReport, error) {
	run, resolver, err := s.prepareRestore(req, resolver)
	if err != nil {
		return nil, err
	}
	return s.executeRestore(ctx, run.ID, req, resolver)
}

// StartRestore records a run and executes it in the background. Conflicts
// are resolved from req.Conflict.
func (s *OperationService) StartRestore(req *models.RestoreRequest) (*models.Run, error) {
	run, resolver, err := s.prepareRestore(req, nil)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.executeRestore(s.ctx, run.ID, req, resolver)
	}()

	return run, nil
}

func (s *OperationService) prepareRestore(req *models.RestoreRequest, resolver conflict.Resolver) (*models.Run, conflict.Resolver, error) {
	if req.Archive == "" && req.RemoteFile == "" {
		return nil, nil, ErrNoArchive
	}
	if req.RemoteFile == "" {
		if err := validation.ValidateArchivePath(req.Archive); err != nil {
			return nil, nil, fmt.Errorf("archive %q: %w", req.Archive, err)
		}
		if !fsutil.Exists(req.Archive) {
			return nil, nil, fmt.Errorf("%w: %s", ErrArchiveAbsent, req.Archive)
		}
	}
	for _, p := range req.Profiles {
		if !fsutil.ValidName(p) {
			return nil, nil, fmt.Errorf("invalid profile name %q", p)
		}
	}

	if resolver == nil {
		decision := conflict.Skip
		if req.Conflict != "" {
			d, err := conflict.ParseDecision(req.Conflict)
			if err != nil {
				return nil, nil, err
			}
			decision = d
		}
		resolver = conflict.Static(decision)
	}

	var modules []string
	if req.Module != "" {
		modules = []string{req.Module}
	}
	source := req.Archive
	if req.RemoteFile != "" {
		source = req.RemoteFile
	}

	run, err := s.history.CreateRun(models.RunRestore, modules, source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record run: %w", err)
	}
	return run, resolver, nil
}

func (s *OperationService) executeRestore(ctx context.Context, runID string, req *models.RestoreRequest, resolver conflict.Resolver) (*models.RestoreReport, error) {
	log.Printf("[Operations] Restore %s started", runID)

	report, err := s.restore(ctx, runID, req, resolver)

	if herr := s.history.FinishRestore(runID, report, err); herr != nil {
		log.Printf("[Operations] Failed to record restore %s: %v", runID, herr)
	}

	msg := restoreSummary(report, err)
	log.Printf("[Operations] Restore %s finished: %s", runID, msg)
	s.events.Complete(runID, msg)
	return report, err
}

func (s *OperationService) restore(ctx context.Context, runID string, req *models.RestoreRequest, resolver conflict.Resolver) (*models.RestoreReport, error) {
	archivePath := req.Archive
	if req.RemoteFile != "" {
		s.events.Publish(models.Event{RunID: runID, Stage: "fetch", Message: req.RemoteFile})

		local, err := s.fetch(ctx, req)
		if err != nil {
			return &models.RestoreReport{RunID: runID, Archive: req.RemoteFile, FinalState: string(restore.StateFailed), Error: err.Error(), Paths: []models.PathResult{}}, err
		}
		defer os.Remove(local)
		archivePath = local
	}

	executor := restore.NewExecutor(restore.ExecutorOptions{
		Runner:        s.runner,
		Home:          s.home,
		ConfigRoot:    s.configRoot(),
		Resolver:      resolver,
		TempDir:       s.cfg.Restore.TempDir,
		ScriptTimeout: s.cfg.Execution.ScriptTimeout(),
		Progress:      s.events.Publish,
	})

	return executor.Restore(ctx, s.registry.Current(), archivePath, restore.Options{
		Module:   req.Module,
		Profiles: req.Profiles,
		Partial:  req.Partial,
		RunID:    runID,
	})
}

func (s *OperationService) fetch(ctx context.Context, req *models.RestoreRequest) (string, error) {
	var params fetch.ServerParams
	if req.Remote != "" {
		if s.remotes == nil {
			return "", ErrRemoteNotFound
		}
		remote, err := s.remotes.Get(req.Remote)
		if err != nil {
			return "", err
		}
		params = ToServerParams(remote)
	} else {
		params = fetch.ServerParams{
			Protocol: req.Protocol,
			Host:     req.Server,
			Port:     req.Port,
			Username: req.Username,
			Password: req.Password,
		}
	}
	return s.fetcher.Fetch(ctx, params, req.RemoteFile, s.cfg.Restore.TempDir)
}

// Wait blocks until every background run has finished.
func (s *OperationService) Wait() {
	s.wg.Wait()
}

// Close cancels background runs at their next module boundary and waits
// for them.
func (s *OperationService) Close() {
	s.cancel()
	s.wg.Wait()
}

func backupSummary(report *models.BackupReport, err error) string {
	if err != nil {
		return err.Error()
	}
	failed := len(report.Failed())
	return fmt.Sprintf("%d module(s) backed up, %d failed, archive %s (%s)",
		len(report.Modules)-failed, failed, report.Archive, humanize.Bytes(uint64(report.ArchiveSize)))
}

func restoreSummary(report *models.RestoreReport, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("%s restored: %d copied, %d skipped, %d absent, %d failed",
		report.Module,
		report.Count(models.OutcomeCopied),
		report.Count(models.OutcomeSkipped),
		report.Count(models.OutcomeSourceAbsent),
		report.Count(models.OutcomeFailed))
}
