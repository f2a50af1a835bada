package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pandeptwidyaop/modbackup/internal/archive"
	"github.com/pandeptwidyaop/modbackup/internal/metrics"
	"github.com/pandeptwidyaop/modbackup/internal/models"
	"github.com/pandeptwidyaop/modbackup/internal/registry"
)

var (
	// ErrNothingToArchive indicates no module produced staged content.
	ErrNothingToArchive = errors.New("no module was backed up; archive not created")
	// ErrInsufficientSpace indicates the destination is below the free-space threshold.
	ErrInsufficientSpace = errors.New("insufficient free space at destination")
)

// ArchiveTimeLayout formats the timestamp in archive names.
const ArchiveTimeLayout = "20060102150405"

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Executor ExecutorOptions
	// StagingDir is where temporary staging roots are created; empty means os.TempDir.
	StagingDir   string
	MinFreeBytes uint64
	// FreeSpace reports available bytes for a path; defaults to metrics.FreeSpace.
	FreeSpace func(path string) (uint64, error)
}

// Request describes one backup run.
type Request struct {
	RunID       string
	Modules     []string
	Destination string
	Codec       archive.Codec
	Progress    func(models.Event)
}

// Service runs complete backups: preflight, staging, packing and cleanup.
type Service struct {
	opts ServiceOptions
}

// NewService creates a new Service instance.
func NewService(opts ServiceOptions) *Service {
	if opts.FreeSpace == nil {
		opts.FreeSpace = metrics.FreeSpace
	}
	return &Service{opts: opts}
}

// Run backs up req.Modules from snap into a single archive under
// req.Destination. The report is always returned, including on error. The
// staging root is removed whether packing succeeds or not.
func (s *Service) Run(ctx context.Context, snap *registry.Snapshot, req Request) (*models.BackupReport, error) {
	now := s.now()
	report := &models.BackupReport{RunID: req.RunID, StartedAt: now}

	fail := func(err error) (*models.BackupReport, error) {
		report.Error = err.Error()
		report.FinishedAt = s.now()
		return report, err
	}

	codec := req.Codec
	if codec == nil {
		codec = archive.Zip{}
	}

	dest := req.Destination
	if dest == "" {
		dest = "."
	}
	if abs, err := filepath.Abs(dest); err == nil {
		dest = abs
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fail(fmt.Errorf("create destination: %w", err))
	}

	if s.opts.MinFreeBytes > 0 {
		free, err := s.opts.FreeSpace(dest)
		if err != nil {
			log.Printf("[Backup] Could not determine free space at %s: %v", dest, err)
		} else if free < s.opts.MinFreeBytes {
			return fail(fmt.Errorf("%w: %s available, %s required",
				ErrInsufficientSpace, humanize.IBytes(free), humanize.IBytes(s.opts.MinFreeBytes)))
		}
	}

	if s.opts.StagingDir != "" {
		if err := os.MkdirAll(s.opts.StagingDir, 0755); err != nil {
			return fail(fmt.Errorf("create staging directory: %w", err))
		}
	}
	stagingRoot, err := os.MkdirTemp(s.opts.StagingDir, "backup_temp_")
	if err != nil {
		return fail(fmt.Errorf("create staging root: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(stagingRoot); err != nil {
			log.Printf("[Backup] Failed to remove staging root %s: %v", stagingRoot, err)
		}
	}()

	execOpts := s.opts.Executor
	execOpts.Progress = withRunID(req.RunID, req.Progress)
	executor := NewExecutor(execOpts)

	result := executor.Backup(ctx, snap, req.Modules, stagingRoot)
	report.Modules = result.Modules

	dirs, err := staged(stagingRoot)
	if err != nil {
		return fail(&archive.Error{Op: "pack", Path: stagingRoot, Err: err})
	}
	if len(dirs) == 0 {
		return fail(ErrNothingToArchive)
	}

	archivePath := uniquePath(filepath.Join(dest, fmt.Sprintf("backup_%s.%s", now.Format(ArchiveTimeLayout), codec.Ext())))
	log.Printf("[Backup] Packing %d module(s) into %s", len(dirs), archivePath)
	if err := codec.Pack(stagingRoot, archivePath); err != nil {
		_ = os.Remove(archivePath)
		return fail(err)
	}

	if info, err := os.Stat(archivePath); err == nil {
		report.ArchiveSize = info.Size()
	}
	report.Archive = archivePath
	report.FinishedAt = s.now()

	log.Printf("[Backup] Created %s (%s)", archivePath, humanize.IBytes(uint64(report.ArchiveSize)))
	return report, nil
}

func (s *Service) now() time.Time {
	if s.opts.Executor.Now != nil {
		return s.opts.Executor.Now()
	}
	return time.Now()
}

// uniquePath appends a counter when path already exists so a backup never
// overwrites an earlier archive from the same second.
func uniquePath(path string) string {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := archiveExt(path)
	base := path[:len(path)-len(ext)]
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}

func archiveExt(path string) string {
	if strings.HasSuffix(path, ".tar.gz") {
		return ".tar.gz"
	}
	return filepath.Ext(path)
}

func withRunID(runID string, fn func(models.Event)) func(models.Event) {
	if fn == nil {
		return nil
	}
	return func(ev models.Event) {
		ev.RunID = runID
		fn(ev)
	}
}
