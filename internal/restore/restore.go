// Package restore replays a module archive onto the filesystem.
//
// A restore walks a fixed sequence of states:
//
//	Idle → Fetched → Extracted → ManifestParsed → ModuleResolved →
//	FullRestore | PartialRestore → Cleanup → Done | Failed
//
// The extraction root is removed in Cleanup whatever the outcome.
package restore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pandeptwidyaop/modbackup/internal/archive"
	"github.com/pandeptwidyaop/modbackup/internal/backup"
	"github.com/pandeptwidyaop/modbackup/internal/conflict"
	"github.com/pandeptwidyaop/modbackup/internal/fsutil"
	"github.com/pandeptwidyaop/modbackup/internal/manifest"
	"github.com/pandeptwidyaop/modbackup/internal/models"
	"github.com/pandeptwidyaop/modbackup/internal/registry"
	"github.com/pandeptwidyaop/modbackup/internal/runner"
)

// State is a step of the restore state machine.
type State string

const (
	StateIdle           State = "idle"
	StateFetched        State = "fetched"
	StateExtracted      State = "extracted"
	StateManifestParsed State = "manifest_parsed"
	StateModuleResolved State = "module_resolved"
	StateFullRestore    State = "full_restore"
	StatePartialRestore State = "partial_restore"
	StateCleanup        State = "cleanup"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

var (
	// ErrInvalidManifest is manifest.ErrInvalidManifest.
	ErrInvalidManifest = manifest.ErrInvalidManifest
	// ErrModuleNotRegistered indicates the archived module is not in the snapshot.
	ErrModuleNotRegistered = errors.New("module not registered")
	// ErrModuleNotInArchive indicates the requested module has no subtree in the archive.
	ErrModuleNotInArchive = errors.New("module not in archive")
	// ErrNoProfilesSelected indicates a partial restore without any profile.
	ErrNoProfilesSelected = errors.New("select at least one profile")
	// ErrProfileNotInManifest indicates a selected profile the archive does not list.
	ErrProfileNotInManifest = errors.New("profile not listed in manifest")
)

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Runner runner.Runner
	// Home replaces "~" in manifest paths.
	Home string
	// ConfigRoot holds profiles as <ConfigRoot>/<module>/<profile>.
	ConfigRoot string
	// Resolver decides on existing destinations; nil means always skip.
	Resolver conflict.Resolver
	// Codec unpacks archives; nil picks one from the archive's extension.
	Codec archive.Codec
	// TempDir is where extraction roots are created; empty means os.TempDir.
	TempDir       string
	ScriptTimeout time.Duration
	Manifests     manifest.Codec
	Progress      func(models.Event)
	Now           func() time.Time
}

// Options selects what to restore.
type Options struct {
	// Module picks the archive subtree; empty means the first one.
	Module string
	// Profiles is the subset replayed by a partial restore.
	Profiles []string
	// Partial restores only Profiles. It is implied when Profiles is set.
	Partial bool
	RunID   string
}

// Executor runs restores.
type Executor struct {
	opts ExecutorOptions
}

// NewExecutor creates an Executor.
func NewExecutor(opts ExecutorOptions) *Executor {
	if opts.Resolver == nil {
		opts.Resolver = conflict.AlwaysSkip
	}
	if opts.Manifests == nil {
		opts.Manifests = manifest.YAMLCodec{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Executor{opts: opts}
}

type run struct {
	*Executor
	ctx    context.Context
	runID  string
	report *models.RestoreReport
}

// Restore replays archivePath against the module registered in snap. The
// report is always returned; a non-nil error means the restore aborted.
func (e *Executor) Restore(ctx context.Context, snap *registry.Snapshot, archivePath string, opts Options) (*models.RestoreReport, error) {
	partial := opts.Partial || len(opts.Profiles) > 0
	mode := models.RestoreFull
	if partial {
		mode = models.RestorePartial
	}

	r := &run{
		Executor: e,
		ctx:      ctx,
		runID:    opts.RunID,
		report: &models.RestoreReport{
			RunID:     opts.RunID,
			StartedAt: e.opts.Now(),
			Archive:   archivePath,
			Mode:      mode,
			Paths:     []models.PathResult{},
		},
	}
	r.setState(StateIdle)

	if partial && len(opts.Profiles) == 0 {
		return r.fail(ErrNoProfilesSelected)
	}

	r.setState(StateFetched)

	codec := e.opts.Codec
	if codec == nil {
		c, err := archive.ForPath(archivePath)
		if err != nil {
			return r.fail(err)
		}
		codec = c
	}

	if e.opts.TempDir != "" {
		if err := os.MkdirAll(e.opts.TempDir, 0755); err != nil {
			return r.fail(fmt.Errorf("create temp directory: %w", err))
		}
	}
	extractRoot, err := os.MkdirTemp(e.opts.TempDir, "restore_")
	if err != nil {
		return r.fail(fmt.Errorf("create extraction root: %w", err))
	}
	// The restore script runs inside the module directory.
	if abs, absErr := filepath.Abs(extractRoot); absErr == nil {
		extractRoot = abs
	}

	err = r.restore(snap, codec, archivePath, extractRoot, opts, partial)

	r.setState(StateCleanup)
	if rmErr := os.RemoveAll(extractRoot); rmErr != nil {
		log.Printf("[Restore] Failed to remove %s: %v", extractRoot, rmErr)
	}

	if err != nil {
		return r.fail(err)
	}

	r.report.FinishedAt = e.opts.Now()
	r.setState(StateDone)
	log.Printf("[Restore] Restored %s from %s: %d copied, %d skipped, %d absent, %d failed",
		r.report.Module, archivePath,
		r.report.Count(models.OutcomeCopied), r.report.Count(models.OutcomeSkipped),
		r.report.Count(models.OutcomeSourceAbsent), r.report.Count(models.OutcomeFailed))
	return r.report, nil
}

func (r *run) restore(snap *registry.Snapshot, codec archive.Codec, archivePath, extractRoot string, opts Options, partial bool) error {
	if err := codec.Unpack(archivePath, extractRoot); err != nil {
		return err
	}
	r.setState(StateExtracted)

	subtree, err := r.selectSubtree(extractRoot, opts.Module)
	if err != nil {
		return err
	}

	m, err := r.opts.Manifests.Read(filepath.Join(subtree, manifest.FileName))
	if err != nil {
		return err
	}
	r.setState(StateManifestParsed)

	mod, ok := snap.Get(m.ModuleName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotRegistered, m.ModuleName)
	}
	r.report.Module = mod.ID
	r.setState(StateModuleResolved)

	if partial {
		selected, err := selectProfiles(m, opts.Profiles)
		if err != nil {
			return err
		}
		r.setState(StatePartialRestore)
		for _, p := range selected {
			r.restoreProfile(mod.ID, subtree, p)
		}
		return nil
	}

	r.setState(StateFullRestore)

	if mod.Descriptor.RestoreCommand != "" {
		r.emit(mod.ID, "script", filepath.Base(mod.Descriptor.RestoreCommand))
		if r.opts.Runner == nil {
			return errors.New("no script runner configured")
		}
		r.report.ScriptRan = true
		_, err := r.opts.Runner.Run(context.WithoutCancel(r.ctx), runner.Command{
			Path:    mod.Descriptor.RestoreCommand,
			Args:    []string{subtree},
			Dir:     mod.Dir,
			Timeout: r.opts.ScriptTimeout,
		})
		return err
	}

	for _, declared := range m.Paths {
		dst := fsutil.ExpandHome(declared, r.opts.Home)
		src := filepath.Join(subtree, fsutil.BaseName(dst))
		r.restoreEntry(mod.ID, models.KindData, declared, src, dst)
	}

	profiles, err := listDirs(filepath.Join(subtree, backup.ProfilesDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	for _, p := range profiles {
		r.restoreProfile(mod.ID, subtree, p)
	}
	return nil
}

// selectSubtree returns the module subtree to restore. Archives holding
// more than one module are restored one module at a time; the others are
// recorded as skipped.
func (r *run) selectSubtree(extractRoot, want string) (string, error) {
	dirs, err := listDirs(extractRoot)
	if err != nil {
		return "", &archive.Error{Op: "unpack", Path: extractRoot, Err: err}
	}
	if len(dirs) == 0 {
		return "", fmt.Errorf("%w: archive contains no module directory", ErrInvalidManifest)
	}

	chosen := dirs[0]
	if want != "" {
		r.report.ModuleRequested = true
		chosen = ""
		for _, d := range dirs {
			if d == want {
				chosen = d
				break
			}
		}
		if chosen == "" {
			return "", fmt.Errorf("%w: %s", ErrModuleNotInArchive, want)
		}
	}

	for _, d := range dirs {
		if d != chosen {
			r.report.SkippedModules = append(r.report.SkippedModules, d)
		}
	}
	if len(r.report.SkippedModules) > 0 {
		log.Printf("[Restore] Archive holds %d modules; restoring %s, skipping %v", len(dirs), chosen, r.report.SkippedModules)
	}
	return filepath.Join(extractRoot, chosen), nil
}

func selectProfiles(m *models.Manifest, requested []string) ([]string, error) {
	seen := make(map[string]bool, len(requested))
	var out []string
	for _, p := range requested {
		if seen[p] {
			continue
		}
		if !fsutil.ValidName(p) || !m.HasProfile(p) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotInManifest, p)
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

func (r *run) restoreProfile(module, subtree, profile string) {
	src := filepath.Join(subtree, backup.ProfilesDir, profile)
	root := fsutil.ExpandHome(r.opts.ConfigRoot, r.opts.Home)
	dst := filepath.Join(root, module, profile)
	r.restoreEntry(module, models.KindProfile, profile, src, dst)
}

// restoreEntry copies src to dst, consulting the resolver when dst exists.
// Overwrite removes dst entirely before copying.
func (r *run) restoreEntry(module string, kind models.PathKind, name, src, dst string) {
	res := models.PathResult{Kind: kind, Name: name, Source: src, Destination: dst}
	defer func() {
		r.report.Paths = append(r.report.Paths, res)
		r.emit(module, string(res.Outcome), dst)
	}()

	if !fsutil.TargetExists(src) {
		res.Outcome = models.OutcomeSourceAbsent
		return
	}

	if fsutil.Exists(dst) {
		decision, err := r.opts.Resolver.Resolve(r.ctx, dst)
		if err != nil {
			log.Printf("[Restore] No decision for %s, skipping: %v", dst, err)
			res.Outcome = models.OutcomeSkipped
			res.Reason = err.Error()
			return
		}
		if decision != conflict.Overwrite {
			res.Outcome = models.OutcomeSkipped
			return
		}
		if err := os.RemoveAll(dst); err != nil {
			res.Outcome = models.OutcomeFailed
			res.Reason = fmt.Sprintf("remove existing: %v", err)
			return
		}
	}

	if err := fsutil.Copy(src, dst); err != nil {
		log.Printf("[Restore] Failed to restore %s: %v", dst, err)
		res.Outcome = models.OutcomeFailed
		res.Reason = err.Error()
		return
	}
	res.Outcome = models.OutcomeCopied
}

func (r *run) setState(s State) {
	r.report.FinalState = string(s)
	r.emit(r.report.Module, "state", string(s))
}

func (r *run) fail(err error) (*models.RestoreReport, error) {
	log.Printf("[Restore] Restore of %s failed: %v", r.report.Archive, err)
	r.report.Error = err.Error()
	r.report.FinishedAt = r.opts.Now()
	r.setState(StateFailed)
	return r.report, err
}

func (r *run) emit(module, stage, msg string) {
	if r.opts.Progress == nil {
		return
	}
	r.opts.Progress(models.Event{Time: time.Now(), RunID: r.runID, Module: module, Stage: stage, Message: msg})
}

func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
