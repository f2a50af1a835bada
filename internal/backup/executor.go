// Package backup stages selected modules into a directory tree and packs it
// into a single timestamped archive.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pandeptwidyaop/modbackup/internal/fsutil"
	"github.com/pandeptwidyaop/modbackup/internal/manifest"
	"github.com/pandeptwidyaop/modbackup/internal/models"
	"github.com/pandeptwidyaop/modbackup/internal/registry"
	"github.com/pandeptwidyaop/modbackup/internal/runner"
)

// ProfilesDir is the subtree holding profile copies inside a module's staging directory.
const ProfilesDir = "profiles"

// Progress stages reported through ExecutorOptions.Progress.
const (
	StageModuleStart = "module_start"
	StageScript      = "script"
	StageCopy        = "copy"
	StageProfiles    = "profiles"
	StageManifest    = "manifest"
	StageModuleDone  = "module_done"
)

const reasonNotRegistered = "module not registered"

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Runner runner.Runner
	// Home replaces "~" in declared paths.
	Home string
	// ConfigRoot holds profiles as <ConfigRoot>/<module>/<profile>.
	ConfigRoot    string
	Workers       int
	ScriptTimeout time.Duration
	Codec         manifest.Codec
	Progress      func(models.Event)
	Now           func() time.Time
}

// Executor backs up modules from a snapshot into a staging root.
type Executor struct {
	opts ExecutorOptions
}

// NewExecutor creates an Executor, filling unset options with defaults.
func NewExecutor(opts ExecutorOptions) *Executor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Codec == nil {
		opts.Codec = manifest.YAMLCodec{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Progress = syncProgress(opts.Progress)
	return &Executor{opts: opts}
}

// Backup stages every named module under stagingRoot/<module>. Modules are
// independent: a failure is recorded on that module's result and never
// stops its siblings. Cancellation is honoured between modules only.
func (e *Executor) Backup(ctx context.Context, snap *registry.Snapshot, names []string, stagingRoot string) *models.BackupReport {
	// Scripts run inside their module directory, so the staging path they
	// receive must not be relative.
	if abs, err := filepath.Abs(stagingRoot); err == nil {
		stagingRoot = abs
	}
	names = dedupe(names)
	report := &models.BackupReport{
		StartedAt: e.opts.Now(),
		Modules:   make([]models.ModuleResult, len(names)),
	}

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)

	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				report.Modules[i] = models.ModuleResult{Module: name, Status: models.ModuleCanceled, Reason: err.Error()}
				return nil
			}

			mod, ok := snap.Get(name)
			if !ok {
				log.Printf("[Backup] Module %s is not registered", name)
				report.Modules[i] = models.ModuleResult{Module: name, Status: models.ModuleFailed, Reason: reasonNotRegistered}
				return nil
			}

			report.Modules[i] = e.backupModule(ctx, mod, stagingRoot)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = e.opts.Now()
	return report
}

func (e *Executor) backupModule(ctx context.Context, mod models.Module, stagingRoot string) models.ModuleResult {
	// Work already started runs to completion even if ctx is canceled.
	ctx = context.WithoutCancel(ctx)

	res := models.ModuleResult{Module: mod.ID, Status: models.ModuleSucceeded}
	dir := filepath.Join(stagingRoot, mod.ID)

	e.emit(mod.ID, StageModuleStart, "")
	log.Printf("[Backup] Backing up %s", mod.ID)

	fail := func(err error) models.ModuleResult {
		log.Printf("[Backup] Module %s failed: %v", mod.ID, err)
		// A failed module leaves nothing behind for the archive.
		_ = os.RemoveAll(dir)
		res.Status = models.ModuleFailed
		res.Reason = err.Error()
		e.emit(mod.ID, StageModuleDone, res.Reason)
		return res
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail(fmt.Errorf("create staging directory: %w", err))
	}

	if mod.Descriptor.BackupCommand != "" {
		e.emit(mod.ID, StageScript, filepath.Base(mod.Descriptor.BackupCommand))
		if e.opts.Runner == nil {
			return fail(errors.New("no script runner configured"))
		}
		_, err := e.opts.Runner.Run(ctx, runner.Command{
			Path:    mod.Descriptor.BackupCommand,
			Args:    []string{dir},
			Dir:     mod.Dir,
			Timeout: e.opts.ScriptTimeout,
		})
		if err != nil {
			return fail(err)
		}
	} else {
		missing, err := e.copyPaths(mod, dir)
		if err != nil {
			return fail(err)
		}
		if len(missing) > 0 {
			res.Status = models.ModulePartial
			res.MissingPaths = missing
		}
	}

	copied, err := e.copyProfiles(mod, dir)
	if err != nil {
		return fail(err)
	}
	res.Profiles = copied

	e.emit(mod.ID, StageManifest, "")
	m := &models.Manifest{
		ModuleName: mod.ID,
		Version:    mod.Descriptor.Version,
		BackupDate: e.opts.Now(),
		Paths:      mod.Descriptor.BackupPaths,
		Profiles:   mod.Profiles,
	}
	if err := e.opts.Codec.Write(m, filepath.Join(dir, manifest.FileName)); err != nil {
		return fail(err)
	}

	log.Printf("[Backup] Module %s %s", mod.ID, res.Status)
	e.emit(mod.ID, StageModuleDone, string(res.Status))
	return res
}

// copyPaths copies each declared path that exists into dir under its base
// name and returns the declared paths that were absent.
func (e *Executor) copyPaths(mod models.Module, dir string) ([]string, error) {
	var missing []string
	for _, declared := range mod.Descriptor.BackupPaths {
		src := fsutil.ExpandHome(declared, e.opts.Home)
		if !fsutil.TargetExists(src) {
			missing = append(missing, declared)
			continue
		}

		e.emit(mod.ID, StageCopy, declared)
		dst := filepath.Join(dir, fsutil.BaseName(src))
		if err := fsutil.Copy(src, dst); err != nil {
			return nil, fmt.Errorf("copy %s: %w", declared, err)
		}
	}
	return missing, nil
}

// copyProfiles copies <ConfigRoot>/<module>/<profile> into dir/profiles/<profile>
// for each detected profile that exists and returns the ones copied.
func (e *Executor) copyProfiles(mod models.Module, dir string) ([]string, error) {
	if len(mod.Profiles) == 0 {
		return nil, nil
	}

	root := fsutil.ExpandHome(e.opts.ConfigRoot, e.opts.Home)
	var copied []string
	for _, profile := range mod.Profiles {
		src := filepath.Join(root, mod.ID, profile)
		if !fsutil.TargetExists(src) {
			continue
		}

		e.emit(mod.ID, StageProfiles, profile)
		dst := filepath.Join(dir, ProfilesDir, profile)
		if err := fsutil.Copy(src, dst); err != nil {
			return nil, fmt.Errorf("copy profile %s: %w", profile, err)
		}
		copied = append(copied, profile)
	}
	return copied, nil
}

func (e *Executor) emit(module, stage, msg string) {
	if e.opts.Progress == nil {
		return
	}
	e.opts.Progress(models.Event{Time: time.Now(), Module: module, Stage: stage, Message: msg})
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// staged returns the module directories present under stagingRoot.
func staged(stagingRoot string) ([]string, error) {
	entries, err := os.ReadDir(stagingRoot)
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

// syncProgress serializes a progress callback shared by parallel workers.
func syncProgress(fn func(models.Event)) func(models.Event) {
	if fn == nil {
		return nil
	}
	var mu sync.Mutex
	return func(ev models.Event) {
		mu.Lock()
		defer mu.Unlock()
		fn(ev)
	}
}
