package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandeptwidyaop/modbackup/internal/archive"
	"github.com/pandeptwidyaop/modbackup/internal/manifest"
	"github.com/pandeptwidyaop/modbackup/internal/models"
	"github.com/pandeptwidyaop/modbackup/internal/registry"
	"github.com/pandeptwidyaop/modbackup/internal/runner"
)

type fixture struct {
	root       string
	home       string
	configRoot string
	runner     runner.Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	home := t.TempDir()
	return &fixture{
		root:       t.TempDir(),
		home:       home,
		configRoot: filepath.Join(home, ".config"),
		runner:     runner.New("sh", 0),
	}
}

func (f *fixture) file(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
}

func (f *fixture) module(t *testing.T, id, descriptor string, scripts map[string]string) {
	t.Helper()
	f.file(t, filepath.Join(f.root, id, "module.yaml"), descriptor, 0644)
	for name, body := range scripts {
		f.file(t, filepath.Join(f.root, id, name), "#!/bin/sh\n"+body+"\n", 0755)
	}
}

func (f *fixture) snapshot(t *testing.T) *registry.Snapshot {
	t.Helper()
	reg := registry.New(registry.Options{Root: f.root, Runner: f.runner, Home: f.home})
	return reg.Reload(context.Background())
}

func (f *fixture) executor(opts ExecutorOptions) *Executor {
	opts.Runner = f.runner
	opts.Home = f.home
	opts.ConfigRoot = f.configRoot
	return NewExecutor(opts)
}

func TestBackup_EditorScenario(t *testing.T) {
	f := newFixture(t)
	f.module(t, "editor", "backup_paths:\n  - ~/.config/editor\n", nil)
	f.file(t, filepath.Join(f.home, ".config", "editor", "settings.conf"), "font=mono", 0644)

	staging := t.TempDir()
	report := f.executor(ExecutorOptions{}).Backup(context.Background(), f.snapshot(t), []string{"editor"}, staging)

	require.Len(t, report.Modules, 1)
	assert.Equal(t, models.ModuleSucceeded, report.Modules[0].Status)

	data, err := os.ReadFile(filepath.Join(staging, "editor", "editor", "settings.conf"))
	require.NoError(t, err)
	assert.Equal(t, "font=mono", string(data))

	m, err := manifest.Read(filepath.Join(staging, "editor", manifest.FileName))
	require.NoError(t, err)
	assert.Equal(t, []string{"~/.config/editor"}, m.Paths)
}

func TestBackup_FollowsSymlinkedBackupPaths(t *testing.T) {
	f := newFixture(t)
	f.module(t, "editor", "backup_paths:\n  - ~/.config/editor\n  - ~/.editorrc\n  - ~/.dangling\n", nil)

	dotfiles := filepath.Join(f.home, "dotfiles")
	f.file(t, filepath.Join(dotfiles, "editor", "settings.conf"), "font=mono", 0644)
	f.file(t, filepath.Join(dotfiles, "editorrc"), "theme=dark", 0644)
	require.NoError(t, os.MkdirAll(filepath.Join(f.home, ".config"), 0755))
	require.NoError(t, os.Symlink(filepath.Join(dotfiles, "editor"), filepath.Join(f.home, ".config", "editor")))
	require.NoError(t, os.Symlink(filepath.Join(dotfiles, "editorrc"), filepath.Join(f.home, ".editorrc")))
	require.NoError(t, os.Symlink(filepath.Join(dotfiles, "gone"), filepath.Join(f.home, ".dangling")))

	staging := t.TempDir()
	report := f.executor(ExecutorOptions{}).Backup(context.Background(), f.snapshot(t), []string{"editor"}, staging)

	require.Len(t, report.Modules, 1)
	assert.Equal(t, models.ModulePartial, report.Modules[0].Status)
	assert.Equal(t, []string{"~/.dangling"}, report.Modules[0].MissingPaths)

	dir := filepath.Join(staging, "editor", "editor")
	info, err := os.Lstat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "symlinked directory staged as %v", info.Mode())
	data, err := os.ReadFile(filepath.Join(dir, "settings.conf"))
	require.NoError(t, err)
	assert.Equal(t, "font=mono", string(data))

	rc := filepath.Join(staging, "editor", ".editorrc")
	info, err = os.Lstat(rc)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular(), "symlinked file staged as %v", info.Mode())
}

func TestBackup_RelativeDirectoriesRunScripts(t *testing.T) {
	home := t.TempDir()
	chdirForTest(t, t.TempDir())
	f := &fixture{root: "modules", home: home, configRoot: filepath.Join(home, ".config"), runner: runner.New("sh", 0)}
	f.module(t, "app", "backup_script: backup.sh\n", map[string]string{"backup.sh": `echo dump > "$1/dump.sql"`})
	require.NoError(t, os.MkdirAll("staging", 0755))

	report := f.executor(ExecutorOptions{}).Backup(context.Background(), f.snapshot(t), []string{"app"}, "staging")

	require.Len(t, report.Modules, 1)
	assert.Equal(t, models.ModuleSucceeded, report.Modules[0].Status, report.Modules[0].Reason)
	data, err := os.ReadFile(filepath.Join("staging", "app", "dump.sql"))
	require.NoError(t, err)
	assert.Equal(t, "dump\n", string(data))
}

func TestBackup_FailingScriptIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.module(t, "broken", "backup_script: backup.sh\n", map[string]string{"backup.sh": "echo nope >&2\nexit 1"})
	f.module(t, "editor", "backup_paths:\n  - ~/.editorrc\n", nil)
	f.module(t, "scripted", "backup_script: backup.sh\n", map[string]string{"backup.sh": `echo dump > "$1/dump.sql"`})
	f.file(t, filepath.Join(f.home, ".editorrc"), "set number", 0644)

	staging := t.TempDir()
	report := f.executor(ExecutorOptions{Workers: 3}).Backup(context.Background(), f.snapshot(t),
		[]string{"broken", "editor", "scripted"}, staging)

	broken, _ := report.Result("broken")
	assert.Equal(t, models.ModuleFailed, broken.Status)
	assert.Contains(t, broken.Reason, "exit code 1")

	editor, _ := report.Result("editor")
	assert.Equal(t, models.ModuleSucceeded, editor.Status)
	scripted, _ := report.Result("scripted")
	assert.Equal(t, models.ModuleSucceeded, scripted.Status)

	require.Len(t, report.Failed(), 1)
	assert.Equal(t, "broken", report.Failed()[0].Module)

	assert.NoDirExists(t, filepath.Join(staging, "broken"))
	assert.FileExists(t, filepath.Join(staging, "scripted", "dump.sql"))
	assert.FileExists(t, filepath.Join(staging, "scripted", manifest.FileName))
}

func TestBackup_ManifestMatchesDescriptorAndProfiles(t *testing.T) {
	f := newFixture(t)
	f.module(t, "browser", "version: '3.2'\nbackup_paths:\n  - ~/.browserrc\n  - ~/.cache/browser\nprofiles_script: profiles.sh\n",
		map[string]string{"profiles.sh": "echo work\necho home"})
	f.file(t, filepath.Join(f.home, ".browserrc"), "x", 0644)
	f.file(t, filepath.Join(f.configRoot, "browser", "work", "prefs.js"), "work prefs", 0644)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	staging := t.TempDir()
	report := f.executor(ExecutorOptions{Now: func() time.Time { return now }}).
		Backup(context.Background(), f.snapshot(t), []string{"browser"}, staging)

	res, _ := report.Result("browser")
	assert.Equal(t, models.ModulePartial, res.Status)
	assert.Equal(t, []string{"~/.cache/browser"}, res.MissingPaths)
	assert.Equal(t, []string{"work"}, res.Profiles)

	m, err := manifest.Read(filepath.Join(staging, "browser", manifest.FileName))
	require.NoError(t, err)
	assert.Equal(t, "browser", m.ModuleName)
	assert.Equal(t, "3.2", m.Version)
	assert.Equal(t, []string{"~/.browserrc", "~/.cache/browser"}, m.Paths)
	assert.Equal(t, []string{"work", "home"}, m.Profiles)
	assert.True(t, m.BackupDate.Equal(now))

	assert.FileExists(t, filepath.Join(staging, "browser", ProfilesDir, "work", "prefs.js"))
	assert.NoDirExists(t, filepath.Join(staging, "browser", ProfilesDir, "home"))
}

func TestBackup_UnknownModule(t *testing.T) {
	f := newFixture(t)
	report := f.executor(ExecutorOptions{}).Backup(context.Background(), f.snapshot(t), []string{"ghost"}, t.TempDir())

	require.Len(t, report.Modules, 1)
	assert.Equal(t, models.ModuleFailed, report.Modules[0].Status)
	assert.Equal(t, "module not registered", report.Modules[0].Reason)
}

func TestBackup_ScriptTimeout(t *testing.T) {
	f := newFixture(t)
	f.module(t, "slow", "backup_script: backup.sh\n", map[string]string{"backup.sh": "sleep 5"})

	report := f.executor(ExecutorOptions{ScriptTimeout: 200 * time.Millisecond}).
		Backup(context.Background(), f.snapshot(t), []string{"slow"}, t.TempDir())

	res, _ := report.Result("slow")
	assert.Equal(t, models.ModuleFailed, res.Status)
	assert.Contains(t, res.Reason, runner.ErrScriptTimeout.Error())
}

func TestBackup_CanceledBeforeStart(t *testing.T) {
	f := newFixture(t)
	f.module(t, "a", "backup_paths: []\n", nil)
	f.module(t, "b", "backup_paths: []\n", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	staging := t.TempDir()
	report := f.executor(ExecutorOptions{}).Backup(ctx, f.snapshot(t), []string{"a", "b"}, staging)

	for _, m := range report.Modules {
		assert.Equal(t, models.ModuleCanceled, m.Status)
	}
	entries, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBackup_ReportsProgress(t *testing.T) {
	f := newFixture(t)
	f.module(t, "editor", "backup_paths: []\n", nil)

	var stages []string
	f.executor(ExecutorOptions{Progress: func(ev models.Event) { stages = append(stages, ev.Stage) }}).
		Backup(context.Background(), f.snapshot(t), []string{"editor"}, t.TempDir())

	require.NotEmpty(t, stages)
	assert.Equal(t, StageModuleStart, stages[0])
	assert.Equal(t, StageModuleDone, stages[len(stages)-1])
}

func TestService_CreatesArchiveAndRemovesStaging(t *testing.T) {
	f := newFixture(t)
	f.module(t, "editor", "backup_paths:\n  - ~/.config/editor\n", nil)
	f.file(t, filepath.Join(f.home, ".config", "editor", "settings.conf"), "font=mono", 0644)

	now := time.Date(2026, 10, 19, 9, 15, 0, 0, time.UTC)
	stagingDir := t.TempDir()
	dest := filepath.Join(t.TempDir(), "backups")

	svc := NewService(ServiceOptions{
		Executor: ExecutorOptions{
			Runner: f.runner, Home: f.home, ConfigRoot: f.configRoot,
			Now: func() time.Time { return now },
		},
		StagingDir: stagingDir,
	})

	var events []models.Event
	report, err := svc.Run(context.Background(), f.snapshot(t), Request{
		RunID:       "run-1",
		Modules:     []string{"editor"},
		Destination: dest,
		Progress:    func(ev models.Event) { events = append(events, ev) },
	})
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, filepath.Join(dest, "backup_20261019091500.zip"), report.Archive)
	assert.Positive(t, report.ArchiveSize)

	entries, err := os.ReadDir(stagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NotEmpty(t, events)
	assert.Equal(t, "run-1", events[0].RunID)

	out := t.TempDir()
	require.NoError(t, archive.Zip{}.Unpack(report.Archive, out))
	assert.FileExists(t, filepath.Join(out, "editor", "editor", "settings.conf"))
	assert.FileExists(t, filepath.Join(out, "editor", manifest.FileName))

	second, err := svc.Run(context.Background(), f.snapshot(t), Request{Modules: []string{"editor"}, Destination: dest})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(second.Archive, "backup_20261019091500_1.zip"))
}

func TestService_NothingToArchive(t *testing.T) {
	f := newFixture(t)
	f.module(t, "broken", "backup_script: backup.sh\n", map[string]string{"backup.sh": "exit 1"})
	dest := t.TempDir()

	svc := NewService(ServiceOptions{Executor: ExecutorOptions{Runner: f.runner, Home: f.home}})
	report, err := svc.Run(context.Background(), f.snapshot(t), Request{Modules: []string{"broken"}, Destination: dest})

	assert.ErrorIs(t, err, ErrNothingToArchive)
	require.NotNil(t, report)
	assert.Empty(t, report.Archive)
	assert.Len(t, report.Failed(), 1)

	entries, _ := os.ReadDir(dest)
	assert.Empty(t, entries)
}

func TestService_InsufficientSpace(t *testing.T) {
	f := newFixture(t)
	f.module(t, "editor", "backup_paths: []\n", nil)

	svc := NewService(ServiceOptions{
		Executor:     ExecutorOptions{Runner: f.runner, Home: f.home},
		MinFreeBytes: 1 << 30,
		FreeSpace:    func(string) (uint64, error) { return 1024, nil },
	})
	report, err := svc.Run(context.Background(), f.snapshot(t), Request{Modules: []string{"editor"}, Destination: t.TempDir()})

	assert.ErrorIs(t, err, ErrInsufficientSpace)
	assert.NotEmpty(t, report.Error)
	assert.Empty(t, report.Modules)
}

func TestService_TarGz(t *testing.T) {
	f := newFixture(t)
	f.module(t, "editor", "backup_paths: []\n", nil)

	svc := NewService(ServiceOptions{Executor: ExecutorOptions{Runner: f.runner, Home: f.home}})
	report, err := svc.Run(context.Background(), f.snapshot(t), Request{
		Modules: []string{"editor"}, Destination: t.TempDir(), Codec: archive.TarGz{},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(report.Archive, ".tar.gz"))
}

// chdirForTest mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
