package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/modbackup/internal/config"
	"github.com/pandeptwidyaop/modbackup/internal/database"
	"github.com/pandeptwidyaop/modbackup/internal/fsutil"
	"github.com/pandeptwidyaop/modbackup/internal/logging"
	"github.com/pandeptwidyaop/modbackup/internal/registry"
	"github.com/pandeptwidyaop/modbackup/internal/runner"
	"github.com/pandeptwidyaop/modbackup/internal/services"
)

const (
	exitOK      = 0
	exitFailure = 1
	// exitPartial means the run finished but some modules or paths failed.
	exitPartial = 2
)

// exitError carries a process exit code for a summary already printed.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// app holds what the commands share. Components are opened on first use.
type app struct {
	configPath string
	verbose    bool

	stdout io.Writer
	stderr io.Writer

	cfg       *config.Config
	home      string
	logCloser io.Closer

	runner   runner.Runner
	registry *registry.Registry
	db       *database.DB
	history  *services.HistoryService
	remotes  *services.RemoteService
	ops      *services.OperationService
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load config %s: %w", a.configPath, err)
		}
		cfg, _ = config.Load("")
		defer log.Printf("[Config] %s not found, using defaults", a.configPath)
	}
	a.cfg = cfg

	var console io.Writer
	if a.verbose {
		console = a.stderr
	}
	closer, err := logging.Setup(cfg.Log, console)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	a.logCloser = closer

	home, err := fsutil.ResolveHome(cfg.Modules.HomeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve home directory: %w", err)
	}
	a.home = home
	a.runner = runner.New(cfg.Execution.Shell, cfg.Execution.MaxOutputSize)
	return nil
}

func (a *app) modulesDir() string {
	return fsutil.ExpandHome(a.cfg.Modules.Dir, a.home)
}

// loadRegistry scans the modules directory once per process.
func (a *app) loadRegistry(ctx context.Context) *registry.Registry {
	if a.registry != nil {
		return a.registry
	}
	a.registry = registry.New(registry.Options{
		Root:    a.modulesDir(),
		Runner:  a.runner,
		Home:    a.home,
		Timeout: a.cfg.Execution.ScriptTimeout(),
	})
	a.registry.Reload(ctx)
	return a.registry
}

func (a *app) openDB() error {
	if a.db != nil {
		return nil
	}

	db, err := database.New(fsutil.ExpandHome(a.cfg.Database.Path, a.home))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.db = db

	var crypto *services.CryptoService
	if a.cfg.Security.EncryptionKey != "" {
		crypto, err = services.NewCryptoServiceFromHex(a.cfg.Security.EncryptionKey)
		if err != nil {
			return err
		}
	}
	a.history = services.NewHistoryService(db)
	a.remotes = services.NewRemoteService(db, crypto)
	return nil
}

// operations opens everything a backup or restore needs.
func (a *app) operations(ctx context.Context) (*services.OperationService, error) {
	if a.ops != nil {
		return a.ops, nil
	}
	if err := a.openDB(); err != nil {
		return nil, err
	}

	ops, err := services.NewOperationService(services.OperationDeps{
		Config:   a.cfg,
		Registry: a.loadRegistry(ctx),
		Runner:   a.runner,
		History:  a.history,
		Remotes:  a.remotes,
	})
	if err != nil {
		return nil, err
	}
	a.ops = ops
	return ops, nil
}

// run wraps a command body so everything it opened is closed afterwards,
// including when it fails.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.close()
		return fn(cmd, args)
	}
}

func (a *app) close() {
	if a.ops != nil {
		a.ops.Close()
		a.ops = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("[Database] Error closing database: %v", err)
		}
		a.db = nil
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
		a.logCloser = nil
	}
}
