// Package registry discovers modules under a root directory and exposes
// them as immutable snapshots that can be reloaded on demand.
package registry

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pandeptwidyaop/modbackup/internal/models"
	"github.com/pandeptwidyaop/modbackup/internal/runner"
)

// Options configures how modules are probed.
type Options struct {
	// Root is the modules directory used by Reload.
	Root   string
	Runner runner.Runner
	// Home replaces "~" in declared paths.
	Home string
	// Timeout bounds each profiles script; zero means no limit.
	Timeout time.Duration
}

// Registry holds the current snapshot and notifies subscribers on reload.
type Registry struct {
	opts Options

	reloadMu sync.Mutex

	mu        sync.RWMutex
	current   *Snapshot
	listeners map[int]func(*Snapshot)
	nextID    int
}

// New creates a Registry. The initial snapshot is empty until Reload.
func New(opts Options) *Registry {
	return &Registry{
		opts:      opts,
		current:   newSnapshot(opts.Root, time.Time{}, nil, nil, nil),
		listeners: make(map[int]func(*Snapshot)),
	}
}

// Load scans root and builds a snapshot without touching the registry's
// current one. A missing root yields an empty snapshot.
func (r *Registry) Load(ctx context.Context, root string) *Snapshot {
	// Module and script paths are absolute so scripts can run from their
	// module directory.
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[Registry] Failed to read modules directory %s: %v", root, err)
		}
		return newSnapshot(root, time.Now(), nil, nil, nil)
	}

	var (
		modules  []models.Module
		failures []DescriptorError
		warnings []ProbeWarning
	)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, id := range names {
		dir := filepath.Join(root, id)

		m, warn, err := r.loadModule(ctx, id, dir)
		if err != nil {
			var de *DescriptorError
			if !errors.As(err, &de) {
				de = &DescriptorError{Module: id, Err: err}
			}
			log.Printf("[Registry] Skipping %s: %v", id, de)
			failures = append(failures, *de)
			continue
		}
		if warn != nil {
			log.Printf("[Registry] Warning: %v", warn)
			warnings = append(warnings, *warn)
		}
		modules = append(modules, m)
	}

	snap := newSnapshot(root, time.Now(), modules, failures, warnings)
	log.Printf("[Registry] Loaded %d module(s) from %s (%d failed)", snap.Len(), root, len(failures))
	return snap
}

func (r *Registry) loadModule(ctx context.Context, id, dir string) (models.Module, *ProbeWarning, error) {
	path, err := FindDescriptor(dir)
	if err != nil {
		return models.Module{}, nil, &DescriptorError{Module: id, Err: err}
	}

	desc, err := ParseDescriptor(dir, path)
	if err != nil {
		return models.Module{}, nil, &DescriptorError{Module: id, Path: path, Err: err}
	}

	m := models.Module{
		ID:          id,
		Dir:         dir,
		Descriptor:  desc,
		DataPresent: DetectData(desc, r.opts.Home),
		Profiles:    []string{},
	}

	if r.opts.Runner == nil || desc.ProfilesCommand == "" {
		return m, nil, nil
	}

	profiles, err := DetectProfiles(ctx, r.opts.Runner, id, dir, desc, r.opts.Timeout)
	m.Profiles = profiles

	var warn *ProbeWarning
	if errors.As(err, &warn) {
		return m, warn, nil
	}
	return m, nil, nil
}

// Reload rescans the configured root, swaps the current snapshot and
// notifies subscribers. Concurrent calls are serialized.
func (r *Registry) Reload(ctx context.Context) *Snapshot {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	snap := r.Load(ctx, r.opts.Root)

	r.mu.Lock()
	r.current = snap
	listeners := make([]func(*Snapshot), 0, len(r.listeners))
	for _, fn := range r.listeners {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return snap
}

// Current returns the latest snapshot.
func (r *Registry) Current() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Subscribe registers fn to be called after every reload. The returned
// function removes the subscription.
func (r *Registry) Subscribe(fn func(*Snapshot)) (cancel func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// OnRelevantChange is the callback handed to the watcher.
func (r *Registry) OnRelevantChange() {
	log.Printf("[Registry] Change detected under %s, reloading", r.opts.Root)
	r.Reload(context.Background())
}
