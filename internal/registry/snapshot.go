package registry

import (
	"sort"
	"time"

	"github.com/pandeptwidyaop/modbackup/internal/models"
)

// Snapshot is an immutable view of the modules loaded by one scan.
// Accessors return copies; a reload produces a new Snapshot.
type Snapshot struct {
	root     string
	loadedAt time.Time
	modules  map[string]models.Module
	names    []string
	failures []DescriptorError
	warnings []ProbeWarning
}

func newSnapshot(root string, loadedAt time.Time, modules []models.Module, failures []DescriptorError, warnings []ProbeWarning) *Snapshot {
	s := &Snapshot{
		root:     root,
		loadedAt: loadedAt,
		modules:  make(map[string]models.Module, len(modules)),
		failures: failures,
		warnings: warnings,
	}
	for _, m := range modules {
		s.modules[m.ID] = m
		s.names = append(s.names, m.ID)
	}
	sort.Strings(s.names)
	return s
}

// Root returns the directory the snapshot was loaded from.
func (s *Snapshot) Root() string { return s.root }

// LoadedAt returns when the scan finished.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Get returns the module with the given ID.
func (s *Snapshot) Get(id string) (models.Module, bool) {
	m, ok := s.modules[id]
	if !ok {
		return models.Module{}, false
	}
	return m.Clone(), true
}

// Names returns the module IDs in sorted order.
func (s *Snapshot) Names() []string {
	return append([]string(nil), s.names...)
}

// Modules returns every module, sorted by ID.
func (s *Snapshot) Modules() []models.Module {
	out := make([]models.Module, 0, len(s.names))
	for _, id := range s.names {
		out = append(out, s.modules[id].Clone())
	}
	return out
}

// Len returns the number of loaded modules.
func (s *Snapshot) Len() int { return len(s.names) }

// Failures returns the candidates that could not be loaded.
func (s *Snapshot) Failures() []DescriptorError {
	return append([]DescriptorError(nil), s.failures...)
}

// Warnings returns the non-fatal probe failures of loaded modules.
func (s *Snapshot) Warnings() []ProbeWarning {
	return append([]ProbeWarning(nil), s.warnings...)
}
