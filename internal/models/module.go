// Package models defines data models for modules, manifests, reports and runs.
package models

// Descriptor is the static definition of a module, parsed from its
// module.yaml. Command fields hold resolved script paths; empty means unset.
type Descriptor struct {
	Name            string   `json:"name"`
	Version         string   `json:"version"`
	IconPath        string   `json:"icon_path"`
	BackupPaths     []string `json:"backup_paths"`
	ProfilesCommand string   `json:"profiles_command,omitempty"`
	BackupCommand   string   `json:"backup_command,omitempty"`
	RestoreCommand  string   `json:"restore_command,omitempty"`
}

// Module is a loaded module: its descriptor plus the state probed at load time.
// ID is the module directory name and is unique within a snapshot.
type Module struct {
	ID          string     `json:"id"`
	Dir         string     `json:"dir"`
	Descriptor  Descriptor `json:"descriptor"`
	DataPresent bool       `json:"data_present"`
	Profiles    []string   `json:"profiles"`
}

// Clone returns a deep copy so snapshot readers cannot alias shared slices.
func (m Module) Clone() Module {
	m.Descriptor.BackupPaths = append([]string(nil), m.Descriptor.BackupPaths...)
	m.Profiles = append([]string(nil), m.Profiles...)
	return m
}

// DisplayName returns the descriptor name, falling back to the module ID.
func (m Module) DisplayName() string {
	if m.Descriptor.Name != "" {
		return m.Descriptor.Name
	}
	return m.ID
}
