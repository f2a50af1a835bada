package models

import "time"

// Manifest is the authoritative record of what an archived module subtree
// contains. It is written at backup time and read back at restore time.
type Manifest struct {
	ModuleName string    `json:"module_name"`
	Version    string    `json:"version"`
	BackupDate time.Time `json:"backup_date"`
	Paths      []string  `json:"paths"`
	Profiles   []string  `json:"profiles"`
}

// HasProfile reports whether name was backed up.
func (m *Manifest) HasProfile(name string) bool {
	for _, p := range m.Profiles {
		if p == name {
			return true
		}
	}
	return false
}
