// Package manifest reads and writes the manifest.yaml stored in every
// archived module subtree.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pandeptwidyaop/modbackup/internal/models"
)

// FileName is the manifest's name inside a module subtree.
const FileName = "manifest.yaml"

// ErrInvalidManifest indicates a missing, unreadable or incomplete manifest.
var ErrInvalidManifest = errors.New("invalid manifest")

var requiredKeys = []string{"module_name", "version", "backup_date", "paths", "profiles"}

// dateLayouts accepts RFC 3339 as written by Write as well as the naive
// ISO-8601 timestamps produced by older archives.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

type document struct {
	ModuleName string   `yaml:"module_name"`
	Version    string   `yaml:"version"`
	BackupDate string   `yaml:"backup_date"`
	Paths      []string `yaml:"paths"`
	Profiles   []string `yaml:"profiles"`
}

// Codec serializes manifests to and from files.
type Codec interface {
	Write(m *models.Manifest, path string) error
	Read(path string) (*models.Manifest, error)
}

// YAMLCodec is the manifest.yaml codec.
type YAMLCodec struct{}

// Write serializes m to path.
func (YAMLCodec) Write(m *models.Manifest, path string) error {
	return Write(m, path)
}

// Read parses and validates the manifest at path.
func (YAMLCodec) Read(path string) (*models.Manifest, error) {
	return Read(path)
}

// Write serializes m to path. Nil lists are written as empty lists so that
// every required key is present.
func Write(m *models.Manifest, path string) error {
	doc := document{
		ModuleName: m.ModuleName,
		Version:    m.Version,
		BackupDate: m.BackupDate.Format(time.RFC3339Nano),
		Paths:      nonNil(m.Paths),
		Profiles:   nonNil(m.Profiles),
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Read parses the manifest at path. A missing file, a YAML error, a missing
// key or a malformed value fails with ErrInvalidManifest.
func Read(path string) (*models.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrInvalidManifest, key)
		}
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if strings.TrimSpace(doc.ModuleName) == "" {
		return nil, fmt.Errorf("%w: empty module_name", ErrInvalidManifest)
	}
	if strings.TrimSpace(doc.Version) == "" {
		return nil, fmt.Errorf("%w: empty version", ErrInvalidManifest)
	}

	date, err := parseDate(doc.BackupDate)
	if err != nil {
		return nil, fmt.Errorf("%w: backup_date: %v", ErrInvalidManifest, err)
	}

	return &models.Manifest{
		ModuleName: doc.ModuleName,
		Version:    doc.Version,
		BackupDate: date,
		Paths:      nonNil(doc.Paths),
		Profiles:   nonNil(doc.Profiles),
	}, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
