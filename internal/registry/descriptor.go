package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pandeptwidyaop/modbackup/internal/fsutil"
	"github.com/pandeptwidyaop/modbackup/internal/models"
)

const (
	defaultVersion = "1.0"
	defaultIcon    = "icon.png"
)

type descriptorDoc struct {
	Name           string   `yaml:"name"`
	Version        string   `yaml:"version"`
	Icon           string   `yaml:"icon"`
	BackupPaths    []string `yaml:"backup_paths"`
	ProfilesScript string   `yaml:"profiles_script"`
	BackupScript   string   `yaml:"backup_script"`
	RestoreScript  string   `yaml:"restore_script"`
}

// IsDescriptorName reports whether a file name matches the descriptor
// pattern module.*.yaml / module.*.yml.
func IsDescriptorName(name string) bool {
	if !strings.HasPrefix(name, "module.") {
		return false
	}
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// FindDescriptor returns the descriptor file of a module directory. When
// several files match, the lexicographically smallest name wins.
func FindDescriptor(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, e := range entries {
		if e.IsDir() || !IsDescriptorName(e.Name()) {
			continue
		}
		matches = append(matches, e.Name())
	}
	if len(matches) == 0 {
		return "", ErrNoDescriptor
	}

	sort.Strings(matches)
	return filepath.Join(dir, matches[0]), nil
}

// ParseDescriptor reads the descriptor at path for the module directory dir,
// applying defaults and resolving script paths against dir.
func ParseDescriptor(dir, path string) (models.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Descriptor{}, err
	}

	var doc descriptorDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(false)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return models.Descriptor{}, fmt.Errorf("parse: %w", err)
	}

	desc := models.Descriptor{
		Name:        strings.TrimSpace(doc.Name),
		Version:     strings.TrimSpace(doc.Version),
		BackupPaths: doc.BackupPaths,
	}
	if desc.Name == "" {
		desc.Name = filepath.Base(dir)
	}
	if desc.Version == "" {
		desc.Version = defaultVersion
	}

	icon := doc.Icon
	if icon == "" {
		icon = defaultIcon
	}
	desc.IconPath = resolve(dir, icon)

	seen := make(map[string]string, len(doc.BackupPaths))
	for _, p := range doc.BackupPaths {
		if strings.TrimSpace(p) == "" {
			return models.Descriptor{}, errors.New("backup_paths contains an empty entry")
		}
		base := fsutil.BaseName(p)
		if prev, dup := seen[base]; dup {
			return models.Descriptor{}, fmt.Errorf("backup_paths %q and %q share the entry name %q", prev, p, base)
		}
		seen[base] = p
	}

	scripts := []struct {
		field string
		value string
		dst   *string
	}{
		{"profiles_script", doc.ProfilesScript, &desc.ProfilesCommand},
		{"backup_script", doc.BackupScript, &desc.BackupCommand},
		{"restore_script", doc.RestoreScript, &desc.RestoreCommand},
	}
	for _, s := range scripts {
		if strings.TrimSpace(s.value) == "" {
			continue
		}
		resolved := resolve(dir, s.value)
		info, err := os.Stat(resolved)
		if err != nil {
			return models.Descriptor{}, fmt.Errorf("%s: %w", s.field, err)
		}
		if info.IsDir() {
			return models.Descriptor{}, fmt.Errorf("%s: %s is a directory", s.field, resolved)
		}
		*s.dst = resolved
	}

	return desc, nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}
