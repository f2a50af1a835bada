// Package fsutil provides the filesystem primitives shared by backup and
// restore: home expansion, existence probes and metadata-preserving copies.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading "~" with home. Paths without the
// placeholder are returned cleaned but otherwise untouched.
func ExpandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return filepath.Clean(path)
}

// ResolveHome returns home if set, else the current user's home directory.
func ResolveHome(home string) (string, error) {
	if home != "" {
		return home, nil
	}
	return os.UserHomeDir()
}

// Exists reports whether path exists. Broken symlinks count as existing.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// BaseName returns the entry name a declared path is stored under.
func BaseName(path string) string {
	return filepath.Base(filepath.Clean(path))
}

// ValidName reports whether name is safe to use as a single path element.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// TargetExists reports whether path exists after following symlinks.
func TargetExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Copy copies src to dst. Directories are copied recursively, files as a
// single file. Parent directories of dst are created as needed. A symlink
// at src is followed; symlinks inside a copied tree stay symlinks.
func Copy(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if info.IsDir() {
		return CopyTree(src, dst)
	}
	return copyEntry(src, dst, info)
}

// CopyTree recursively copies the directory src to dst, preserving modes,
// modification times and symlinks.
func CopyTree(src, dst string) error {
	// WalkDir does not descend into a symlinked root.
	src, err := filepath.EvalSymlinks(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}

	type dirTime struct {
		path string
		info fs.FileInfo
	}
	var dirs []dirTime

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		if d.IsDir() {
			if err := os.MkdirAll(target, info.Mode().Perm()|0700); err != nil {
				return err
			}
			dirs = append(dirs, dirTime{path: target, info: info})
			return nil
		}
		return copyEntry(path, target, info)
	})
	if err != nil {
		return err
	}

	// Directory metadata last, deepest first, since writing children bumps mtimes.
	for i := len(dirs) - 1; i >= 0; i-- {
		d := dirs[i]
		if err := os.Chmod(d.path, d.info.Mode().Perm()); err != nil {
			return err
		}
		if err := os.Chtimes(d.path, d.info.ModTime(), d.info.ModTime()); err != nil {
			return err
		}
	}
	return nil
}

func copyEntry(src, dst string, info fs.FileInfo) error {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		link, err := os.Readlink(src)
		if err != nil {
			return err
		}
		if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return os.Symlink(link, dst)
	case info.Mode().IsRegular():
		return CopyFile(src, dst, info)
	default:
		// Sockets, devices and pipes are not backed up.
		return nil
	}
}

// CopyFile copies a regular file, preserving its permission bits and
// modification time.
func CopyFile(src, dst string, info fs.FileInfo) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	if err = out.Chmod(info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
