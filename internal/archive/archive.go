// Package archive packs a staging directory into a single archive file and
// unpacks it again. Both formats preserve file modes, modification times and
// symlinks.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Codec packs and unpacks directory trees.
type Codec interface {
	// Pack writes the contents of srcDir to dstFile. Entries are stored
	// relative to srcDir.
	Pack(srcDir, dstFile string) error
	// Unpack extracts srcFile into dstDir, which is created if needed.
	Unpack(srcFile, dstDir string) error
	// Ext is the file extension without the leading dot.
	Ext() string
}

// Error is a fatal packing or unpacking failure.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("archive %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ForFormat returns the codec for a configured format name.
func ForFormat(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "", "zip":
		return Zip{}, nil
	case "tar.gz", "tgz":
		return TarGz{}, nil
	default:
		return nil, fmt.Errorf("unsupported archive format %q", name)
	}
}

// ForPath picks the codec matching an archive's file name.
func ForPath(path string) (Codec, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return Zip{}, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return TarGz{}, nil
	default:
		return nil, &Error{Op: "detect", Path: path, Err: fmt.Errorf("unknown archive extension")}
	}
}

// safeJoin resolves an entry name inside dstDir, rejecting names that would
// escape it.
func safeJoin(dstDir, name string) (string, error) {
	name = filepath.FromSlash(name)
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("absolute entry path %q", name)
	}
	target := filepath.Join(dstDir, name)
	rel, err := filepath.Rel(dstDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q escapes destination", name)
	}
	return target, nil
}

type dirMeta struct {
	path  string
	mode  os.FileMode
	mtime time.Time
}

// applyDirMeta sets directory modes and times deepest first, after all
// children have been written.
func applyDirMeta(dirs []dirMeta) error {
	for i := len(dirs) - 1; i >= 0; i-- {
		d := dirs[i]
		if err := os.Chmod(d.path, d.mode); err != nil {
			return err
		}
		if err := os.Chtimes(d.path, d.mtime, d.mtime); err != nil {
			return err
		}
	}
	return nil
}

// pendingLink is a symlink entry created only after every other entry has
// been written, so no entry can be extracted through it.
type pendingLink struct {
	path   string
	target string
}

func createLinks(dstDir string, links []pendingLink) error {
	for _, l := range links {
		if err := ensureRealParents(dstDir, l.path); err != nil {
			return err
		}
		if _, err := os.Lstat(l.path); err == nil {
			return fmt.Errorf("symlink entry %s collides with an existing entry", l.path)
		}
		if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
			return err
		}
		if err := os.Symlink(l.target, l.path); err != nil {
			return err
		}
	}
	return nil
}

// ensureRealParents fails when a directory between dstDir and path is a
// symlink.
func ensureRealParents(dstDir, path string) error {
	rel, err := filepath.Rel(dstDir, filepath.Dir(path))
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	cur := dstDir
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("entry %s lies beneath symlink %s", path, cur)
		}
	}
	return nil
}
