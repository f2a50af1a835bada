package archive

import (
	"archive/tar"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// TarGz stores the tree as a gzip-compressed tarball.
type TarGz struct{}

func (TarGz) Ext() string { return "tar.gz" }

// Pack writes srcDir into a .tar.gz file at dstFile.
func (TarGz) Pack(srcDir, dstFile string) (err error) {
	out, err := os.Create(dstFile)
	if err != nil {
		return &Error{Op: "pack", Path: dstFile, Err: err}
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = &Error{Op: "pack", Path: dstFile, Err: cerr}
		}
	}()

	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == srcDir {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return addTarEntry(tw, path, filepath.ToSlash(rel), info)
	})
	if walkErr != nil {
		_ = tw.Close()
		_ = gw.Close()
		return &Error{Op: "pack", Path: dstFile, Err: walkErr}
	}
	if err := tw.Close(); err != nil {
		return &Error{Op: "pack", Path: dstFile, Err: err}
	}
	if err := gw.Close(); err != nil {
		return &Error{Op: "pack", Path: dstFile, Err: err}
	}
	return nil
}

func addTarEntry(tw *tar.Writer, path, name string, info fs.FileInfo) error {
	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		link = target
	} else if !info.IsDir() && !info.Mode().IsRegular() {
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// Unpack extracts a .tar.gz file into dstDir.
func (TarGz) Unpack(srcFile, dstDir string) error {
	in, err := os.Open(srcFile)
	if err != nil {
		return &Error{Op: "unpack", Path: srcFile, Err: err}
	}
	defer in.Close()

	gr, err := gzip.NewReader(in)
	if err != nil {
		return &Error{Op: "unpack", Path: srcFile, Err: err}
	}
	defer gr.Close()

	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return &Error{Op: "unpack", Path: srcFile, Err: err}
	}

	tr := tar.NewReader(gr)
	var (
		dirs  []dirMeta
		links []pendingLink
	)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &Error{Op: "unpack", Path: srcFile, Err: err}
		}

		target, err := safeJoin(dstDir, hdr.Name)
		if err != nil {
			return &Error{Op: "unpack", Path: srcFile, Err: err}
		}
		if err := extractTarEntry(tr, hdr, target, &dirs, &links); err != nil {
			return &Error{Op: "unpack", Path: srcFile, Err: err}
		}
	}

	if err := createLinks(dstDir, links); err != nil {
		return &Error{Op: "unpack", Path: srcFile, Err: err}
	}
	if err := applyDirMeta(dirs); err != nil {
		return &Error{Op: "unpack", Path: srcFile, Err: err}
	}
	return nil
}

func extractTarEntry(tr *tar.Reader, hdr *tar.Header, target string, dirs *[]dirMeta, links *[]pendingLink) error {
	mode := os.FileMode(hdr.Mode).Perm()

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, 0700|mode); err != nil {
			return err
		}
		*dirs = append(*dirs, dirMeta{path: target, mode: mode, mtime: hdr.ModTime})
		return nil
	case tar.TypeSymlink:
		*links = append(*links, pendingLink{path: target, target: hdr.Linkname})
		return nil
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		if err := os.Chmod(target, mode); err != nil {
			return err
		}
		return os.Chtimes(target, hdr.ModTime, hdr.ModTime)
	default:
		return nil
	}
}
