package archive

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
)

// Zip is the default codec.
type Zip struct{}

func (Zip) Ext() string { return "zip" }

func newZipWriter(w io.Writer) *zip.Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	return zw
}

func newZipReader(path string) (*zip.ReadCloser, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	zr.RegisterDecompressor(zip.Deflate, func(in io.Reader) io.ReadCloser {
		return flate.NewReader(in)
	})
	return zr, nil
}

// Pack writes srcDir into a zip file at dstFile.
func (Zip) Pack(srcDir, dstFile string) (err error) {
	out, err := os.Create(dstFile)
	if err != nil {
		return &Error{Op: "pack", Path: dstFile, Err: err}
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = &Error{Op: "pack", Path: dstFile, Err: cerr}
		}
	}()

	zw := newZipWriter(out)
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
		return addZipEntry(zw, path, filepath.ToSlash(rel), info)
	})
	if walkErr != nil {
		_ = zw.Close()
		return &Error{Op: "pack", Path: dstFile, Err: walkErr}
	}
	if err := zw.Close(); err != nil {
		return &Error{Op: "pack", Path: dstFile, Err: err}
	}
	return nil
}

func addZipEntry(zw *zip.Writer, path, name string, info fs.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Modified = info.ModTime()

	switch {
	case info.IsDir():
		hdr.Name += "/"
		hdr.Method = zip.Store
		_, err := zw.CreateHeader(hdr)
		return err
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		hdr.Method = zip.Store
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, target)
		return err
	case info.Mode().IsRegular():
		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	default:
		return nil
	}
}

// Unpack extracts a zip file into dstDir.
func (Zip) Unpack(srcFile, dstDir string) error {
	zr, err := newZipReader(srcFile)
	if err != nil {
		return &Error{Op: "unpack", Path: srcFile, Err: err}
	}
	defer zr.Close()

	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return &Error{Op: "unpack", Path: srcFile, Err: err}
	}

	var (
		dirs  []dirMeta
		links []pendingLink
	)
	for _, f := range zr.File {
		target, err := safeJoin(dstDir, f.Name)
		if err != nil {
			return &Error{Op: "unpack", Path: srcFile, Err: err}
		}
		if err := extractZipEntry(f, target, &dirs, &links); err != nil {
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

func extractZipEntry(f *zip.File, target string, dirs *[]dirMeta, links *[]pendingLink) error {
	mode := f.Mode()

	if mode.IsDir() {
		if err := os.MkdirAll(target, 0700|mode.Perm()); err != nil {
			return err
		}
		*dirs = append(*dirs, dirMeta{path: target, mode: mode.Perm(), mtime: f.Modified})
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if mode&os.ModeSymlink != 0 {
		link, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		*links = append(*links, pendingLink{path: target, target: string(link)})
		return nil
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Chmod(target, mode.Perm()); err != nil {
		return err
	}
	return os.Chtimes(target, f.Modified, f.Modified)
}
