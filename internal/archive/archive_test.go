package archive

import (
	"archive/tar"
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T) (string, time.Time) {
	t.Helper()
	src := t.TempDir()
	mtime := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, os.MkdirAll(filepath.Join(src, "editor", "profiles", "work"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "editor", "manifest.yaml"), []byte("module_name: editor\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "editor", "profiles", "work", "settings"), []byte("theme=dark"), 0600))
	require.NoError(t, os.Chtimes(filepath.Join(src, "editor", "profiles", "work", "settings"), mtime, mtime))
	require.NoError(t, os.Symlink("manifest.yaml", filepath.Join(src, "editor", "link")))
	return src, mtime
}

func TestCodecs_RoundTrip(t *testing.T) {
	for _, codec := range []Codec{Zip{}, TarGz{}} {
		t.Run(codec.Ext(), func(t *testing.T) {
			src, mtime := buildTree(t)
			file := filepath.Join(t.TempDir(), "backup."+codec.Ext())
			require.NoError(t, codec.Pack(src, file))

			dst := filepath.Join(t.TempDir(), "out")
			require.NoError(t, codec.Unpack(file, dst))

			settings := filepath.Join(dst, "editor", "profiles", "work", "settings")
			data, err := os.ReadFile(settings)
			require.NoError(t, err)
			assert.Equal(t, "theme=dark", string(data))

			info, err := os.Stat(settings)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
			assert.True(t, info.ModTime().Equal(mtime), "mtime %v != %v", info.ModTime(), mtime)

			link, err := os.Readlink(filepath.Join(dst, "editor", "link"))
			require.NoError(t, err)
			assert.Equal(t, "manifest.yaml", link)
		})
	}
}

func TestZipUnpack_RejectsEscapingEntries(t *testing.T) {
	file := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(file)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("../escaped.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dst := filepath.Join(t.TempDir(), "out")
	err = Zip{}.Unpack(file, dst)

	var archiveErr *Error
	require.ErrorAs(t, err, &archiveErr)
	assert.Equal(t, "unpack", archiveErr.Op)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dst), "escaped.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

type testEntry struct {
	name string
	link string
	body string
}

func writeTestZip(t *testing.T, entries []testEntry) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "crafted.zip")
	f, err := os.Create(file)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.name, Method: zip.Store}
		content := e.body
		if e.link != "" {
			hdr.SetMode(os.ModeSymlink | 0777)
			content = e.link
		} else {
			hdr.SetMode(0644)
		}
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return file
}

func writeTestTarGz(t *testing.T, entries []testEntry) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "crafted.tar.gz")
	f, err := os.Create(file)
	require.NoError(t, err)
	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0644, Typeflag: tar.TypeReg, Size: int64(len(e.body))}
		if e.link != "" {
			hdr = &tar.Header{Name: e.name, Mode: 0777, Typeflag: tar.TypeSymlink, Linkname: e.link}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.link == "" {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())
	return file
}

func TestUnpack_DoesNotWriteThroughSymlinkEntries(t *testing.T) {
	writers := map[string]func(*testing.T, []testEntry) string{
		"zip":    writeTestZip,
		"tar.gz": writeTestTarGz,
	}
	codecs := map[string]Codec{"zip": Zip{}, "tar.gz": TarGz{}}

	for format, write := range writers {
		t.Run(format, func(t *testing.T) {
			outside := t.TempDir()

			tests := []struct {
				name    string
				entries []testEntry
			}{
				{"file beneath link", []testEntry{
					{name: "m/link", link: outside},
					{name: "m/link/pwned", body: "x"},
				}},
				{"link beneath link", []testEntry{
					{name: "m/link", link: outside},
					{name: "m/link/pwned", link: "/etc/hostname"},
				}},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					file := write(t, tt.entries)
					dst := filepath.Join(t.TempDir(), "out")

					err := codecs[format].Unpack(file, dst)

					var archiveErr *Error
					assert.ErrorAs(t, err, &archiveErr)
					_, statErr := os.Lstat(filepath.Join(outside, "pwned"))
					assert.True(t, os.IsNotExist(statErr), "entry was written outside the destination")
				})
			}
		})
	}
}

func TestUnpack_KeepsLinksPointingOutside(t *testing.T) {
	for _, codec := range []Codec{Zip{}, TarGz{}} {
		t.Run(codec.Ext(), func(t *testing.T) {
			entries := []testEntry{
				{name: "m/dotfiles", link: "/usr/share"},
				{name: "m/settings", body: "a=1"},
			}
			var file string
			if codec.Ext() == "zip" {
				file = writeTestZip(t, entries)
			} else {
				file = writeTestTarGz(t, entries)
			}

			dst := filepath.Join(t.TempDir(), "out")
			require.NoError(t, codec.Unpack(file, dst))

			link, err := os.Readlink(filepath.Join(dst, "m", "dotfiles"))
			require.NoError(t, err)
			assert.Equal(t, "/usr/share", link)
		})
	}
}

func TestUnpack_CorruptArchive(t *testing.T) {
	file := filepath.Join(t.TempDir(), "broken.zip")
	require.NoError(t, os.WriteFile(file, []byte("not a zip"), 0644))

	var archiveErr *Error
	assert.ErrorAs(t, Zip{}.Unpack(file, t.TempDir()), &archiveErr)
}

func TestForFormatAndPath(t *testing.T) {
	c, err := ForFormat("")
	require.NoError(t, err)
	assert.Equal(t, "zip", c.Ext())

	c, err = ForFormat("tar.gz")
	require.NoError(t, err)
	assert.Equal(t, "tar.gz", c.Ext())

	_, err = ForFormat("rar")
	assert.Error(t, err)

	c, err = ForPath("/tmp/backup_20240101000000.TGZ")
	require.NoError(t, err)
	assert.Equal(t, "tar.gz", c.Ext())

	_, err = ForPath("/tmp/backup.7z")
	assert.Error(t, err)
}
