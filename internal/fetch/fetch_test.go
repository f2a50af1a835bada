package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverParams(t *testing.T, srv *httptest.Server) ServerParams {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return ServerParams{Protocol: "http", Host: u.Hostname(), Port: port}
}

func TestMux_HTTPDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "ops" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/archives/backup_20240101000000.zip" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("zip-bytes"))
	}))
	defer srv.Close()

	params := serverParams(t, srv)
	params.Username = "ops"
	params.Password = "secret"
	dest := t.TempDir()

	local, err := NewMux().Fetch(context.Background(), params, "archives/backup_20240101000000.zip", dest)
	require.NoError(t, err)
	assert.Equal(t, dest, filepath.Dir(local))
	assert.True(t, strings.HasSuffix(local, ".zip"))

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(data))
}

func TestMux_HTTPFullURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tarball"))
	}))
	defer srv.Close()

	local, err := NewMux().Fetch(context.Background(), ServerParams{Protocol: "https"}, srv.URL+"/b.tar.gz", t.TempDir())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(local, ".tar.gz"))
}

func TestMux_HTTPStatusIsRetrievalError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dest := t.TempDir()
	_, err := NewMux().Fetch(context.Background(), serverParams(t, srv), "missing.zip", dest)

	var retrievalErr *RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, "http", retrievalErr.Protocol)
	assert.Equal(t, "missing.zip", retrievalErr.RemoteID)
	assert.Contains(t, err.Error(), "HTTP 404")

	entries, _ := os.ReadDir(dest)
	assert.Empty(t, entries)
}

func TestMux_UnsupportedProtocol(t *testing.T) {
	_, err := NewMux().Fetch(context.Background(), ServerParams{Protocol: "gopher"}, "x.zip", t.TempDir())
	var retrievalErr *RetrievalError
	assert.ErrorAs(t, err, &retrievalErr)
}

func TestMux_RegisterOverrides(t *testing.T) {
	m := NewMux()
	m.Register("ftp", fetcherFunc(func(context.Context, ServerParams, string, string) (string, error) {
		return "", errors.New("connection refused")
	}))

	_, err := m.Fetch(context.Background(), ServerParams{Protocol: "FTP", Host: "files.local"}, "backup.zip", t.TempDir())
	var retrievalErr *RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, "ftp", retrievalErr.Protocol)
	assert.Contains(t, retrievalErr.Error(), "connection refused")
}

func TestMux_KeepsWrappedRetrievalError(t *testing.T) {
	m := NewMux()
	m.Register("ftp", fetcherFunc(func(context.Context, ServerParams, string, string) (string, error) {
		return "", fmt.Errorf("login: %w", &RetrievalError{Protocol: "ftp", RemoteID: "nas/backup.zip", Err: errors.New("530 denied")})
	}))

	_, err := m.Fetch(context.Background(), ServerParams{Protocol: "ftp"}, "backup.zip", t.TempDir())
	var retrievalErr *RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, "nas/backup.zip", retrievalErr.RemoteID)
	assert.Contains(t, err.Error(), "login:")
}

func TestRemoteExt(t *testing.T) {
	assert.Equal(t, ".zip", remoteExt("dir/backup.ZIP"))
	assert.Equal(t, ".tar.gz", remoteExt("backup.tar.gz"))
	assert.Equal(t, ".zip", remoteExt("https://host/a.zip?sig=1"))
	assert.Equal(t, "", remoteExt("backup"))
}

type fetcherFunc func(ctx context.Context, params ServerParams, remoteFile, destDir string) (string, error)

func (f fetcherFunc) Fetch(ctx context.Context, params ServerParams, remoteFile, destDir string) (string, error) {
	return f(ctx, params, remoteFile, destDir)
}
