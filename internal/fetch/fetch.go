// Package fetch retrieves archives from remote servers into a local file.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"
	"time"
)

// ServerParams are the connection parameters of a remote.
type ServerParams struct {
	Protocol string
	// Host is the server name, or the bucket for s3 and gs.
	Host     string
	Port     int
	Username string
	Password string
	Region   string
	Endpoint string
	// CredentialsFile is a service account key for gs.
	CredentialsFile string
}

// RetrievalError is a failed download. It is fatal for the restore that
// requested it and happens before anything is extracted.
type RetrievalError struct {
	Protocol string
	RemoteID string
	Err      error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve %s via %s: %v", e.RemoteID, e.Protocol, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// Fetcher downloads remoteFile into destDir and returns the local path.
type Fetcher interface {
	Fetch(ctx context.Context, params ServerParams, remoteFile, destDir string) (string, error)
}

// Mux dispatches on ServerParams.Protocol.
type Mux struct {
	fetchers map[string]Fetcher
}

// NewMux returns a Mux with the ftp, http(s), s3 and gs fetchers registered.
func NewMux() *Mux {
	m := &Mux{fetchers: make(map[string]Fetcher)}
	m.Register("ftp", &FTP{Timeout: 30 * time.Second})
	httpFetcher := &HTTP{}
	m.Register("http", httpFetcher)
	m.Register("https", httpFetcher)
	m.Register("s3", &S3{})
	m.Register("gs", &GCS{})
	return m
}

// Register adds or replaces the fetcher for protocol.
func (m *Mux) Register(protocol string, f Fetcher) {
	m.fetchers[strings.ToLower(protocol)] = f
}

// Protocols lists the registered protocol names.
func (m *Mux) Protocols() []string {
	out := make([]string, 0, len(m.fetchers))
	for p := range m.fetchers {
		out = append(out, p)
	}
	return out
}

// Fetch implements Fetcher. Every failure is a *RetrievalError.
func (m *Mux) Fetch(ctx context.Context, params ServerParams, remoteFile, destDir string) (string, error) {
	protocol := strings.ToLower(params.Protocol)
	f, ok := m.fetchers[protocol]
	if !ok {
		return "", &RetrievalError{Protocol: params.Protocol, RemoteID: remoteFile, Err: fmt.Errorf("unsupported protocol")}
	}
	if strings.TrimSpace(remoteFile) == "" {
		return "", &RetrievalError{Protocol: protocol, RemoteID: remoteFile, Err: fmt.Errorf("no remote file given")}
	}

	log.Printf("[Fetch] Retrieving %s from %s://%s", remoteFile, protocol, params.Host)
	local, err := f.Fetch(ctx, params, remoteFile, destDir)
	if err != nil {
		var retrievalErr *RetrievalError
		if errors.As(err, &retrievalErr) {
			return "", err
		}
		return "", &RetrievalError{Protocol: protocol, RemoteID: remoteFile, Err: err}
	}
	log.Printf("[Fetch] Retrieved %s to %s", remoteFile, local)
	return local, nil
}

// saveTo streams r into a new file in destDir named after remoteFile. The
// file keeps the remote extension so the archive codec can be detected.
func saveTo(r io.Reader, destDir, remoteFile string) (string, error) {
	if destDir == "" {
		destDir = os.TempDir()
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	pattern := fmt.Sprintf("fetch_%s_*%s", time.Now().Format("20060102150405"), remoteExt(remoteFile))
	tmpFile, err := os.CreateTemp(destDir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(tmpFile, r); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return "", fmt.Errorf("failed to download: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpFile.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return tmpFile.Name(), nil
}

func remoteExt(remoteFile string) string {
	name := strings.ToLower(path.Base(remoteFile))
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if strings.HasSuffix(name, ".tar.gz") {
		return ".tar.gz"
	}
	return path.Ext(name)
}
