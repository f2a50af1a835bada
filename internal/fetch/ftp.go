package fetch

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTP downloads with a login on host:port (default 21).
type FTP struct {
	Timeout time.Duration
}

func (f *FTP) Fetch(ctx context.Context, params ServerParams, remoteFile, destDir string) (string, error) {
	if params.Host == "" {
		return "", fmt.Errorf("no server given")
	}
	port := params.Port
	if port == 0 {
		port = 21
	}

	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if f.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(f.Timeout))
	}

	conn, err := ftp.Dial(net.JoinHostPort(params.Host, strconv.Itoa(port)), opts...)
	if err != nil {
		return "", fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = conn.Quit() }()

	user := params.Username
	if user == "" {
		user = "anonymous"
	}
	if err := conn.Login(user, params.Password); err != nil {
		return "", fmt.Errorf("failed to login: %w", err)
	}

	resp, err := conn.Retr(remoteFile)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve: %w", err)
	}
	defer func() { _ = resp.Close() }()

	return saveTo(resp, destDir, remoteFile)
}
