package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// HTTP downloads over http or https. remoteFile is either a full URL or a
// path on Host.
type HTTP struct {
	Client *http.Client
}

func (h *HTTP) Fetch(ctx context.Context, params ServerParams, remoteFile, destDir string) (string, error) {
	target, err := buildURL(params, remoteFile)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	if params.Username != "" {
		req.SetBasicAuth(params.Username, params.Password)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download: HTTP %d", resp.StatusCode)
	}

	return saveTo(resp.Body, destDir, remoteFile)
}

func buildURL(params ServerParams, remoteFile string) (string, error) {
	if u, err := url.Parse(remoteFile); err == nil && u.Scheme != "" && u.Host != "" {
		return remoteFile, nil
	}
	if params.Host == "" {
		return "", fmt.Errorf("no host given")
	}

	scheme := strings.ToLower(params.Protocol)
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	host := params.Host
	if params.Port > 0 {
		host = net.JoinHostPort(params.Host, strconv.Itoa(params.Port))
	}

	u := url.URL{Scheme: scheme, Host: host, Path: "/" + strings.TrimPrefix(remoteFile, "/")}
	return u.String(), nil
}
