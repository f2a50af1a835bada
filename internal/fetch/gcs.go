package fetch

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS downloads an object from the Google Cloud Storage bucket named by
// Host, authenticating with CredentialsFile when set.
type GCS struct{}

func (GCS) Fetch(ctx context.Context, params ServerParams, remoteFile, destDir string) (string, error) {
	if params.Host == "" {
		return "", fmt.Errorf("no bucket given")
	}

	var opts []option.ClientOption
	if params.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(params.CredentialsFile))
	}
	if params.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(params.Endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(params.Host).Object(strings.TrimPrefix(remoteFile, "/")).NewReader(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to open object: %w", err)
	}
	defer func() { _ = r.Close() }()

	return saveTo(r, destDir, remoteFile)
}
