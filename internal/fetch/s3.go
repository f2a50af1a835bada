package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 downloads an object from the bucket named by Host. Username and
// Password are used as static access keys when both are set; otherwise the
// default credential chain applies.
type S3 struct{}

func (S3) client(ctx context.Context, params ServerParams) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if params.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(params.Region))
	}
	if params.Username != "" && params.Password != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(params.Username, params.Password, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if params.Endpoint != "" {
		return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(params.Endpoint)
			o.UsePathStyle = true
		}), nil
	}
	return s3.NewFromConfig(awsCfg), nil
}

func (s S3) Fetch(ctx context.Context, params ServerParams, remoteFile, destDir string) (string, error) {
	if params.Host == "" {
		return "", fmt.Errorf("no bucket given")
	}

	client, err := s.client(ctx, params)
	if err != nil {
		return "", err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(params.Host),
		Key:    aws.String(strings.TrimPrefix(remoteFile, "/")),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get object: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	return saveTo(out.Body, destDir, remoteFile)
}
