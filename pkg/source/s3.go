package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Lister lists and fetches JSON files under an S3 prefix using the default
// AWS credentials chain.
type s3Lister struct {
	client *s3.Client
	bucket string
	prefix string
}

func newS3Lister(ctx context.Context, uri string) (*s3Lister, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid s3:// URI %q: %w", uri, err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("s3:// URI must include a bucket name (e.g., s3://bucket-name/prefix)")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)

	return &s3Lister{
		client: client,
		bucket: parsed.Host,
		prefix: strings.TrimPrefix(parsed.Path, "/"),
	}, nil
}

func (l *s3Lister) List(ctx context.Context) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(l.prefix),
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(l.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", l.bucket, l.prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil && strings.HasSuffix(*obj.Key, fileSuffix) {
				keys = append(keys, *obj.Key)
			}
		}
	}

	return keys, nil
}

func (l *s3Lister) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch s3://%s/%s: %w", l.bucket, key, err)
	}
	return result.Body, nil
}
