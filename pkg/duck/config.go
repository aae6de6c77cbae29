package duck

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// LoadS3ConfigFromEnv loads S3 configuration from environment variables.
// Supports both AWS S3 and MinIO, including IAM-role credentials.
//
// Environment variables:
//   - S3_ACCESS_KEY_ID or AWS_ACCESS_KEY_ID (optional, leave unset to use the IAM role)
//   - S3_SECRET_ACCESS_KEY or AWS_SECRET_ACCESS_KEY (optional, leave unset to use the IAM role)
//   - S3_ENDPOINT or AWS_ENDPOINT_URL (optional, for MinIO: "http://localhost:9000")
//   - S3_REGION or AWS_REGION (optional, defaults to "us-east-1")
//   - S3_USE_SSL (optional, "true"/"false", auto-detected from the endpoint)
//   - S3_URL_STYLE (optional, "path" or "virtual", auto-detected from the endpoint)
//
// Returns nil when neither key is set; the caller then relies on the default
// AWS credentials chain.
func LoadS3ConfigFromEnv() (*S3Config, error) {
	accessKeyID := os.Getenv("S3_ACCESS_KEY_ID")
	if accessKeyID == "" {
		accessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	}

	secretAccessKey := os.Getenv("S3_SECRET_ACCESS_KEY")
	if secretAccessKey == "" {
		secretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}

	if accessKeyID == "" && secretAccessKey == "" {
		return nil, nil // Not configured - use default AWS credentials chain
	}
	if accessKeyID == "" && secretAccessKey != "" {
		return nil, fmt.Errorf("S3_SECRET_ACCESS_KEY or AWS_SECRET_ACCESS_KEY is set but S3_ACCESS_KEY_ID or AWS_ACCESS_KEY_ID is missing")
	}
	if accessKeyID != "" && secretAccessKey == "" {
		return nil, fmt.Errorf("S3_ACCESS_KEY_ID or AWS_ACCESS_KEY_ID is set but S3_SECRET_ACCESS_KEY or AWS_SECRET_ACCESS_KEY is missing")
	}

	endpoint := os.Getenv("S3_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("AWS_ENDPOINT_URL")
	}

	region := os.Getenv("S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	isMinIO := endpoint != "" && !strings.Contains(endpoint, "amazonaws.com")

	useSSL := !isMinIO
	urlStyle := "path"
	if useSSLStr := os.Getenv("S3_USE_SSL"); useSSLStr != "" {
		useSSL = useSSLStr == "true" || useSSLStr == "1"
	}
	if urlStyleEnv := os.Getenv("S3_URL_STYLE"); urlStyleEnv != "" {
		urlStyle = urlStyleEnv
	}

	return &S3Config{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		Endpoint:        endpoint,
		Region:          region,
		UseSSL:          useSSL,
		URLStyle:        urlStyle,
	}, nil
}

// EnsureMinIOBucket creates the storage bucket when targeting a localhost
// MinIO endpoint. Anything else (AWS, remote MinIO) is left untouched.
func EnsureMinIOBucket(ctx context.Context, log *slog.Logger, storageURI string, s3Config *S3Config) error {
	if s3Config.Endpoint == "" {
		return nil // Not MinIO, skip
	}

	endpoint := strings.TrimPrefix(s3Config.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	if !strings.HasPrefix(endpoint, "localhost") && !strings.HasPrefix(endpoint, "127.0.0.1") && !strings.Contains(endpoint, "host.docker.internal") {
		return nil
	}

	if !strings.HasPrefix(storageURI, "s3://") {
		return nil
	}

	path := strings.TrimPrefix(storageURI, "s3://")
	parts := strings.SplitN(path, "/", 2)
	bucketName := parts[0]
	if bucketName == "" {
		return nil
	}

	// MinIO always requires explicit credentials
	if s3Config.AccessKeyID == "" || s3Config.SecretAccessKey == "" {
		return fmt.Errorf("MinIO requires both S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY to be set")
	}
	creds := credentials.NewStaticCredentialsProvider(
		s3Config.AccessKeyID,
		s3Config.SecretAccessKey,
		"",
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s3Config.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpointURL := s3Config.Endpoint
	if !strings.HasPrefix(endpointURL, "http://") && !strings.HasPrefix(endpointURL, "https://") {
		endpointURL = "http://" + endpointURL
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = &endpointURL
		o.UsePathStyle = true // Required for MinIO
	})

	_, err = s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: &bucketName,
	})
	if err == nil {
		return nil
	}

	log.Info("creating MinIO bucket", "bucket", bucketName, "endpoint", s3Config.Endpoint)
	_, err = s3Client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: &bucketName,
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}

	log.Info("created MinIO bucket", "bucket", bucketName)
	return nil
}

// PrepareS3ConfigForStorageURI loads S3 config from the environment when the
// storage URI is s3://, and ensures the MinIO bucket exists for localhost
// endpoints. Returns nil for file:// storage.
func PrepareS3ConfigForStorageURI(ctx context.Context, log *slog.Logger, storageURI string) (*S3Config, error) {
	if !strings.HasPrefix(storageURI, "s3://") {
		return nil, nil
	}

	s3Config, err := LoadS3ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 configuration: %w", err)
	}
	if s3Config == nil {
		region := os.Getenv("S3_REGION")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		s3Config = &S3Config{
			Region:   region,
			UseSSL:   true,
			URLStyle: "path",
		}
	}

	isMinIO := s3Config.Endpoint != "" && !strings.Contains(s3Config.Endpoint, "amazonaws.com")
	if isMinIO {
		if s3Config.AccessKeyID == "" || s3Config.SecretAccessKey == "" {
			return nil, fmt.Errorf("MinIO requires both S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY to be set (endpoint: %s)", s3Config.Endpoint)
		}
	}

	if err := EnsureMinIOBucket(ctx, log, storageURI, s3Config); err != nil {
		return nil, fmt.Errorf("failed to ensure MinIO bucket exists: %w", err)
	}

	return s3Config, nil
}
