// Package source fetches snapshot bytes from a local path or an object
// store.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Fetcher resolves a snapshot location to its raw bytes.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// ErrNotFound indicates the snapshot location does not exist.
var ErrNotFound = errors.New("snapshot not found")

// S3Config holds the object-store credentials for s3:// locations.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" env:"SOURCE_S3_ENDPOINT"`
	Region    string `yaml:"region" env:"SOURCE_S3_REGION"`
	AccessKey string `yaml:"access_key" env:"SOURCE_S3_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SOURCE_S3_SECRET_KEY"`
}

// fetcher reads file paths directly and s3://bucket/key locations through
// the AWS SDK.
type fetcher struct {
	s3cfg  *S3Config
	client *s3.Client
}

// NewFetcher creates a fetcher. s3cfg may be nil when only local paths are
// used; the S3 client is built lazily on the first s3:// location.
func NewFetcher(s3cfg *S3Config) Fetcher {
	return &fetcher{s3cfg: s3cfg}
}

// Fetch loads every byte of the snapshot at location.
func (f *fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if bucket, key, ok := splitS3Location(location); ok {
		return f.fetchObject(ctx, bucket, key)
	}
	return f.fetchFile(location)
}

func (f *fetcher) fetchFile(path string) ([]byte, error) {
	data, err := os.ReadFile(strings.TrimPrefix(path, "file://"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return data, nil
}

func (f *fetcher) fetchObject(ctx context.Context, bucket, key string) ([]byte, error) {
	client, err := f.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

func (f *fetcher) s3Client(ctx context.Context) (*s3.Client, error) {
	if f.client != nil {
		return f.client, nil
	}
	if f.s3cfg == nil {
		return nil, fmt.Errorf("s3 source is not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(f.s3cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			f.s3cfg.AccessKey,
			f.s3cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	opts := []func(*s3.Options){}
	if f.s3cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(f.s3cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	f.client = s3.NewFromConfig(awsCfg, opts...)
	return f.client, nil
}

// splitS3Location parses s3://bucket/key locations.
func splitS3Location(location string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(location, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
