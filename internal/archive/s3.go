// Package archive mirrors closed dev-log day files to S3, implementing
// the devlog.Archiver interface so the JSONL sink can hand off a
// rotated file without knowing what durable store receives it.
package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nova-run/orchestrator/internal/devlog"
)

// S3Config configures the mirror's destination bucket.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// DefaultS3Config returns the default configuration.
func DefaultS3Config() S3Config {
	return S3Config{Region: "us-east-1"}
}

// S3Mirror uploads dev-log day files to S3 under `<prefix>/YYYY-MM-DD.jsonl`.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Mirror builds a mirror from cfg.
func NewS3Mirror(ctx context.Context, cfg S3Config) (*S3Mirror, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	loadOptions := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Mirror{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Archive uploads the day file at dayFilePath to S3, named for day.
func (m *S3Mirror) Archive(ctx context.Context, dayFilePath string, day time.Time) error {
	data, err := os.ReadFile(dayFilePath)
	if err != nil {
		return fmt.Errorf("archive: read day file: %w", err)
	}

	key := m.objectKey(day)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &m.bucket,
		Key:         &key,
		Body:        strings.NewReader(string(data)),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: put object: %w", err)
	}
	return nil
}

func (m *S3Mirror) objectKey(day time.Time) string {
	name := day.UTC().Format("2006-01-02") + ".jsonl"
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

var _ devlog.Archiver = (*S3Mirror)(nil)
