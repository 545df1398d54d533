// Package export uploads the result tables of a finished project to an
// S3-compatible bucket (AWS S3 or MinIO).
package export

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/yumyai/varenrich/logger"
)

type Config struct {
	Region    string
	Bucket    string
	Endpoint  string // optional, e.g. MinIO
	PathStyle bool

	// Static credentials. When empty the default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

type S3 struct {
	client *s3.Client
	bucket string
}

func New(ctx context.Context, cfg Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO and older gateways reject trailing checksums.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return &S3{client: client, bucket: cfg.Bucket}, nil
}

// Key is the object key of a result file.
func Key(projectID string, generation int, file string) string {
	return path.Join("projects", projectID, fmt.Sprintf("gen-%d", generation), filepath.Base(file))
}

// Export uploads files under projects/<id>/gen-<n>/. Empty paths are skipped.
func (e *S3) Export(ctx context.Context, projectID string, generation int, files []string) error {
	n := 0
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := e.put(ctx, Key(projectID, generation, f), f); err != nil {
			return err
		}
		n++
	}
	logger.Info("Exported results", zap.String("project", projectID), zap.String("bucket", e.bucket), zap.Int("files", n))
	return nil
}

func (e *S3) put(ctx context.Context, key, file string) error {
	fh, err := os.Open(file)
	if err != nil {
		return err
	}
	defer func() { _ = fh.Close() }()

	contentType := "text/csv"
	if _, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &e.bucket,
		Key:         &key,
		Body:        fh,
		ContentType: &contentType,
	}); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
