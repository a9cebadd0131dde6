// Package blob persists extracted article text in an S3-compatible
// object store. Objects are keyed by publish date so a day's harvest
// lands under one prefix.
package blob

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the slice of the S3 client the store uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Store uploads article text to a bucket. It is safe for concurrent use.
type Store struct {
	client  s3API
	bucket  string
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics
}

// NewStore builds the S3 client from the configuration and returns a
// ready store. Static credentials are used when configured, the ambient
// AWS credential chain otherwise.
func NewStore(ctx context.Context, cfg Config, logger *slog.Logger, metrics *Metrics) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newStore(client, cfg, logger, metrics), nil
}

// NewStoreWithClient wraps an existing S3 client. Tests use this to
// substitute a fake.
func NewStoreWithClient(client s3API, cfg Config, logger *slog.Logger, metrics *Metrics) *Store {
	return newStore(client, cfg, logger, metrics)
}

func newStore(client s3API, cfg Config, logger *slog.Logger, metrics *Metrics) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:  client,
		bucket:  cfg.Bucket,
		timeout: cfg.Timeout,
		now:     time.Now,
		logger:  logger,
		metrics: metrics,
	}
}

// ObjectKey builds the storage key for an article's extracted text. The
// layout is YYYY/M/D/{id}.txt with unpadded month and day, taken from
// the publish date in UTC when known and from now otherwise.
func ObjectKey(articleID int64, publishDate *time.Time, now time.Time) string {
	at := now
	if publishDate != nil {
		at = *publishDate
	}
	at = at.UTC()
	return fmt.Sprintf("%d/%d/%d/%d.txt", at.Year(), int(at.Month()), at.Day(), articleID)
}

// UploadArticleText stores the extracted text for an article and
// returns the object key it was written under.
func (s *Store) UploadArticleText(ctx context.Context, articleID int64, publishDate *time.Time, content string) (string, error) {
	key := ObjectKey(articleID, publishDate, s.now())

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		s.metrics.RecordUpload("failure", 0)
		return "", fmt.Errorf("UploadArticleText: %w", err)
	}

	s.metrics.RecordUpload("success", len(content))
	s.logger.Debug("uploaded article text",
		slog.String("key", key),
		slog.Int("bytes", len(content)))
	return key, nil
}

// Ping verifies the bucket is reachable. Readiness probes call this.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("Ping: %w", err)
	}
	return nil
}
