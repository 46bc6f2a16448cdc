package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/pkg/logger"
)

// ExportNDJSON writes every event matching f to w as newline-delimited JSON,
// oldest first, and returns the number of events written.
func (r *Reader) ExportNDJSON(ctx context.Context, w io.Writer, f Filter) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)

	written := 0
	err := r.Each(ctx, f, func(ev models.AuditEvent) error {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("audit export: encode %s: %w", ev.EventID, err)
		}
		written++
		return nil
	})
	return written, err
}

// ObjectPutter is the subset of the S3 client used by S3Archive.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config describes the archive bucket.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Client builds an S3 client from static credentials. An empty endpoint
// uses the AWS default for the region.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("audit archive: s3 credentials are empty")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		config.WithRetryMode(aws.RetryModeStandard),
		config.WithRetryMaxAttempts(3),
	)
	if err != nil {
		return nil, fmt.Errorf("audit archive: load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Archive uploads daily NDJSON exports of the audit trail.
type S3Archive struct {
	reader *Reader
	client ObjectPutter
	bucket string
	prefix string
	log    *zap.Logger
}

// NewS3Archive constructs an archive writing to bucket under prefix.
func NewS3Archive(reader *Reader, client ObjectPutter, bucket, prefix string) (*S3Archive, error) {
	if reader == nil || client == nil {
		return nil, errors.New("audit archive: reader and client are required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("audit archive: bucket is required")
	}
	return &S3Archive{
		reader: reader,
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    logger.WithModule("audit_archive"),
	}, nil
}

// ArchiveDay exports the UTC calendar day containing day and returns the
// object key. Days without events are skipped and return an empty key.
func (a *S3Archive) ArchiveDay(ctx context.Context, day time.Time) (string, error) {
	start := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)

	var buf bytes.Buffer
	n, err := a.reader.ExportNDJSON(ctx, &buf, Filter{Since: &start, Until: &end})
	if err != nil {
		return "", err
	}
	if n == 0 {
		a.log.Debug("no audit events to archive", zap.Time("day", start))
		return "", nil
	}

	key := a.objectKey(start)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentType:   aws.String("application/x-ndjson"),
		ContentLength: aws.Int64(int64(buf.Len())),
	})
	if err != nil {
		return "", fmt.Errorf("audit archive: upload %s: %w", key, err)
	}

	a.log.Info("audit events archived", zap.String("key", key), zap.Int("events", n))
	return key, nil
}

func (a *S3Archive) objectKey(day time.Time) string {
	name := ulid.Make().String() + ".ndjson"
	return path.Join(a.prefix, day.Format("2006/01/02"), name)
}
