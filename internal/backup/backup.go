// Package backup copies unique thumbnails to S3-compatible storage before
// the signed CDN URLs expire.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ppiankov/thumbsieve/internal/metrics"
	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/ppiankov/thumbsieve/internal/pipeline"
	"go.uber.org/zap"
)

const (
	// MaxConsecutiveFailures stops a backup pass that keeps failing
	MaxConsecutiveFailures = 10

	// DefaultAttempts is used when the config leaves attempts unset
	DefaultAttempts = 3
)

// errNoThumbnail marks records that cannot be uploaded at all
var errNoThumbnail = errors.New("record has no thumbnail url")

// ObjectPutter is the part of *s3.Client used for uploads
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Downloader fetches the thumbnail bytes
type Downloader interface {
	Download(ctx context.Context, rawURL string) (*pipeline.Payload, error)
}

// Summary counts what one backup pass did
type Summary struct {
	Uploaded int
	Skipped  int
	Failed   int
	// Stopped is set when the pass gave up after MaxConsecutiveFailures
	Stopped bool
}

// Uploader uploads thumbnails to one bucket
type Uploader struct {
	client        ObjectPutter
	downloader    Downloader
	bucket        string
	prefix        string
	publicBaseURL string
	attempts      int
	retryDelay    time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewS3Client builds an S3 client from the default AWS credential chain.
// A custom endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Client(ctx context.Context, cfg model.BackupConfig) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// New creates an uploader. m and logger may be nil.
func New(client ObjectPutter, downloader Downloader, cfg model.BackupConfig, m *metrics.Metrics, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	return &Uploader{
		client:        client,
		downloader:    downloader,
		bucket:        cfg.Bucket,
		prefix:        strings.Trim(cfg.Prefix, "/"),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		attempts:      attempts,
		retryDelay:    cfg.RetryDelay,
		sleep:         sleepContext,
		metrics:       m,
		logger:        logger,
	}
}

// Backup uploads every record that has no backup URL yet and stores the
// resulting URL in the record. Failures are counted, never returned.
func (u *Uploader) Backup(ctx context.Context, records []model.UniqueRecord) Summary {
	var sum Summary
	consecutive := 0

	for i := range records {
		rec := &records[i]
		log := u.logger.With(zap.Int("index", i+1), zap.Int("total", len(records)))

		if rec.BackupURL != "" {
			sum.Skipped++
			consecutive = 0
			u.metrics.ObserveBackup("skipped")
			continue
		}

		if ctx.Err() != nil {
			sum.Stopped = true
			break
		}

		url, err := u.uploadWithRetry(ctx, *rec, log)
		if err != nil {
			sum.Failed++
			consecutive++
			u.metrics.ObserveBackup("failed")
			log.Warn("backup failed", zap.String("url", rec.Item.ImageURL), zap.Error(err))
		} else {
			rec.BackupURL = url
			sum.Uploaded++
			consecutive = 0
			u.metrics.ObserveBackup("uploaded")
			log.Debug("backed up", zap.String("backup_url", url))
		}

		if consecutive >= MaxConsecutiveFailures {
			u.logger.Warn("too many consecutive backup failures, stopping",
				zap.Int("failures", consecutive))
			sum.Stopped = true
			break
		}
	}
	return sum
}

// uploadWithRetry tries one record up to u.attempts times, waiting
// retryDelay between tries
func (u *Uploader) uploadWithRetry(ctx context.Context, rec model.UniqueRecord, log *zap.Logger) (string, error) {
	if rec.Item.ImageURL == "" {
		return "", errNoThumbnail
	}

	var err error
	for attempt := 1; attempt <= u.attempts; attempt++ {
		var url string
		if url, err = u.upload(ctx, rec); err == nil {
			return url, nil
		}
		if attempt == u.attempts || ctx.Err() != nil {
			break
		}
		log.Debug("upload failed, retrying",
			zap.Int("attempt", attempt), zap.Int("attempts", u.attempts), zap.Error(err))
		if serr := u.sleep(ctx, u.retryDelay); serr != nil {
			return "", serr
		}
	}
	return "", fmt.Errorf("upload failed after %d attempts: %w", u.attempts, err)
}

func (u *Uploader) upload(ctx context.Context, rec model.UniqueRecord) (string, error) {
	payload, err := u.downloader.Download(ctx, rec.Item.ImageURL)
	if err != nil {
		return "", fmt.Errorf("download thumbnail: %w", err)
	}

	contentType := payload.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	key := ObjectKey(u.prefix, rec, contentType)

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload.Data),
		ContentLength: aws.Int64(int64(len(payload.Data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	return u.publicURL(key), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (u *Uploader) publicURL(key string) string {
	if u.publicBaseURL != "" {
		return u.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key)
}

// ObjectKey names the object <prefix>/<hash>.<ext>. Records without a hash
// fall back to the fingerprint.
func ObjectKey(prefix string, rec model.UniqueRecord, contentType string) string {
	name := string(rec.Hash)
	if name == "" {
		name = strings.ReplaceAll(string(rec.Fingerprint), model.FingerprintSeparator, "_")
	}
	name += "." + extension(contentType)
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "jpg"
	}
	switch mediaType {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	}
	return "jpg"
}
