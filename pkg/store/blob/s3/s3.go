// Package s3 implements blob storage on Amazon S3 or S3-compatible object
// stores.
//
// Upload parts are buffered in memory and flushed as native S3 multipart
// parts once the buffer reaches the part size; an upload that stays under
// the part size is published with a single PutObject on completion. Either
// way the visibility contract holds: S3 publishes the object atomically on
// PutObject or CompleteMultipartUpload and never exposes individual parts.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/driftflow/internal/telemetry"
	"github.com/marmos91/driftflow/pkg/store/blob"
)

// Metrics is an optional collector for S3 operation metrics. A nil Metrics
// disables collection with zero overhead.
type Metrics interface {
	// ObserveOperation records an S3 API call with its duration and outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes transferred by an operation.
	RecordBytes(operation string, bytes int64)
}

// Config contains configuration for the S3 store.
type Config struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket is the S3 bucket name. The bucket must already exist.
	Bucket string

	// KeyPrefix is an optional prefix applied to all object keys.
	KeyPrefix string

	// PageSize overrides the List page size (S3 MaxKeys). Defaults to 1000.
	PageSize int32

	// PartSize is the buffered part size for multipart uploads. Parts sent
	// through UploadPart are accumulated until this threshold before an S3
	// part is issued, because S3 rejects non-final parts under 5MB.
	// Must be between 5MB and 5GB. Default: 5MB.
	PartSize int

	// Metrics is an optional metrics collector.
	Metrics Metrics
}

// multipartUpload tracks one in-progress upload.
//
// The S3 multipart upload is created lazily on the first buffered part
// flush; an upload whose total payload stays under the part size is
// published with a single PutObject on completion instead.
type multipartUpload struct {
	mu       sync.Mutex
	uploadID string
	buffer   []byte
	nextPart int32
	parts    []types.CompletedPart
}

// Store is an S3-backed blob store.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	pageSize  int32
	partSize  int
	metrics   Metrics

	uploadsMu sync.Mutex
	uploads   map[string]*multipartUpload // key -> session
}

// NewClientFromConfig creates an S3 client from configuration parameters.
// This is a helper for creating S3 clients from YAML configuration.
func NewClientFromConfig(
	ctx context.Context,
	endpoint,
	region,
	accessKeyID,
	secretAccessKey string,
	forcePathStyle bool,
) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"", // session token (empty for static credentials)
		)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = forcePathStyle
	})

	return client, nil
}

// New creates an S3-backed store and verifies bucket access.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	partSize := cfg.PartSize
	if partSize == 0 {
		partSize = 5 * 1024 * 1024 // 5MB default (S3 minimum)
	}
	if partSize < 5*1024*1024 {
		return nil, fmt.Errorf("part size must be at least 5MB, got %d bytes", partSize)
	}
	if partSize > 5*1024*1024*1024 {
		return nil, fmt.Errorf("part size must be at most 5GB, got %d bytes", partSize)
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		pageSize:  pageSize,
		partSize:  partSize,
		metrics:   cfg.Metrics,
		uploads:   make(map[string]*multipartUpload),
	}, nil
}

// objectKey returns the full S3 object key for a blob key.
func (s *Store) objectKey(key string) string {
	if s.keyPrefix != "" {
		return s.keyPrefix + key
	}
	return key
}

// stripKey removes the configured prefix from an S3 object key.
func (s *Store) stripKey(key string) string {
	if s.keyPrefix != "" {
		return key[len(s.keyPrefix):]
	}
	return key
}

// List returns one page of objects under prefix.
//
// S3 ListObjectsV2 already returns keys in lexicographic (UTF-8 binary)
// order, which is exactly the order recovery depends on.
func (s *Store) List(ctx context.Context, prefix string, continuation string) (page blob.ListPage, err error) {
	ctx, span := telemetry.StartStorageSpan(ctx, telemetry.SpanStorageList, "s3", "", telemetry.Prefix(prefix))
	defer span.End()

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("ListObjectsV2", time.Since(start), err)
		}
	}()

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.objectKey(prefix)),
		MaxKeys: aws.Int32(s.pageSize),
	}
	if continuation != "" {
		input.ContinuationToken = aws.String(continuation)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return blob.ListPage{}, fmt.Errorf("failed to list %q: %w", prefix, err)
	}

	for _, obj := range out.Contents {
		info := blob.ObjectInfo{Key: s.stripKey(aws.ToString(obj.Key))}
		if obj.Size != nil {
			info.Size = *obj.Size
		}
		page.Objects = append(page.Objects, info)
	}
	if aws.ToBool(out.IsTruncated) {
		page.Continuation = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

// Download fetches an entire object.
func (s *Store) Download(ctx context.Context, key string) (data []byte, err error) {
	ctx, span := telemetry.StartStorageSpan(ctx, telemetry.SpanStorageDownload, "s3", key)
	defer span.End()

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("GetObject", time.Since(start), err)
			if err == nil {
				s.metrics.RecordBytes("GetObject", int64(len(data)))
			}
		}
	}()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, key)
		}
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to download %q: %w", key, err)
	}
	defer out.Body.Close()

	data, err = io.ReadAll(out.Body)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to read body of %q: %w", key, err)
	}
	telemetry.SetAttributes(ctx, telemetry.Bytes(len(data)))
	return data, nil
}
