// Multipart upload operations for the S3 blob store.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/driftflow/internal/telemetry"
	"github.com/marmos91/driftflow/pkg/store/blob"
)

// CreateUpload starts a buffered multipart upload for key.
//
// The S3 CreateMultipartUpload call is deferred until the buffered payload
// first reaches the part size, so small objects cost a single PutObject.
func (s *Store) CreateUpload(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.uploadsMu.Lock()
	defer s.uploadsMu.Unlock()
	s.uploads[key] = &multipartUpload{}
	return nil
}

// UploadPart appends data to the upload for key, flushing full parts to S3.
func (s *Store) UploadPart(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	up, err := s.session(key)
	if err != nil {
		return err
	}

	up.mu.Lock()
	defer up.mu.Unlock()

	up.buffer = append(up.buffer, data...)
	for len(up.buffer) >= s.partSize {
		if err := s.flushPart(ctx, key, up, up.buffer[:s.partSize]); err != nil {
			return err
		}
		up.buffer = up.buffer[s.partSize:]
	}
	return nil
}

// CompleteUpload publishes the object.
//
// Uploads that never reached the part size are published with one
// PutObject; larger uploads flush the remaining buffer as the final part
// and complete the S3 multipart upload.
func (s *Store) CompleteUpload(ctx context.Context, key string) (err error) {
	ctx, span := telemetry.StartStorageSpan(ctx, telemetry.SpanStorageComplete, "s3", key)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	up, err := s.session(key)
	if err != nil {
		return err
	}

	defer func() {
		if err == nil {
			s.uploadsMu.Lock()
			delete(s.uploads, key)
			s.uploadsMu.Unlock()
		}
	}()

	up.mu.Lock()
	defer up.mu.Unlock()

	if up.uploadID == "" {
		if err := s.putObject(ctx, key, up.buffer); err != nil {
			telemetry.RecordError(ctx, err)
			return err
		}
		return nil
	}

	if len(up.buffer) > 0 {
		if err := s.flushPart(ctx, key, up, up.buffer); err != nil {
			telemetry.RecordError(ctx, err)
			return err
		}
		up.buffer = nil
	}

	start := time.Now()
	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.objectKey(key)),
		UploadId: aws.String(up.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: up.parts,
		},
	})
	if s.metrics != nil {
		s.metrics.ObserveOperation("CompleteMultipartUpload", time.Since(start), err)
	}
	if err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to complete multipart upload for %q: %w", key, err)
	}
	return nil
}

// AbortUpload cancels the upload for key. Idempotent.
func (s *Store) AbortUpload(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.uploadsMu.Lock()
	up, ok := s.uploads[key]
	delete(s.uploads, key)
	s.uploadsMu.Unlock()
	if !ok {
		return nil
	}

	up.mu.Lock()
	uploadID := up.uploadID
	up.mu.Unlock()
	if uploadID == "" {
		return nil // nothing reached S3 yet
	}

	start := time.Now()
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.objectKey(key)),
		UploadId: aws.String(uploadID),
	})
	if s.metrics != nil {
		s.metrics.ObserveOperation("AbortMultipartUpload", time.Since(start), err)
	}
	if err != nil {
		// Ignore NoSuchUpload (idempotent behavior)
		var noSuchUpload *types.NoSuchUpload
		if !errors.As(err, &noSuchUpload) {
			return fmt.Errorf("failed to abort multipart upload for %q: %w", key, err)
		}
	}
	return nil
}

// session returns the in-progress upload for key.
func (s *Store) session(key string) (*multipartUpload, error) {
	s.uploadsMu.Lock()
	defer s.uploadsMu.Unlock()

	up, ok := s.uploads[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", blob.ErrUploadNotFound, key)
	}
	return up, nil
}

// flushPart uploads one S3 part, creating the multipart upload on first use.
// Caller holds up.mu.
func (s *Store) flushPart(ctx context.Context, key string, up *multipartUpload, data []byte) error {
	if up.uploadID == "" {
		start := time.Now()
		out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(key)),
		})
		if s.metrics != nil {
			s.metrics.ObserveOperation("CreateMultipartUpload", time.Since(start), err)
		}
		if err != nil {
			return fmt.Errorf("failed to create multipart upload for %q: %w", key, err)
		}
		up.uploadID = aws.ToString(out.UploadId)
		up.nextPart = 1
	}

	partNumber := up.nextPart
	start := time.Now()
	out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.objectKey(key)),
		UploadId:   aws.String(up.uploadID),
		PartNumber: aws.Int32(partNumber),
		Body:       bytes.NewReader(data),
	})
	if s.metrics != nil {
		s.metrics.ObserveOperation("UploadPart", time.Since(start), err)
		if err == nil {
			s.metrics.RecordBytes("UploadPart", int64(len(data)))
		}
	}
	if err != nil {
		return fmt.Errorf("failed to upload part %d for %q: %w", partNumber, key, err)
	}

	up.parts = append(up.parts, types.CompletedPart{
		ETag:       out.ETag,
		PartNumber: aws.Int32(partNumber),
	})
	up.nextPart++
	return nil
}

// putObject publishes small uploads in a single request.
func (s *Store) putObject(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	if s.metrics != nil {
		s.metrics.ObserveOperation("PutObject", time.Since(start), err)
		if err == nil {
			s.metrics.RecordBytes("PutObject", int64(len(data)))
		}
	}
	if err != nil {
		return fmt.Errorf("failed to put object %q: %w", key, err)
	}
	return nil
}

// Ensure Store implements blob.Storage.
var _ blob.Storage = (*Store)(nil)
