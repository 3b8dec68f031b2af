// Package blob stores sealed segments in S3-compatible object storage and
// serves them back as forward-only byte streams.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gftdcojp/logvault/internal/config"
	"github.com/gftdcojp/logvault/internal/metrics"
	"github.com/gftdcojp/logvault/internal/types"
	"go.uber.org/zap"
)

// S3API is the slice of the S3 client the store needs.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store reads and writes segment objects under
// <prefix>/<archive_id>/segments/<segment_id>.
type Store struct {
	s3     S3API
	bucket string
	cfg    config.BlobConfig
	logger *zap.Logger
}

// NewStore creates a blob store over an S3API implementation.
func NewStore(s3api S3API, bucket string, cfg config.BlobConfig, logger *zap.Logger) *Store {
	return &Store{
		s3:     s3api,
		bucket: bucket,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Store) segmentKey(archiveID string, id types.SegmentID) string {
	key := archiveID + "/segments/" + strconv.FormatUint(uint64(id), 10)
	if s.cfg.Prefix != "" {
		key = s.cfg.Prefix + "/" + key
	}
	return key
}

// PutSegment uploads a sealed segment file.
func (s *Store) PutSegment(ctx context.Context, archiveID string, id types.SegmentID, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening segment %d for upload: %w", id, err)
	}
	defer f.Close()

	key := s.segmentKey(archiveID, id)
	input := &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        f,
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"logvault-archive-id": archiveID,
			"logvault-segment-id": strconv.FormatUint(uint64(id), 10),
		},
	}
	if s.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(s.cfg.StorageClass)
	}

	start := time.Now()
	if _, err := s.s3.PutObject(ctx, input); err != nil {
		metrics.S3UploadErrors.WithLabelValues(archiveID).Inc()
		return fmt.Errorf("uploading segment %d: %w", id, err)
	}
	metrics.S3UploadDuration.WithLabelValues(archiveID).Observe(time.Since(start).Seconds())

	s.logger.Debug("segment uploaded",
		zap.String("archive_id", archiveID),
		zap.Uint64("segment_id", uint64(id)),
		zap.String("key", key),
	)
	return nil
}

// OpenSegment returns the segment object's byte stream. The stream only
// supports forward reads; callers layer a checkpointing buffered reader on
// top when they need to seek back.
func (s *Store) OpenSegment(ctx context.Context, archiveID string, id types.SegmentID) (io.ReadCloser, error) {
	key := s.segmentKey(archiveID, id)
	start := time.Now()
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("downloading segment %d: %w", id, err)
	}
	metrics.S3DownloadDuration.WithLabelValues(archiveID).Observe(time.Since(start).Seconds())
	return out.Body, nil
}

// SegmentExists checks whether the segment object is present.
func (s *Store) SegmentExists(ctx context.Context, archiveID string, id types.SegmentID) (bool, error) {
	key := s.segmentKey(archiveID, id)
	_, err := s.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteSegment removes the segment object.
func (s *Store) DeleteSegment(ctx context.Context, archiveID string, id types.SegmentID) error {
	key := s.segmentKey(archiveID, id)
	if _, err := s.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}); err != nil {
		return fmt.Errorf("deleting segment %d: %w", id, err)
	}
	return nil
}
