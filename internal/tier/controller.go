package tier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gftdcojp/logvault/internal/archive"
	"github.com/gftdcojp/logvault/internal/blob"
	"github.com/gftdcojp/logvault/internal/config"
	"github.com/gftdcojp/logvault/internal/metrics"
	"github.com/gftdcojp/logvault/internal/types"
	"go.uber.org/zap"
)

// Controller moves sealed segments of archives under the root into object
// storage and removes the local copies once the upload is verified.
type Controller struct {
	root   string
	store  *blob.Store
	cfg    config.TieringConfig
	logger *zap.Logger
}

// NewController creates a controller over the archives under root.
func NewController(root string, store *blob.Store, cfg config.TieringConfig, logger *zap.Logger) *Controller {
	return &Controller{
		root:   root,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// scan lists the sealed segments of every archive under the root whose
// metadata header reports a nonzero stable size. The writer updates that
// header at each segment seal, so an archive still being written is
// included once its first segment has sealed.
func (c *Controller) scan() ([]SegmentInfo, error) {
	dirs, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("listing archives under %s: %w", c.root, err)
	}

	var segments []SegmentInfo
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		archivePath := filepath.Join(c.root, d.Name())
		_, _, size, err := archive.ReadMetadataFile(filepath.Join(archivePath, archive.MetadataFilename))
		if err != nil || size == 0 {
			continue
		}

		segDir := filepath.Join(archivePath, archive.SegmentsDirname)
		segs, err := os.ReadDir(segDir)
		if err != nil {
			continue
		}
		for _, s := range segs {
			id, err := strconv.ParseUint(s.Name(), 10, 64)
			if err != nil {
				continue
			}
			info, err := s.Info()
			if err != nil {
				continue
			}
			segments = append(segments, SegmentInfo{
				ArchiveID: d.Name(),
				ID:        types.SegmentID(id),
				Path:      filepath.Join(segDir, s.Name()),
				Size:      info.Size(),
				SealedAt:  info.ModTime(),
			})
		}
	}
	return segments, nil
}

// EvaluateAndDemote runs one policy pass: uploads due segments and deletes
// their local copies after verifying the upload.
func (c *Controller) EvaluateAndDemote(ctx context.Context, now time.Time) error {
	segments, err := c.scan()
	if err != nil {
		return err
	}

	for _, seg := range EvaluateDemotion(segments, c.cfg.DemoteAfter.Duration(), now) {
		if err := ctx.Err(); err != nil {
			return err
		}
		exists, err := c.store.SegmentExists(ctx, seg.ArchiveID, seg.ID)
		if err != nil {
			c.logger.Warn("checking remote segment", zap.Error(err))
			continue
		}
		if !exists {
			if err := c.store.PutSegment(ctx, seg.ArchiveID, seg.ID, seg.Path); err != nil {
				c.logger.Error("segment upload failed",
					zap.String("archive_id", seg.ArchiveID),
					zap.Uint64("segment_id", uint64(seg.ID)),
					zap.Error(err),
				)
				continue
			}
		}
		if err := os.Remove(seg.Path); err != nil {
			c.logger.Warn("removing local segment copy", zap.String("path", seg.Path), zap.Error(err))
			continue
		}
		metrics.SegmentDemotions.WithLabelValues(seg.ArchiveID).Inc()
		c.logger.Info("segment demoted",
			zap.String("archive_id", seg.ArchiveID),
			zap.Uint64("segment_id", uint64(seg.ID)),
			zap.Int64("size", seg.Size),
		)
	}
	return nil
}
