package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gftdcojp/logvault/internal/archive"
	"github.com/gftdcojp/logvault/internal/blob"
	"github.com/gftdcojp/logvault/internal/types"
	"go.uber.org/zap"
)

// DeleteArchive discards an archive entirely: its demoted segment objects
// and its local directory. Dictionary entries live and die with the
// archive, so this is the only way an entry is ever destroyed.
func DeleteArchive(ctx context.Context, root, archiveID string, store *blob.Store, logger *zap.Logger) error {
	archivePath := filepath.Join(root, archiveID)

	if store != nil {
		segDir := filepath.Join(archivePath, archive.SegmentsDirname)
		local := make(map[uint64]bool)
		if entries, err := os.ReadDir(segDir); err == nil {
			for _, e := range entries {
				if id, err := strconv.ParseUint(e.Name(), 10, 64); err == nil {
					local[id] = true
				}
			}
		}
		// Demoted segments exist only remotely; walk the ID space recorded
		// in the file rows to find them.
		if ids, err := segmentIDs(archivePath, logger); err == nil {
			for _, id := range ids {
				if local[uint64(id)] {
					continue
				}
				if err := store.DeleteSegment(ctx, archiveID, id); err != nil {
					logger.Warn("deleting remote segment",
						zap.Uint64("segment_id", uint64(id)), zap.Error(err))
				}
			}
		}
	}

	if err := os.RemoveAll(archivePath); err != nil {
		return fmt.Errorf("removing archive directory: %w", err)
	}
	logger.Info("archive deleted", zap.String("archive_id", archiveID))
	return nil
}

// segmentIDs lists the distinct segment IDs referenced by an archive's
// file rows.
func segmentIDs(archivePath string, logger *zap.Logger) ([]types.SegmentID, error) {
	r, err := archive.OpenReader(archivePath, nil, logger)
	if err != nil {
		return nil, err
	}
	seen := make(map[types.SegmentID]bool)
	var ids []types.SegmentID
	for _, f := range r.Files() {
		if !seen[f.SegmentID] {
			seen[f.SegmentID] = true
			ids = append(ids, f.SegmentID)
		}
	}
	return ids, nil
}
