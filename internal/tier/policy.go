// Package tier demotes sealed segments from local disk to object storage
// and resolves segment reads across the two locations.
package tier

import (
	"sort"
	"time"

	"github.com/gftdcojp/logvault/internal/types"
)

// SegmentInfo describes one sealed segment on local disk.
type SegmentInfo struct {
	ArchiveID string
	ID        types.SegmentID
	Path      string
	Size      int64
	SealedAt  time.Time
}

// EvaluateDemotion returns the segments that should move to object
// storage: everything sealed longer ago than demoteAfter, oldest first.
func EvaluateDemotion(segments []SegmentInfo, demoteAfter time.Duration, now time.Time) []SegmentInfo {
	if len(segments) == 0 || demoteAfter <= 0 {
		return nil
	}

	sorted := make([]SegmentInfo, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SealedAt.Before(sorted[j].SealedAt)
	})

	cutoff := now.Add(-demoteAfter)
	var candidates []SegmentInfo
	for _, seg := range sorted {
		if seg.SealedAt.Before(cutoff) {
			candidates = append(candidates, seg)
		}
	}
	return candidates
}
