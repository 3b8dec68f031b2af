package search

import (
	"fmt"

	"github.com/gftdcojp/logvault/internal/archive"
	"github.com/gftdcojp/logvault/internal/metrics"
	"github.com/gftdcojp/logvault/internal/strutil"
	"go.uber.org/zap"
)

// OutputFunc receives each matching message. Returning an error stops the
// search; results already emitted stay delivered.
type OutputFunc func(origPath, message string, ts int64) error

// NoLimit walks every match.
const NoLimit = int(^uint(0) >> 1)

// SearchArchive runs a planned query against an open archive, emitting
// matches in file order up to limit.
func SearchArchive(r *archive.Reader, q *Query, limit int, output OutputFunc, logger *zap.Logger) (int, error) {
	if limit <= 0 {
		limit = NoLimit
	}

	relevantSegments := q.RelevantSegments()
	numMatches := 0

	for _, entry := range r.Files() {
		if numMatches >= limit {
			break
		}

		// Segment pruning: with sub-queries, only files in a candidate
		// segment can hold matches.
		if q.ContainsSubQueries() && !relevantSegments.Contains(uint32(entry.SegmentID)) {
			continue
		}
		// Time pruning on the file's timestamp range
		if entry.BeginTs <= entry.EndTs &&
			(entry.EndTs < q.SearchBeginTs || entry.BeginTs > q.SearchEndTs) {
			continue
		}

		f, err := r.OpenFile(entry)
		if err != nil {
			// A file that fails to open is skipped; the search continues
			// with the rest of the archive.
			logger.Warn("skipping unreadable file",
				zap.String("file_id", entry.ID),
				zap.Uint64("segment_id", uint64(entry.SegmentID)),
				zap.Error(err),
			)
			continue
		}
		metrics.SearchFilesOpened.Inc()

		n, err := searchFile(r, f, q, limit-numMatches, output)
		numMatches += n
		if err != nil {
			return numMatches, err
		}
	}
	return numMatches, nil
}

// searchFile walks one file's messages against the query.
func searchFile(r *archive.Reader, f *archive.FileReader, q *Query, limit int, output OutputFunc) (int, error) {
	numMatches := 0
	for numMatches < limit {
		m, ok, err := f.NextMessage()
		if err != nil {
			return numMatches, err
		}
		if !ok {
			break
		}
		metrics.SearchMessagesScanned.Inc()

		if m.Ts < q.SearchBeginTs || m.Ts > q.SearchEndTs {
			continue
		}

		var matchingSubQuery *SubQuery
		if q.ContainsSubQueries() {
			matchingSubQuery = q.FindMatchingSubQuery(f.Entry.SegmentID, m.LogtypeID, m.Vars)
			if matchingSubQuery == nil {
				continue
			}
		}

		// Verify by decompression when a sub-query demands it, or when
		// there are no sub-queries and the search string is non-trivial
		needVerify := (matchingSubQuery != nil && matchingSubQuery.WildcardMatchRequired()) ||
			(!q.ContainsSubQueries() && !q.SearchStringMatchesAll())

		// The output callback needs the decompressed message either way
		text, err := r.DecompressMessage(f, m)
		if err != nil {
			return numMatches, fmt.Errorf("decompressing message %d of file %s: %w", m.MsgIx, f.Entry.ID, err)
		}
		if needVerify && !strutil.WildcardMatchUnsafe(text, q.SearchString, !q.IgnoreCase) {
			continue
		}

		if err := output(f.Entry.Path, text, int64(m.Ts)); err != nil {
			return numMatches, fmt.Errorf("output sink failed: %w", err)
		}
		numMatches++
		metrics.SearchMatches.Inc()
	}
	return numMatches, nil
}
