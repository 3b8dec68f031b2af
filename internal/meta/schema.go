package meta

import (
	"encoding/binary"

	"github.com/gftdcojp/logvault/internal/types"
)

// Bucket names in BoltDB.
var (
	bucketSystem     = []byte("system")
	keySchemaVersion = []byte("schema_version")

	// Per-archive store (metadata.db)
	bucketFiles     = []byte("files")
	bucketEmptyDirs = []byte("empty_dirs")

	// Global store
	bucketArchives     = []byte("archives")
	bucketArchiveFiles = []byte("archive_files")
)

const currentSchemaVersion = 1

// FileEntry is the persisted metadata row for one file in an archive. A
// file occupies a contiguous slice of each of its segment's three columns,
// starting at the recorded positions.
type FileEntry struct {
	ID                   string
	OrigFileID           string
	Path                 string
	GroupID              types.GroupID
	SplitIx              uint64
	BeginTs              types.Epochtime
	EndTs                types.Epochtime
	NumMessages          uint64
	NumUncompressedBytes uint64
	NumVariables         uint64
	SegmentID            types.SegmentID
	SegmentTsPos         uint64
	SegmentLogtypePos    uint64
	SegmentVarPos        uint64
	// Newline-separated "message_ix:num_spaces_before_ts:pattern_format"
	// records; empty for files without timestamps.
	EncodedTsPatterns string
}

// ArchiveEntry is the global-store row for one archive.
type ArchiveEntry struct {
	ID               string
	UncompressedSize uint64
	Size             uint64
	CreatorID        string
	CreationNum      uint64
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func bytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
