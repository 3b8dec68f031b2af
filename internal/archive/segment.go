// Package archive implements the on-disk archive: the single-writer
// ingestion side (files, segments, dictionaries, metadata) and the reader
// side used by search.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gftdcojp/logvault/internal/types"
	"github.com/gftdcojp/logvault/internal/zio"
)

// SegmentsDirname is the archive subdirectory holding sealed segments,
// each named by its segment ID.
const SegmentsDirname = "segments"

// LogsDirname is the archive subdirectory for open-file scratch data.
const LogsDirname = "logs"

// Segment is one compressed stream of concatenated column slices. It is
// opened lazily on the first file appended and immutable once closed.
type Segment struct {
	id   types.SegmentID
	path string

	file *os.File
	comp *zio.Compressor

	uncompressedSize uint64
	compressedSize   uint64
}

// Open creates the segment's backing file under segmentsDir.
func (s *Segment) Open(segmentsDir string, id types.SegmentID, compressionLevel int) error {
	if s.file != nil {
		return fmt.Errorf("%w: segment %d already open", types.ErrNotReady, s.id)
	}
	path := filepath.Join(segmentsDir, strconv.FormatUint(uint64(id), 10))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("creating segment %d: %w", id, err)
	}
	comp, err := zio.NewCompressor(f, compressionLevel)
	if err != nil {
		f.Close()
		return err
	}
	s.id = id
	s.path = path
	s.file = f
	s.comp = comp
	s.uncompressedSize = 0
	s.compressedSize = 0
	return nil
}

// IsOpen reports whether the segment is accepting appends.
func (s *Segment) IsOpen() bool {
	return s.file != nil
}

// ID returns the segment's ID.
func (s *Segment) ID() types.SegmentID {
	return s.id
}

// Append writes data into the segment's compressed stream and returns the
// uncompressed position the data begins at.
func (s *Segment) Append(data []byte) (uint64, error) {
	if s.file == nil {
		return 0, types.ErrNotInit
	}
	pos := s.uncompressedSize
	if _, err := s.comp.Write(data); err != nil {
		return 0, fmt.Errorf("appending to segment %d: %w", s.id, err)
	}
	s.uncompressedSize += uint64(len(data))
	return pos, nil
}

// UncompressedSize returns the bytes accepted so far.
func (s *Segment) UncompressedSize() uint64 {
	return s.uncompressedSize
}

// CompressedSize returns the on-disk size; final only after Close.
func (s *Segment) CompressedSize() uint64 {
	return s.compressedSize
}

// Close seals the segment: ends the compressed stream, syncs, and records
// the final compressed size.
func (s *Segment) Close() error {
	if s.file == nil {
		return nil
	}
	if err := s.comp.Close(); err != nil {
		return fmt.Errorf("closing segment %d compressor: %w", s.id, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("syncing segment %d: %w", s.id, err)
	}
	info, err := s.file.Stat()
	if err == nil {
		s.compressedSize = uint64(info.Size())
	}
	if cerr := s.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.file = nil
	s.comp = nil
	return err
}
