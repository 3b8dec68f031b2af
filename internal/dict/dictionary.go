package dict

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/RoaringBitmap/roaring"
	"github.com/gftdcojp/logvault/internal/codec"
	"github.com/gftdcojp/logvault/internal/strutil"
	"github.com/gftdcojp/logvault/internal/types"
	"github.com/gftdcojp/logvault/internal/zio"
	"go.uber.org/zap"
)

// headerSize is the uncompressed entry-count header at the start of the
// dictionary file and the record-count header of the segment-index
// sidecar. The compressed streams begin right after.
const headerSize = 8

// Writer is the single-owner, writable side of a dictionary. Readers open
// a View after the writer has flushed.
type Writer struct {
	logger        *zap.Logger
	maxID         uint64
	nextID        uint64
	withPositions bool

	valueToID map[string]uint64
	entries   []*Entry

	file    *os.File
	comp    *zio.Compressor
	segFile *os.File
	segComp *zio.Compressor
	// number of segment-index records written
	numSegRecords uint64
	// final on-disk size, recorded at Close
	closedSize int64
}

// Options configures a dictionary.
type Options struct {
	// MaxID bounds ID assignment; AddOccurrence fails with ErrOutOfBounds
	// beyond it.
	MaxID uint64
	// WithPositions stores placeholder positions per entry (logtype
	// dictionaries).
	WithPositions bool
	// CompressionLevel is the zstd level for the backing files.
	CompressionLevel int
}

// Open loads any existing entries from path and prepares the dictionary
// for appending. The next ID is the number of loaded entries.
func Open(path, segindexPath string, opts Options, logger *zap.Logger) (*Writer, error) {
	w := &Writer{
		logger:        logger,
		maxID:         opts.MaxID,
		withPositions: opts.WithPositions,
		valueToID:     make(map[string]uint64),
	}

	entries, segRecords, err := load(path, segindexPath, opts.WithPositions)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		w.valueToID[e.Value] = e.ID
	}
	w.entries = entries
	w.nextID = uint64(len(entries))
	w.numSegRecords = segRecords
	if w.nextID > 0 && w.nextID-1 > w.maxID {
		return nil, fmt.Errorf("%w: dictionary %s holds ID %d beyond max %d",
			types.ErrOutOfBounds, path, w.nextID-1, w.maxID)
	}

	level := opts.CompressionLevel
	if level == 0 {
		level = 3
	}
	if w.file, w.comp, err = openAppend(path, level); err != nil {
		return nil, err
	}
	if w.segFile, w.segComp, err = openAppend(segindexPath, level); err != nil {
		w.comp.Close()
		w.file.Close()
		return nil, err
	}
	logger.Debug("dictionary opened",
		zap.String("path", path),
		zap.Int("entries", len(w.entries)),
		zap.Uint64("max_id", w.maxID),
	)
	return w, nil
}

func openAppend(path string, level int) (*os.File, *zio.Compressor, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stating %s: %w", path, err)
	}
	if info.Size() == 0 {
		if _, err := f.Write(make([]byte, headerSize)); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("writing header of %s: %w", path, err)
		}
	} else if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("seeking %s: %w", path, err)
	}
	comp, err := zio.NewCompressor(f, level)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, comp, nil
}

// AddOccurrence returns the ID for value, assigning and persisting a new
// entry on first use.
func (w *Writer) AddOccurrence(value string) (types.VarID, bool, error) {
	id, isNew, err := w.add(value, nil)
	return types.VarID(id), isNew, err
}

// AddLogtypeOccurrence is AddOccurrence for logtype dictionaries: the
// entry also records the logtype's placeholder positions.
func (w *Writer) AddLogtypeOccurrence(logtype []byte) (types.LogtypeID, bool, error) {
	id, isNew, err := w.add(string(logtype), func() []uint32 {
		return codec.PlaceholderPositions(logtype)
	})
	return types.LogtypeID(id), isNew, err
}

func (w *Writer) add(value string, positions func() []uint32) (uint64, bool, error) {
	if w.file == nil {
		return 0, false, types.ErrNotInit
	}
	if id, ok := w.valueToID[value]; ok {
		return id, false, nil
	}
	if w.nextID > w.maxID {
		return 0, false, fmt.Errorf("%w: dictionary ran out of IDs at %d", types.ErrOutOfBounds, w.maxID)
	}

	e := &Entry{ID: w.nextID, Value: value, Segments: nil}
	if positions != nil {
		e.PlaceholderPositions = positions()
	}
	w.nextID++
	w.valueToID[value] = e.ID
	w.entries = append(w.entries, e)

	if err := e.writeTo(w.comp, w.withPositions); err != nil {
		return 0, false, fmt.Errorf("appending dictionary entry: %w", err)
	}
	return e.ID, true, nil
}

// IndexSegment marks every id as referenced by segmentID and appends a
// record to the segment-index sidecar.
func (w *Writer) IndexSegment(segmentID types.SegmentID, ids []uint64) error {
	if w.file == nil {
		return types.ErrNotInit
	}
	for _, id := range ids {
		if id >= uint64(len(w.entries)) {
			return fmt.Errorf("%w: segment index references unknown ID %d", types.ErrCorrupt, id)
		}
	}

	buf := make([]byte, 12+8*len(ids))
	binary.BigEndian.PutUint64(buf[0:8], uint64(segmentID))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(ids)))
	for i, id := range ids {
		binary.BigEndian.PutUint64(buf[12+8*i:], id)
	}
	if _, err := w.segComp.Write(buf); err != nil {
		return fmt.Errorf("appending segment-index record: %w", err)
	}
	w.numSegRecords++

	for _, id := range ids {
		e := w.entries[id]
		if e.Segments == nil {
			e.Segments = roaring.New()
		}
		e.Segments.Add(uint32(segmentID))
	}
	return nil
}

// WriteHeaderAndFlush rewrites the entry-count headers and forces both
// compressors to flush, making everything written so far readable.
func (w *Writer) WriteHeaderAndFlush() error {
	if w.file == nil {
		return types.ErrNotInit
	}
	if err := w.comp.Flush(); err != nil {
		return fmt.Errorf("flushing dictionary: %w", err)
	}
	if err := w.segComp.Flush(); err != nil {
		return fmt.Errorf("flushing segment index: %w", err)
	}
	var hdr [headerSize]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(len(w.entries)))
	if _, err := w.file.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("rewriting dictionary header: %w", err)
	}
	binary.BigEndian.PutUint64(hdr[:], w.numSegRecords)
	if _, err := w.segFile.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("rewriting segment-index header: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing dictionary: %w", err)
	}
	return w.segFile.Sync()
}

// OnDiskSize returns the current size of the backing files.
func (w *Writer) OnDiskSize() int64 {
	if w.file == nil {
		return w.closedSize
	}
	var total int64
	for _, f := range []*os.File{w.file, w.segFile} {
		if info, err := f.Stat(); err == nil {
			total += info.Size()
		}
	}
	return total
}

// NumEntries returns the number of entries.
func (w *Writer) NumEntries() int {
	return len(w.entries)
}

// Entry returns the entry with the given ID.
func (w *Writer) Entry(id uint64) (*Entry, error) {
	if id >= uint64(len(w.entries)) {
		return nil, fmt.Errorf("%w: dictionary ID %d", types.ErrOutOfBounds, id)
	}
	return w.entries[id], nil
}

// Close flushes headers and closes the backing files.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.WriteHeaderAndFlush()
	if cerr := w.comp.Close(); err == nil {
		err = cerr
	}
	if cerr := w.segComp.Close(); err == nil {
		err = cerr
	}
	for _, f := range []*os.File{w.file, w.segFile} {
		if info, serr := f.Stat(); serr == nil {
			w.closedSize += info.Size()
		}
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if cerr := w.segFile.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	w.segFile = nil
	return err
}

// load reads the dictionary and segment-index files, materializing
// per-entry segment sets. Missing files yield an empty dictionary.
func load(path, segindexPath string, withPositions bool) ([]*Entry, uint64, error) {
	entries, err := loadEntries(path, withPositions)
	if err != nil {
		return nil, 0, err
	}
	numRecords, err := applySegIndex(segindexPath, entries)
	if err != nil {
		return nil, 0, err
	}
	return entries, numRecords, nil
}

func loadEntries(path string, withPositions bool) ([]*Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening dictionary %s: %w", path, err)
	}
	defer f.Close()

	var hdr [headerSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: dictionary header of %s", types.ErrTruncated, path)
	}
	numEntries := binary.BigEndian.Uint64(hdr[:])

	dec, err := zio.NewDecompressor(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	entries := make([]*Entry, 0, numEntries)
	for i := uint64(0); i < numEntries; i++ {
		e, err := readEntry(dec, withPositions)
		if err != nil {
			return nil, fmt.Errorf("reading dictionary entry %d of %s: %w", i, path, err)
		}
		if e.ID != uint64(len(entries)) {
			return nil, fmt.Errorf("%w: dictionary %s entry %d has ID %d", types.ErrCorrupt, path, i, e.ID)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func applySegIndex(path string, entries []*Entry) (uint64, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("opening segment index %s: %w", path, err)
	}
	defer f.Close()

	var hdr [headerSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: segment-index header of %s", types.ErrTruncated, path)
	}
	numRecords := binary.BigEndian.Uint64(hdr[:])

	dec, err := zio.NewDecompressor(f)
	if err != nil {
		return 0, err
	}
	defer dec.Close()

	for i := uint64(0); i < numRecords; i++ {
		var recHdr [12]byte
		if _, err := io.ReadFull(dec, recHdr[:]); err != nil {
			return 0, fmt.Errorf("%w: segment-index record %d of %s", types.ErrTruncated, i, path)
		}
		segmentID := binary.BigEndian.Uint64(recHdr[0:8])
		numIDs := binary.BigEndian.Uint32(recHdr[8:12])
		ids := make([]byte, 8*numIDs)
		if _, err := io.ReadFull(dec, ids); err != nil {
			return 0, fmt.Errorf("%w: segment-index record %d of %s", types.ErrTruncated, i, path)
		}
		for j := uint32(0); j < numIDs; j++ {
			id := binary.BigEndian.Uint64(ids[8*j:])
			if id >= uint64(len(entries)) {
				return 0, fmt.Errorf("%w: segment index %s references unknown ID %d", types.ErrCorrupt, path, id)
			}
			e := entries[id]
			if e.Segments == nil {
				e.Segments = roaring.New()
			}
			e.Segments.Add(uint32(segmentID))
		}
	}
	return numRecords, nil
}

// EntriesMatchingWildcard returns every entry whose value matches the
// wildcard pattern. Placeholder bytes in entry values are matched
// literally.
func (w *Writer) EntriesMatchingWildcard(pattern string, ignoreCase bool) []*Entry {
	return entriesMatchingWildcard(w.entries, pattern, ignoreCase)
}

func entriesMatchingWildcard(entries []*Entry, pattern string, ignoreCase bool) []*Entry {
	var out []*Entry
	for _, e := range entries {
		if strutil.WildcardMatchUnsafe(e.Value, pattern, !ignoreCase) {
			out = append(out, e)
		}
	}
	return out
}
