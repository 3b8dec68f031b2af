package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/gftdcojp/logvault/internal/codec"
	"github.com/gftdcojp/logvault/internal/dict"
	"github.com/gftdcojp/logvault/internal/meta"
	"github.com/gftdcojp/logvault/internal/metrics"
	"github.com/gftdcojp/logvault/internal/tspattern"
	"github.com/gftdcojp/logvault/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WriterConfig configures a new archive.
type WriterConfig struct {
	// OutputDir is the parent directory; the archive lives in
	// OutputDir/<archive-id>.
	OutputDir string
	// ID of the archive; a random UUID when zero.
	ID uuid.UUID
	// CreatorID and CreationNum identify the writer run in the global
	// metadata DB.
	CreatorID   uuid.UUID
	CreationNum uint64

	// TargetSegmentUncompressedSize is the seal threshold.
	TargetSegmentUncompressedSize uint64
	CompressionLevel              int

	LogtypeDictMaxID uint64
	VarDictMaxID     uint64

	// TsPatterns is the timestamp pattern set used during ingestion.
	TsPatterns *tspattern.Set

	// GlobalDB records the archive row and file rows shared across
	// archives. Optional.
	GlobalDB meta.GlobalStore
}

// segmentBucket groups the files accumulating in one of the two segment
// streams along with the dictionary IDs the stream references.
type segmentBucket struct {
	segment    Segment
	files      []*writerFile
	logtypeIDs *roaring.Bitmap
	varIDs     *roaring.Bitmap
}

func (b *segmentBucket) reset() {
	b.files = nil
	b.logtypeIDs.Clear()
	b.varIDs.Clear()
}

// Writer is the single-owner ingestion side of one archive.
type Writer struct {
	cfg    WriterConfig
	logger *zap.Logger

	id   string
	path string

	metadata *metadataFile
	metaDB   *meta.BoltStore
	globalDB meta.GlobalStore

	logtypeDict *dict.Writer
	varDict     *dict.Writer

	curFile *writerFile
	// Dictionary IDs used by the current file before it is assigned to a
	// bucket (files with no timestamp pattern yet).
	unassignedLogtypeIDs *roaring.Bitmap
	unassignedVarIDs     *roaring.Bitmap

	withTs    segmentBucket
	withoutTs segmentBucket

	nextSegmentID types.SegmentID

	stableSegmentsSize     uint64
	stableUncompressedSize uint64

	tsPatterns *tspattern.Set
}

// Open creates the archive directory tree, the metadata files, and the
// dictionaries. It fails if the archive directory already exists.
func Open(cfg WriterConfig, logger *zap.Logger) (*Writer, error) {
	if cfg.ID == (uuid.UUID{}) {
		cfg.ID = uuid.New()
	}
	if cfg.TargetSegmentUncompressedSize == 0 {
		cfg.TargetSegmentUncompressedSize = 64 * 1024 * 1024
	}
	if cfg.CompressionLevel == 0 {
		cfg.CompressionLevel = 3
	}
	if cfg.LogtypeDictMaxID == 0 {
		cfg.LogtypeDictMaxID = 1<<32 - 1
	}
	if cfg.VarDictMaxID == 0 {
		cfg.VarDictMaxID = uint64(codec.MaxVarID)
	}
	if cfg.TsPatterns == nil {
		cfg.TsPatterns = tspattern.DefaultSet()
	}

	w := &Writer{
		cfg:                  cfg,
		logger:               logger,
		id:                   cfg.ID.String(),
		unassignedLogtypeIDs: roaring.New(),
		unassignedVarIDs:     roaring.New(),
		tsPatterns:           cfg.TsPatterns,
	}
	w.withTs.logtypeIDs = roaring.New()
	w.withTs.varIDs = roaring.New()
	w.withoutTs.logtypeIDs = roaring.New()
	w.withoutTs.varIDs = roaring.New()

	w.path = filepath.Join(cfg.OutputDir, w.id)
	if _, err := os.Stat(w.path); err == nil {
		return nil, fmt.Errorf("%w: archive path %s", types.ErrFileExists, w.path)
	}
	for _, dir := range []string{w.path, filepath.Join(w.path, LogsDirname), filepath.Join(w.path, SegmentsDirname)} {
		if err := os.Mkdir(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	var err error
	if w.metadata, err = createMetadataFile(filepath.Join(w.path, MetadataFilename)); err != nil {
		return nil, err
	}
	if w.metaDB, err = meta.NewBoltStore(filepath.Join(w.path, MetadataDBFilename), logger.Named("meta")); err != nil {
		return nil, err
	}

	dictOpts := dict.Options{MaxID: cfg.LogtypeDictMaxID, WithPositions: true, CompressionLevel: cfg.CompressionLevel}
	if w.logtypeDict, err = dict.Open(
		filepath.Join(w.path, LogtypeDictFilename),
		filepath.Join(w.path, LogtypeSegindexFilename),
		dictOpts, logger.Named("logtype_dict")); err != nil {
		return nil, err
	}
	varOpts := dict.Options{MaxID: cfg.VarDictMaxID, CompressionLevel: cfg.CompressionLevel}
	if w.varDict, err = dict.Open(
		filepath.Join(w.path, VarDictFilename),
		filepath.Join(w.path, VarSegindexFilename),
		varOpts, logger.Named("var_dict")); err != nil {
		return nil, err
	}

	if cfg.GlobalDB != nil {
		w.globalDB = cfg.GlobalDB
		err := w.globalDB.AddArchive(meta.ArchiveEntry{
			ID:          w.id,
			CreatorID:   cfg.CreatorID.String(),
			CreationNum: cfg.CreationNum,
		})
		if err != nil {
			return nil, fmt.Errorf("recording archive in global metadata db: %w", err)
		}
	}

	if err := syncDir(w.path); err != nil {
		return nil, err
	}

	logger.Info("archive opened",
		zap.String("archive_id", w.id),
		zap.String("path", w.path),
	)
	return w, nil
}

// ID returns the archive's ID string.
func (w *Writer) ID() string {
	return w.id
}

// Path returns the archive directory.
func (w *Writer) Path() string {
	return w.path
}

// TsPatterns returns the pattern set ingestion should use.
func (w *Writer) TsPatterns() *tspattern.Set {
	return w.tsPatterns
}

// CreateAndOpenFile starts a new file. Exactly one file may be open at a
// time.
func (w *Writer) CreateAndOpenFile(path string, groupID types.GroupID, origFileID uuid.UUID, splitIx uint64) error {
	if w.curFile != nil {
		return fmt.Errorf("%w: a file is already open", types.ErrNotReady)
	}
	w.curFile = newWriterFile(path, groupID, origFileID, splitIx)
	return nil
}

// ChangeTsPattern records a timestamp-pattern switch for the current file.
// An empty pattern means messages from here on carry no timestamp.
func (w *Writer) ChangeTsPattern(pattern tspattern.Pattern) error {
	if w.curFile == nil {
		return types.ErrNotInit
	}
	w.curFile.changeTsPattern(pattern)
	return nil
}

// WriteMsg encodes one message and appends it to the current file. text is
// the raw line with the timestamp already stripped.
func (w *Writer) WriteMsg(ts types.Epochtime, text string, numUncompressedBytes uint64) error {
	if w.curFile == nil {
		return types.ErrNotInit
	}

	msg, err := codec.EncodeMessage(text, w.varDict)
	if err != nil {
		return err
	}
	logtypeID, _, err := w.logtypeDict.AddLogtypeOccurrence(msg.Logtype)
	if err != nil {
		return err
	}

	w.curFile.writeEncodedMsg(ts, logtypeID, msg, numUncompressedBytes)

	// Files with a timestamp pattern are bound for the with-timestamp
	// bucket, so their IDs go straight into its sets. Others stage in the
	// unassigned sets until the file is placed.
	if w.curFile.hasTsPattern() {
		w.withTs.logtypeIDs.Add(uint32(logtypeID))
		for _, id := range msg.DictVarIDs {
			w.withTs.varIDs.Add(uint32(id))
		}
	} else {
		w.unassignedLogtypeIDs.Add(uint32(logtypeID))
		for _, id := range msg.DictVarIDs {
			w.unassignedVarIDs.Add(uint32(id))
		}
	}
	return nil
}

// AbandonFile drops the current in-memory file without persisting any of
// it. IDs it staged for segment indexing may survive as a conservative
// over-approximation.
func (w *Writer) AbandonFile() {
	w.curFile = nil
	w.unassignedLogtypeIDs.Clear()
	w.unassignedVarIDs.Clear()
}

// AppendFileToSegment moves the current file into its bucket's segment,
// sealing the segment when it crosses the target size.
func (w *Writer) AppendFileToSegment() error {
	if w.curFile == nil {
		return fmt.Errorf("%w: no file open", types.ErrUnsupported)
	}

	bucket := &w.withoutTs
	if w.curFile.hasTsPattern() {
		bucket = &w.withTs
	}
	bucket.logtypeIDs.Or(w.unassignedLogtypeIDs)
	bucket.varIDs.Or(w.unassignedVarIDs)
	w.unassignedLogtypeIDs.Clear()
	w.unassignedVarIDs.Clear()

	if !bucket.segment.IsOpen() {
		if err := bucket.segment.Open(filepath.Join(w.path, SegmentsDirname), w.nextSegmentID, w.cfg.CompressionLevel); err != nil {
			return err
		}
		w.nextSegmentID++
	}

	if err := w.curFile.appendToSegment(&bucket.segment); err != nil {
		return err
	}
	bucket.files = append(bucket.files, w.curFile)
	w.curFile = nil

	if bucket.segment.UncompressedSize() >= w.cfg.TargetSegmentUncompressedSize {
		return w.closeSegmentAndPersistFileMetadata(bucket)
	}
	return nil
}

// closeSegmentAndPersistFileMetadata seals the bucket's segment: indexes
// its dictionary IDs, closes the compressed stream, flushes dictionaries,
// persists file metadata, and advances the stable sizes.
func (w *Writer) closeSegmentAndPersistFileMetadata(bucket *segmentBucket) error {
	segmentID := bucket.segment.ID()
	sealStart := time.Now()

	if err := w.logtypeDict.IndexSegment(segmentID, bitmapToIDs(bucket.logtypeIDs)); err != nil {
		return err
	}
	if err := w.varDict.IndexSegment(segmentID, bitmapToIDs(bucket.varIDs)); err != nil {
		return err
	}

	if err := bucket.segment.Close(); err != nil {
		return err
	}
	if err := syncDir(filepath.Join(w.path, SegmentsDirname)); err != nil {
		return err
	}

	if err := w.logtypeDict.WriteHeaderAndFlush(); err != nil {
		return err
	}
	if err := w.varDict.WriteHeaderAndFlush(); err != nil {
		return err
	}

	entries := make([]meta.FileEntry, 0, len(bucket.files))
	for _, f := range bucket.files {
		f.markInCommittedSegment()
		entries = append(entries, f.fileEntry())
	}
	if err := w.metaDB.AddFiles(entries); err != nil {
		return err
	}
	if w.globalDB != nil {
		if err := w.globalDB.AddFiles(w.id, entries); err != nil {
			return err
		}
	}

	w.stableSegmentsSize += bucket.segment.CompressedSize()
	for _, f := range bucket.files {
		w.stableUncompressedSize += f.numUncompressedBytes
	}
	if err := w.updateMetadata(); err != nil {
		return err
	}

	metrics.SegmentsSealed.WithLabelValues(w.id).Inc()
	metrics.SegmentSealDuration.WithLabelValues(w.id).Observe(time.Since(sealStart).Seconds())
	metrics.DictionaryEntries.WithLabelValues(w.id, "logtype").Set(float64(w.logtypeDict.NumEntries()))
	metrics.DictionaryEntries.WithLabelValues(w.id, "var").Set(float64(w.varDict.NumEntries()))

	w.logger.Info("segment sealed",
		zap.Uint64("segment_id", uint64(segmentID)),
		zap.Int("files", len(bucket.files)),
		zap.Uint64("uncompressed_size", bucket.segment.UncompressedSize()),
		zap.Uint64("compressed_size", bucket.segment.CompressedSize()),
	)

	bucket.reset()
	return nil
}

// StableUncompressedSize returns the raw bytes accounted in sealed
// segments.
func (w *Writer) StableUncompressedSize() uint64 {
	return w.stableUncompressedSize
}

// StableSize returns the archive's on-disk size: sealed segments plus the
// dictionary files.
func (w *Writer) StableSize() uint64 {
	return w.stableSegmentsSize + uint64(w.logtypeDict.OnDiskSize()) + uint64(w.varDict.OnDiskSize())
}

func (w *Writer) updateMetadata() error {
	uncompressed := w.StableUncompressedSize()
	size := w.StableSize()
	if err := w.metadata.updateSizes(uncompressed, size); err != nil {
		return err
	}
	if w.globalDB != nil {
		return w.globalDB.UpdateArchiveSize(w.id, uncompressed, size)
	}
	return nil
}

// AddEmptyDirectories records source directories that held no logs.
func (w *Writer) AddEmptyDirectories(paths []string) error {
	return w.metaDB.AddEmptyDirectories(paths)
}

// Close seals any open segments and shuts the archive down. The current
// file must have been appended (or never opened).
func (w *Writer) Close() error {
	if w.curFile != nil {
		return fmt.Errorf("%w: file still open", types.ErrNotReady)
	}

	for _, bucket := range []*segmentBucket{&w.withTs, &w.withoutTs} {
		if bucket.segment.IsOpen() {
			if err := w.closeSegmentAndPersistFileMetadata(bucket); err != nil {
				return err
			}
		}
	}

	if err := w.logtypeDict.Close(); err != nil {
		return err
	}
	if err := w.varDict.Close(); err != nil {
		return err
	}
	if err := w.updateMetadata(); err != nil {
		return err
	}
	if err := w.metaDB.Close(); err != nil {
		return err
	}
	if err := w.metadata.close(); err != nil {
		return err
	}
	if err := syncDir(w.path); err != nil {
		return err
	}
	w.logger.Info("archive closed",
		zap.String("archive_id", w.id),
		zap.Uint64("uncompressed_size", w.stableUncompressedSize),
	)
	return nil
}

func bitmapToIDs(bm *roaring.Bitmap) []uint64 {
	ids := make([]uint64, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		ids = append(ids, uint64(it.Next()))
	}
	return ids
}

func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening directory %s: %w", path, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing directory %s: %w", path, err)
	}
	return nil
}
