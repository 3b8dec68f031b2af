package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gftdcojp/logvault/internal/bufread"
	"github.com/gftdcojp/logvault/internal/codec"
	"github.com/gftdcojp/logvault/internal/dict"
	"github.com/gftdcojp/logvault/internal/meta"
	"github.com/gftdcojp/logvault/internal/tspattern"
	"github.com/gftdcojp/logvault/internal/types"
	"github.com/gftdcojp/logvault/internal/zio"
	"go.uber.org/zap"
)

// SegmentOpener yields the raw (compressed) byte stream of a segment.
// Implementations back onto the local segments directory or remote object
// storage; streams only need to support forward reads.
type SegmentOpener interface {
	OpenSegment(archivePath string, id types.SegmentID) (io.ReadCloser, error)
}

// LocalSegmentOpener reads segments from the archive's segments directory.
type LocalSegmentOpener struct{}

func (LocalSegmentOpener) OpenSegment(archivePath string, id types.SegmentID) (io.ReadCloser, error) {
	return os.Open(filepath.Join(archivePath, SegmentsDirname, strconv.FormatUint(uint64(id), 10)))
}

// Reader is a read-only view of a closed archive.
type Reader struct {
	logger *zap.Logger

	path string

	// Stable sizes from the metadata header; data beyond them is ignored.
	UncompressedSize uint64
	Size             uint64

	logtypeDict *dict.View
	varDict     *dict.View

	files     []meta.FileEntry
	emptyDirs []string
	opener    SegmentOpener

	segmentReadBufferSize int
}

// OpenReader opens an archive directory for querying. The writer must have
// closed the archive; the stable sizes in the metadata header bound what
// the reader trusts.
func OpenReader(archivePath string, opener SegmentOpener, logger *zap.Logger) (*Reader, error) {
	if opener == nil {
		opener = LocalSegmentOpener{}
	}

	_, uncompressedSize, size, err := ReadMetadataFile(filepath.Join(archivePath, MetadataFilename))
	if err != nil {
		return nil, err
	}

	logtypeDict, err := dict.LoadView(
		filepath.Join(archivePath, LogtypeDictFilename),
		filepath.Join(archivePath, LogtypeSegindexFilename), true)
	if err != nil {
		return nil, err
	}
	varDict, err := dict.LoadView(
		filepath.Join(archivePath, VarDictFilename),
		filepath.Join(archivePath, VarSegindexFilename), false)
	if err != nil {
		return nil, err
	}

	metaDB, err := meta.NewBoltStore(filepath.Join(archivePath, MetadataDBFilename), logger.Named("meta"))
	if err != nil {
		return nil, err
	}
	files, err := metaDB.ListFiles()
	var emptyDirs []string
	if err == nil {
		emptyDirs, err = metaDB.ListEmptyDirectories()
	}
	if cerr := metaDB.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	return &Reader{
		logger:                logger,
		path:                  archivePath,
		UncompressedSize:      uncompressedSize,
		Size:                  size,
		logtypeDict:           logtypeDict,
		varDict:               varDict,
		files:                 files,
		emptyDirs:             emptyDirs,
		opener:                opener,
		segmentReadBufferSize: bufread.DefaultBufferSize,
	}, nil
}

// Files returns the archive's file rows in seal order.
func (r *Reader) Files() []meta.FileEntry {
	return r.files
}

// EmptyDirs returns the empty source directories recorded at ingestion.
func (r *Reader) EmptyDirs() []string {
	return r.emptyDirs
}

// LogtypeDict returns the logtype dictionary view.
func (r *Reader) LogtypeDict() *dict.View {
	return r.logtypeDict
}

// VarDict returns the variable dictionary view.
func (r *Reader) VarDict() *dict.View {
	return r.varDict
}

// Message is one compressed message read from a file: the timestamp, the
// logtype, and the file-local slice of encoded variables.
type Message struct {
	Ts        types.Epochtime
	LogtypeID types.LogtypeID
	Vars      []types.EncodedVariable
	MsgIx     uint64
}

// FileReader walks one file's messages in order. The file's column slices
// are loaded from its segment when the file is opened.
type FileReader struct {
	Entry meta.FileEntry

	timestamps []types.Epochtime
	logtypes   []types.LogtypeID
	variables  []types.EncodedVariable

	patterns []tsPatternChange

	msgIx uint64
	varIx uint64
	// per-logtype placeholder counts, resolved through the dictionary
	numVars func(types.LogtypeID) (int, error)
}

// OpenFile positions into the file's segment and loads its three column
// slices.
func (r *Reader) OpenFile(entry meta.FileEntry) (*FileReader, error) {
	rc, err := r.opener.OpenSegment(r.path, entry.SegmentID)
	if err != nil {
		return nil, fmt.Errorf("opening segment %d: %w", entry.SegmentID, err)
	}
	defer rc.Close()

	br, err := bufread.NewReader(r.segmentReadBufferSize)
	if err != nil {
		return nil, err
	}
	if err := br.Open(rc); err != nil {
		return nil, err
	}
	defer br.Close()

	dec, err := zio.NewDecompressor(&bufreadAdapter{br})
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	f := &FileReader{Entry: entry}

	// The three column slices sit at increasing uncompressed offsets.
	if err := skipTo(dec, 0, entry.SegmentTsPos); err != nil {
		return nil, err
	}
	tsBytes := make([]byte, 8*entry.NumMessages)
	if _, err := io.ReadFull(dec, tsBytes); err != nil {
		return nil, fmt.Errorf("%w: timestamps of file %s", types.ErrTruncated, entry.ID)
	}
	if err := skipTo(dec, entry.SegmentTsPos+uint64(len(tsBytes)), entry.SegmentLogtypePos); err != nil {
		return nil, err
	}
	logtypeBytes := make([]byte, 8*entry.NumMessages)
	if _, err := io.ReadFull(dec, logtypeBytes); err != nil {
		return nil, fmt.Errorf("%w: logtype column of file %s", types.ErrTruncated, entry.ID)
	}
	if err := skipTo(dec, entry.SegmentLogtypePos+uint64(len(logtypeBytes)), entry.SegmentVarPos); err != nil {
		return nil, err
	}
	varBytes := make([]byte, 8*entry.NumVariables)
	if _, err := io.ReadFull(dec, varBytes); err != nil {
		return nil, fmt.Errorf("%w: variable column of file %s", types.ErrTruncated, entry.ID)
	}

	f.timestamps = make([]types.Epochtime, entry.NumMessages)
	f.logtypes = make([]types.LogtypeID, entry.NumMessages)
	for i := uint64(0); i < entry.NumMessages; i++ {
		f.timestamps[i] = types.Epochtime(binary.BigEndian.Uint64(tsBytes[8*i:]))
		f.logtypes[i] = types.LogtypeID(binary.BigEndian.Uint64(logtypeBytes[8*i:]))
	}
	f.variables = make([]types.EncodedVariable, entry.NumVariables)
	for i := uint64(0); i < entry.NumVariables; i++ {
		f.variables[i] = types.EncodedVariable(binary.BigEndian.Uint64(varBytes[8*i:]))
	}

	if f.patterns, err = decodeTsPatterns(entry.EncodedTsPatterns); err != nil {
		return nil, err
	}

	f.numVars = func(id types.LogtypeID) (int, error) {
		e, err := r.logtypeDict.Entry(uint64(id))
		if err != nil {
			return 0, err
		}
		return len(e.PlaceholderPositions), nil
	}
	return f, nil
}

// NextMessage returns the next message, or ok=false at the end of the
// file.
func (f *FileReader) NextMessage() (Message, bool, error) {
	if f.msgIx >= f.Entry.NumMessages {
		return Message{}, false, nil
	}
	logtypeID := f.logtypes[f.msgIx]
	n, err := f.numVars(logtypeID)
	if err != nil {
		return Message{}, false, err
	}
	if f.varIx+uint64(n) > uint64(len(f.variables)) {
		return Message{}, false, fmt.Errorf("%w: file %s variable column underflow", types.ErrCorrupt, f.Entry.ID)
	}
	m := Message{
		Ts:        f.timestamps[f.msgIx],
		LogtypeID: logtypeID,
		Vars:      f.variables[f.varIx : f.varIx+uint64(n)],
		MsgIx:     f.msgIx,
	}
	f.varIx += uint64(n)
	f.msgIx++
	return m, true, nil
}

// PatternFor returns the timestamp pattern in effect at a message index.
func (f *FileReader) PatternFor(msgIx uint64) tspattern.Pattern {
	var p tspattern.Pattern
	for _, c := range f.patterns {
		if c.msgIx > msgIx {
			break
		}
		p = c.pattern
	}
	return p
}

// DecompressMessage rebuilds the raw log line of m, timestamp included.
func (r *Reader) DecompressMessage(f *FileReader, m Message) (string, error) {
	logtypeEntry, err := r.logtypeDict.Entry(uint64(m.LogtypeID))
	if err != nil {
		return "", err
	}
	text, err := codec.DecodeMessage([]byte(logtypeEntry.Value), m.Vars,
		func(id types.VarID, _ types.SegmentID) (string, error) {
			e, err := r.varDict.Entry(uint64(id))
			if err != nil {
				return "", err
			}
			return e.Value, nil
		})
	if err != nil {
		return "", err
	}
	pattern := f.PatternFor(m.MsgIx)
	return pattern.Insert(m.Ts, text), nil
}

// decodeTsPatterns parses the newline-separated
// "message_ix:num_spaces_before_ts:pattern_format" records.
func decodeTsPatterns(encoded string) ([]tsPatternChange, error) {
	if encoded == "" {
		return nil, nil
	}
	var changes []tsPatternChange
	for _, line := range strings.Split(strings.TrimSuffix(encoded, "\n"), "\n") {
		ix := strings.IndexByte(line, ':')
		if ix < 0 {
			return nil, fmt.Errorf("%w: timestamp pattern record %q", types.ErrCorrupt, line)
		}
		msgIx, err := strconv.ParseUint(line[:ix], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp pattern record %q", types.ErrCorrupt, line)
		}
		pattern, err := tspattern.ParseEncoded(line[ix+1:])
		if err != nil {
			return nil, err
		}
		changes = append(changes, tsPatternChange{msgIx: msgIx, pattern: pattern})
	}
	return changes, nil
}

// skipTo discards decompressed bytes from cur up to target.
func skipTo(r io.Reader, cur, target uint64) error {
	if target < cur {
		return fmt.Errorf("%w: segment offsets move backward", types.ErrCorrupt)
	}
	if target == cur {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, int64(target-cur)); err != nil {
		return fmt.Errorf("%w: skipping segment bytes: %v", types.ErrTruncated, err)
	}
	return nil
}

// bufreadAdapter exposes a bufread.Reader as an io.Reader.
type bufreadAdapter struct {
	r *bufread.Reader
}

func (a *bufreadAdapter) Read(p []byte) (int, error) {
	n, err := a.r.TryRead(p)
	if errors.Is(err, types.ErrEndOfFile) {
		return n, io.EOF
	}
	return n, err
}
