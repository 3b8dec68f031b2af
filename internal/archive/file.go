package archive

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/gftdcojp/logvault/internal/codec"
	"github.com/gftdcojp/logvault/internal/meta"
	"github.com/gftdcojp/logvault/internal/tspattern"
	"github.com/gftdcojp/logvault/internal/types"
	"github.com/google/uuid"
)

// segmentationState tracks a file's monotonic lifecycle: open and mutating
// in memory, appended to a not-yet-sealed segment, or sealed with metadata
// persisted and memory released.
type segmentationState int

const (
	stateOpen segmentationState = iota
	stateInUncommittedSegment
	stateInCommittedSegment
)

// tsPatternChange records a timestamp-pattern switch taking effect at a
// message index.
type tsPatternChange struct {
	msgIx   uint64
	pattern tspattern.Pattern
}

// writerFile is a file being built in memory: three parallel columns plus
// metadata. It is owned by the archive writer.
type writerFile struct {
	id         uuid.UUID
	origFileID uuid.UUID
	path       string
	groupID    types.GroupID
	splitIx    uint64

	timestamps []types.Epochtime
	logtypes   []types.LogtypeID
	variables  []types.EncodedVariable
	// indices into variables holding dictionary slots; their segment
	// component is patched at append time
	dictSlotIxs []int
	// distinct variable-dictionary IDs referenced by this file
	varIDs map[types.VarID]struct{}

	tsPatterns []tsPatternChange

	beginTs              types.Epochtime
	endTs                types.Epochtime
	numMessages          uint64
	numVariables         uint64
	numUncompressedBytes uint64

	segmentID         types.SegmentID
	segmentTsPos      uint64
	segmentLogtypePos uint64
	segmentVarPos     uint64

	state         segmentationState
	metadataClean bool
}

func newWriterFile(path string, groupID types.GroupID, origFileID uuid.UUID, splitIx uint64) *writerFile {
	return &writerFile{
		id:         uuid.New(),
		origFileID: origFileID,
		path:       path,
		groupID:    groupID,
		splitIx:    splitIx,
		varIDs:     make(map[types.VarID]struct{}),
		beginTs:    types.EpochtimeMax,
		endTs:      types.EpochtimeMin,
	}
}

// writeEncodedMsg appends one encoded message to the file's columns.
func (f *writerFile) writeEncodedMsg(ts types.Epochtime, logtypeID types.LogtypeID,
	msg codec.EncodedMessage, numUncompressedBytes uint64) {

	if f.state != stateOpen {
		panic("write to a file that is no longer open")
	}

	base := len(f.variables)
	f.timestamps = append(f.timestamps, ts)
	f.logtypes = append(f.logtypes, logtypeID)
	f.variables = append(f.variables, msg.Vars...)
	for _, ix := range msg.DictSlotIxs {
		f.dictSlotIxs = append(f.dictSlotIxs, base+ix)
	}
	for _, id := range msg.DictVarIDs {
		f.varIDs[id] = struct{}{}
	}

	f.numMessages++
	f.numVariables += uint64(len(msg.Vars))
	f.numUncompressedBytes += numUncompressedBytes
	if ts < f.beginTs {
		f.beginTs = ts
	}
	if ts > f.endTs {
		f.endTs = ts
	}
	f.metadataClean = false
}

// changeTsPattern records a pattern switch at the current message index.
// An empty pattern means "no timestamp from here on".
func (f *writerFile) changeTsPattern(pattern tspattern.Pattern) {
	f.tsPatterns = append(f.tsPatterns, tsPatternChange{msgIx: f.numMessages, pattern: pattern})
	f.metadataClean = false
}

// hasTsPattern reports whether the file ever had a non-empty pattern.
func (f *writerFile) hasTsPattern() bool {
	for _, c := range f.tsPatterns {
		if !c.pattern.IsEmpty() {
			return true
		}
	}
	return false
}

// appendToSegment patches the dictionary slots with the segment component,
// appends the file's three columns to the segment's stream, records the
// per-file positions, and releases the column memory.
func (f *writerFile) appendToSegment(seg *Segment) error {
	if f.state != stateOpen {
		return fmt.Errorf("%w: file %s already appended", types.ErrUnsupported, f.id)
	}

	for _, ix := range f.dictSlotIxs {
		id, _ := codec.DecodeDictVar(f.variables[ix])
		f.variables[ix] = codec.EncodeDictVar(id, seg.ID())
	}

	tsPos, err := seg.Append(epochtimesToBytes(f.timestamps))
	if err != nil {
		return err
	}
	logtypePos, err := seg.Append(logtypeIDsToBytes(f.logtypes))
	if err != nil {
		return err
	}
	varPos, err := seg.Append(encodedVarsToBytes(f.variables))
	if err != nil {
		return err
	}

	f.segmentID = seg.ID()
	f.segmentTsPos = tsPos
	f.segmentLogtypePos = logtypePos
	f.segmentVarPos = varPos
	f.state = stateInUncommittedSegment
	f.metadataClean = false

	f.timestamps = nil
	f.logtypes = nil
	f.variables = nil
	f.dictSlotIxs = nil
	return nil
}

func (f *writerFile) markInCommittedSegment() {
	f.state = stateInCommittedSegment
}

// distinctVarIDs returns the file's referenced variable-dictionary IDs.
func (f *writerFile) distinctVarIDs() []types.VarID {
	ids := make([]types.VarID, 0, len(f.varIDs))
	for id := range f.varIDs {
		ids = append(ids, id)
	}
	return ids
}

// encodedTsPatterns serializes the pattern changes as newline-separated
// "message_ix:num_spaces_before_ts:pattern_format" records.
func (f *writerFile) encodedTsPatterns() string {
	var b strings.Builder
	for _, c := range f.tsPatterns {
		b.WriteString(strconv.FormatUint(c.msgIx, 10))
		b.WriteByte(':')
		b.WriteString(c.pattern.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// fileEntry builds the persisted metadata row.
func (f *writerFile) fileEntry() meta.FileEntry {
	return meta.FileEntry{
		ID:                   f.id.String(),
		OrigFileID:           f.origFileID.String(),
		Path:                 f.path,
		GroupID:              f.groupID,
		SplitIx:              f.splitIx,
		BeginTs:              f.beginTs,
		EndTs:                f.endTs,
		NumMessages:          f.numMessages,
		NumUncompressedBytes: f.numUncompressedBytes,
		NumVariables:         f.numVariables,
		SegmentID:            f.segmentID,
		SegmentTsPos:         f.segmentTsPos,
		SegmentLogtypePos:    f.segmentLogtypePos,
		SegmentVarPos:        f.segmentVarPos,
		EncodedTsPatterns:    f.encodedTsPatterns(),
	}
}

func epochtimesToBytes(ts []types.Epochtime) []byte {
	buf := make([]byte, 8*len(ts))
	for i, v := range ts {
		binary.BigEndian.PutUint64(buf[8*i:], uint64(v))
	}
	return buf
}

func logtypeIDsToBytes(ids []types.LogtypeID) []byte {
	buf := make([]byte, 8*len(ids))
	for i, v := range ids {
		binary.BigEndian.PutUint64(buf[8*i:], uint64(v))
	}
	return buf
}

func encodedVarsToBytes(vars []types.EncodedVariable) []byte {
	buf := make([]byte, 8*len(vars))
	for i, v := range vars {
		binary.BigEndian.PutUint64(buf[8*i:], uint64(v))
	}
	return buf
}
