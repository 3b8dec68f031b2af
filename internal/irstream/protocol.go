// Package irstream implements the intermediate-representation codec used
// to ship pre-encoded log streams from remote producers into the archive.
//
// A stream opens with a four-byte magic number selecting the eight-byte or
// four-byte variable encoding, followed by a JSON metadata preamble and a
// sequence of tagged events, and ends with the end-of-stream tag. Within
// an event the variable tokens come first (dictionary literals and encoded
// variables, in message order), then the logtype, then the timestamp.
package irstream

// EncodingType selects the width of encoded variables in a stream.
type EncodingType int

const (
	EncodingEightByte EncodingType = iota
	EncodingFourByte
)

const MagicNumberLength = 4

var (
	magicEightByte = [MagicNumberLength]byte{0xFD, 0x2F, 0xB5, 0x28}
	magicFourByte  = [MagicNumberLength]byte{0xFD, 0x2F, 0xB5, 0x29}
)

// Tag bytes.
const (
	TagEndOfStream byte = 0x00

	// Preamble
	TagMetadataJSON      byte = 0x01
	TagMetadataLenUByte  byte = 0x11
	TagMetadataLenUShort byte = 0x12

	// Dictionary-variable literals, by length width
	TagDictVarLenUByte  byte = 0x41
	TagDictVarLenUShort byte = 0x42
	TagDictVarLenInt    byte = 0x43

	// Encoded variables, width matching the stream variant
	TagVarFourByte  byte = 0x18
	TagVarEightByte byte = 0x19

	// Logtype strings, by length width
	TagLogtypeLenUByte  byte = 0x21
	TagLogtypeLenUShort byte = 0x22
	TagLogtypeLenInt    byte = 0x23

	// Timestamps: absolute for the eight-byte variant, signed delta from
	// the previous timestamp for the four-byte variant
	TagTimestamp       byte = 0x30
	TagTimestampDelta1 byte = 0x31
	TagTimestampDelta2 byte = 0x32
	TagTimestampDelta4 byte = 0x33
	TagTimestampDelta8 byte = 0x34
)

// Metadata keys carried in the JSON preamble.
const (
	MetadataVersionKey                = "VERSION"
	MetadataVersionValue              = "0.0.1"
	MetadataTimestampPatternKey       = "TIMESTAMP_PATTERN"
	MetadataTimestampPatternSyntaxKey = "TIMESTAMP_PATTERN_SYNTAX"
	MetadataTimeZoneIDKey             = "TZ_ID"
	MetadataReferenceTimestampKey     = "REFERENCE_TIMESTAMP"
)

// TimestampInfo is the timestamp handling metadata from the preamble.
type TimestampInfo struct {
	TimestampPattern       string
	TimestampPatternSyntax string
	TimeZoneID             string
}
