package types

// LogtypeID identifies an entry in the logtype dictionary.
type LogtypeID uint64

// VarID identifies an entry in the variable dictionary.
type VarID uint64

// SegmentID identifies a sealed segment within an archive.
type SegmentID uint64

// GroupID is an opaque tag attached to a file at ingestion. The core treats
// it as an index and never interprets it.
type GroupID int64

// Epochtime is a message timestamp in milliseconds since the Unix epoch.
type Epochtime int64

const (
	EpochtimeMin Epochtime = -9223372036854775808
	EpochtimeMax Epochtime = 9223372036854775807
)

// EncodedVariable is the fixed-width (eight-byte) encoded form of a variable.
// The placeholder byte in the owning logtype determines how it is decoded.
type EncodedVariable int64

// FourByteEncodedVariable is the four-byte encoded form used by IR streams.
type FourByteEncodedVariable int32
