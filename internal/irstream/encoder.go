package irstream

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gftdcojp/logvault/internal/codec"
	"github.com/gftdcojp/logvault/internal/types"
)

// Encoder serializes log events into an IR stream held in memory.
type Encoder struct {
	buf       []byte
	encoding  EncodingType
	prevTs    types.Epochtime
	preambled bool
	ended     bool
}

// NewEightByteEncoder starts an eight-byte-encoded stream with the given
// timestamp metadata.
func NewEightByteEncoder(info TimestampInfo) (*Encoder, error) {
	e := &Encoder{encoding: EncodingEightByte}
	e.buf = append(e.buf, magicEightByte[:]...)
	if err := e.writePreamble(info, nil); err != nil {
		return nil, err
	}
	return e, nil
}

// NewFourByteEncoder starts a four-byte-encoded stream. referenceTs is the
// base epoch value the first event's delta is taken against.
func NewFourByteEncoder(info TimestampInfo, referenceTs types.Epochtime) (*Encoder, error) {
	e := &Encoder{encoding: EncodingFourByte, prevTs: referenceTs}
	e.buf = append(e.buf, magicFourByte[:]...)
	if err := e.writePreamble(info, &referenceTs); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Encoder) writePreamble(info TimestampInfo, referenceTs *types.Epochtime) error {
	meta := map[string]string{
		MetadataVersionKey:                MetadataVersionValue,
		MetadataTimestampPatternKey:       info.TimestampPattern,
		MetadataTimestampPatternSyntaxKey: info.TimestampPatternSyntax,
		MetadataTimeZoneIDKey:             info.TimeZoneID,
	}
	if referenceTs != nil {
		meta[MetadataReferenceTimestampKey] = strconv.FormatInt(int64(*referenceTs), 10)
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling IR metadata: %w", err)
	}

	e.buf = append(e.buf, TagMetadataJSON)
	switch {
	case len(payload) <= 0xFF:
		e.buf = append(e.buf, TagMetadataLenUByte, byte(len(payload)))
	case len(payload) <= 0xFFFF:
		e.buf = append(e.buf, TagMetadataLenUShort)
		e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(len(payload)))
	default:
		return fmt.Errorf("%w: IR metadata too large (%d bytes)", types.ErrBadParam, len(payload))
	}
	e.buf = append(e.buf, payload...)
	e.preambled = true
	return nil
}

// EncodeMessage appends one log event. text is the message with the
// timestamp already stripped.
func (e *Encoder) EncodeMessage(ts types.Epochtime, text string) error {
	if e.ended {
		return fmt.Errorf("%w: stream already ended", types.ErrNotReady)
	}

	logtype := make([]byte, 0, len(text))
	lastEnd := 0
	beginPos, endPos := 0, 0
	var found bool
	for {
		beginPos, endPos, found = codec.NextVar(text, beginPos, endPos)
		if !found {
			break
		}
		logtype = codec.AppendConstant(logtype, text[lastEnd:beginPos])
		lastEnd = endPos
		token := text[beginPos:endPos]

		if e.encoding == EncodingEightByte {
			if ev, ok := codec.TryEncodeInt(token); ok {
				logtype = append(logtype, codec.PlaceholderInteger)
				e.writeEightByteVar(ev)
			} else if ev, ok := codec.TryEncodeFloat(token); ok {
				logtype = append(logtype, codec.PlaceholderFloat)
				e.writeEightByteVar(ev)
			} else {
				logtype = append(logtype, codec.PlaceholderDictionary)
				if err := e.writeDictVar(token); err != nil {
					return err
				}
			}
		} else {
			if ev, ok := codec.TryEncodeIntFourByte(token); ok {
				logtype = append(logtype, codec.PlaceholderInteger)
				e.writeFourByteVar(ev)
			} else if ev, ok := codec.TryEncodeFloatFourByte(token); ok {
				logtype = append(logtype, codec.PlaceholderFloat)
				e.writeFourByteVar(ev)
			} else {
				logtype = append(logtype, codec.PlaceholderDictionary)
				if err := e.writeDictVar(token); err != nil {
					return err
				}
			}
		}
	}
	logtype = codec.AppendConstant(logtype, text[lastEnd:])

	if err := e.writeLogtype(logtype); err != nil {
		return err
	}
	e.writeTimestamp(ts)
	return nil
}

func (e *Encoder) writeEightByteVar(ev types.EncodedVariable) {
	e.buf = append(e.buf, TagVarEightByte)
	e.buf = binary.BigEndian.AppendUint64(e.buf, uint64(ev))
}

func (e *Encoder) writeFourByteVar(ev types.FourByteEncodedVariable) {
	e.buf = append(e.buf, TagVarFourByte)
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(ev))
}

func (e *Encoder) writeDictVar(token string) error {
	switch {
	case len(token) <= 0xFF:
		e.buf = append(e.buf, TagDictVarLenUByte, byte(len(token)))
	case len(token) <= 0xFFFF:
		e.buf = append(e.buf, TagDictVarLenUShort)
		e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(len(token)))
	case len(token) <= 0x7FFFFFFF:
		e.buf = append(e.buf, TagDictVarLenInt)
		e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(len(token)))
	default:
		return fmt.Errorf("%w: dictionary variable too long", types.ErrBadParam)
	}
	e.buf = append(e.buf, token...)
	return nil
}

func (e *Encoder) writeLogtype(logtype []byte) error {
	switch {
	case len(logtype) <= 0xFF:
		e.buf = append(e.buf, TagLogtypeLenUByte, byte(len(logtype)))
	case len(logtype) <= 0xFFFF:
		e.buf = append(e.buf, TagLogtypeLenUShort)
		e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(len(logtype)))
	case len(logtype) <= 0x7FFFFFFF:
		e.buf = append(e.buf, TagLogtypeLenInt)
		e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(len(logtype)))
	default:
		return fmt.Errorf("%w: logtype too long", types.ErrBadParam)
	}
	e.buf = append(e.buf, logtype...)
	return nil
}

func (e *Encoder) writeTimestamp(ts types.Epochtime) {
	if e.encoding == EncodingEightByte {
		e.buf = append(e.buf, TagTimestamp)
		e.buf = binary.BigEndian.AppendUint64(e.buf, uint64(ts))
		return
	}
	delta := int64(ts) - int64(e.prevTs)
	e.prevTs = ts
	switch {
	case delta >= -128 && delta <= 127:
		e.buf = append(e.buf, TagTimestampDelta1, byte(int8(delta)))
	case delta >= -32768 && delta <= 32767:
		e.buf = append(e.buf, TagTimestampDelta2)
		e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(int16(delta)))
	case delta >= -2147483648 && delta <= 2147483647:
		e.buf = append(e.buf, TagTimestampDelta4)
		e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(int32(delta)))
	default:
		e.buf = append(e.buf, TagTimestampDelta8)
		e.buf = binary.BigEndian.AppendUint64(e.buf, uint64(delta))
	}
}

// EncodeEnd appends the end-of-stream tag.
func (e *Encoder) EncodeEnd() {
	if !e.ended {
		e.buf = append(e.buf, TagEndOfStream)
		e.ended = true
	}
}

// Bytes returns the stream encoded so far.
func (e *Encoder) Bytes() []byte {
	return e.buf
}
