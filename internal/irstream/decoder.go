package irstream

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gftdcojp/logvault/internal/codec"
	"github.com/gftdcojp/logvault/internal/types"
)

// Decoder consumes an IR stream from a caller-supplied buffer. The cursor
// advances only on fully successful reads, so a caller that gets
// ErrIncompleteIR can feed more bytes and retry.
type Decoder struct {
	buf    []byte
	cursor int

	encoding    EncodingType
	gotEncoding bool
	gotPreamble bool

	// running reference timestamp for the four-byte variant
	refTs types.Epochtime
}

// NewDecoder creates an empty decoder; supply bytes with Feed.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends stream bytes for the decoder to consume.
func (d *Decoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
}

// cursorView is a tentative read position; callers commit it only after a
// complete read.
type cursorView struct {
	buf []byte
	pos int
}

func (c *cursorView) readByte() (byte, error) {
	if c.pos+1 > len(c.buf) {
		return 0, types.ErrIncompleteIR
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *cursorView) readBytes(n int) ([]byte, error) {
	if c.pos+n > len(c.buf) {
		return nil, types.ErrIncompleteIR
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursorView) readUint16() (uint16, error) {
	b, err := c.readBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (c *cursorView) readUint32() (uint32, error) {
	b, err := c.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *cursorView) readUint64() (uint64, error) {
	b, err := c.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// DecodeEncodingType reads the magic number. Returns ErrIncompleteIR when
// fewer than four bytes are buffered and ErrCorruptedIR when the bytes
// match no known magic.
func (d *Decoder) DecodeEncodingType() (EncodingType, error) {
	c := cursorView{d.buf, d.cursor}
	magic, err := c.readBytes(MagicNumberLength)
	if err != nil {
		return 0, err
	}
	switch {
	case bytes.Equal(magic, magicEightByte[:]):
		d.encoding = EncodingEightByte
	case bytes.Equal(magic, magicFourByte[:]):
		d.encoding = EncodingFourByte
	default:
		return 0, fmt.Errorf("%w: unknown magic number %x", types.ErrCorruptedIR, magic)
	}
	d.cursor = c.pos
	d.gotEncoding = true
	return d.encoding, nil
}

// DecodePreamble parses the JSON metadata preamble. For the four-byte
// variant the reference timestamp is also returned.
func (d *Decoder) DecodePreamble() (TimestampInfo, types.Epochtime, error) {
	var info TimestampInfo
	if !d.gotEncoding {
		return info, 0, fmt.Errorf("%w: preamble before encoding type", types.ErrNotReady)
	}

	c := cursorView{d.buf, d.cursor}
	tag, err := c.readByte()
	if err != nil {
		return info, 0, err
	}
	if tag != TagMetadataJSON {
		return info, 0, fmt.Errorf("%w: unexpected metadata tag %#x", types.ErrCorruptedMetadata, tag)
	}

	lenTag, err := c.readByte()
	if err != nil {
		return info, 0, err
	}
	var length int
	switch lenTag {
	case TagMetadataLenUByte:
		b, err := c.readByte()
		if err != nil {
			return info, 0, err
		}
		length = int(b)
	case TagMetadataLenUShort:
		v, err := c.readUint16()
		if err != nil {
			return info, 0, err
		}
		length = int(v)
	default:
		return info, 0, fmt.Errorf("%w: unexpected metadata length tag %#x", types.ErrCorruptedMetadata, lenTag)
	}

	payload, err := c.readBytes(length)
	if err != nil {
		return info, 0, err
	}
	var meta map[string]string
	if err := json.Unmarshal(payload, &meta); err != nil {
		return info, 0, fmt.Errorf("%w: %v", types.ErrCorruptedMetadata, err)
	}
	if meta[MetadataVersionKey] != MetadataVersionValue {
		return info, 0, fmt.Errorf("%w: %q", types.ErrUnsupportedVersion, meta[MetadataVersionKey])
	}
	info.TimestampPattern = meta[MetadataTimestampPatternKey]
	info.TimestampPatternSyntax = meta[MetadataTimestampPatternSyntaxKey]
	info.TimeZoneID = meta[MetadataTimeZoneIDKey]

	var refTs types.Epochtime
	if d.encoding == EncodingFourByte {
		raw, ok := meta[MetadataReferenceTimestampKey]
		if !ok {
			return info, 0, fmt.Errorf("%w: missing reference timestamp", types.ErrCorruptedMetadata)
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return info, 0, fmt.Errorf("%w: reference timestamp %q", types.ErrCorruptedMetadata, raw)
		}
		refTs = types.Epochtime(v)
		d.refTs = refTs
	}

	d.cursor = c.pos
	d.gotPreamble = true
	return info, refTs, nil
}

// DecodeNextMessage decodes the next event and reconstructs its message
// text. Returns ErrEndOfFile at the end-of-stream tag and ErrIncompleteIR,
// without advancing, when more bytes are needed.
func (d *Decoder) DecodeNextMessage() (string, types.Epochtime, error) {
	if !d.gotPreamble {
		return "", 0, fmt.Errorf("%w: events before preamble", types.ErrNotReady)
	}

	c := cursorView{d.buf, d.cursor}

	var dictVars []string
	var eightVars []types.EncodedVariable
	var fourVars []types.FourByteEncodedVariable
	var logtype []byte

	// Variable tokens, then logtype
	for logtype == nil {
		tag, err := c.readByte()
		if err != nil {
			return "", 0, err
		}
		switch tag {
		case TagEndOfStream:
			d.cursor = c.pos
			return "", 0, types.ErrEndOfFile
		case TagDictVarLenUByte, TagDictVarLenUShort, TagDictVarLenInt:
			v, err := readLengthPrefixed(&c, tag, TagDictVarLenUByte)
			if err != nil {
				return "", 0, err
			}
			dictVars = append(dictVars, string(v))
		case TagVarEightByte:
			if d.encoding != EncodingEightByte {
				return "", 0, fmt.Errorf("%w: eight-byte variable in four-byte stream", types.ErrCorruptedIR)
			}
			v, err := c.readUint64()
			if err != nil {
				return "", 0, err
			}
			eightVars = append(eightVars, types.EncodedVariable(v))
		case TagVarFourByte:
			if d.encoding != EncodingFourByte {
				return "", 0, fmt.Errorf("%w: four-byte variable in eight-byte stream", types.ErrCorruptedIR)
			}
			v, err := c.readUint32()
			if err != nil {
				return "", 0, err
			}
			fourVars = append(fourVars, types.FourByteEncodedVariable(v))
		case TagLogtypeLenUByte, TagLogtypeLenUShort, TagLogtypeLenInt:
			v, err := readLengthPrefixed(&c, tag, TagLogtypeLenUByte)
			if err != nil {
				return "", 0, err
			}
			logtype = make([]byte, len(v))
			copy(logtype, v)
		default:
			return "", 0, fmt.Errorf("%w: unexpected tag %#x", types.ErrCorruptedIR, tag)
		}
	}

	ts, err := d.readTimestamp(&c)
	if err != nil {
		return "", 0, err
	}

	text, err := d.buildMessage(logtype, eightVars, fourVars, dictVars)
	if err != nil {
		return "", 0, err
	}

	d.cursor = c.pos
	if d.encoding == EncodingFourByte {
		d.refTs = ts
	}
	return text, ts, nil
}

// readLengthPrefixed reads a value whose length width is tag - base:
// base is the ubyte form, base+1 ushort, base+2 int.
func readLengthPrefixed(c *cursorView, tag, base byte) ([]byte, error) {
	var length int
	switch tag {
	case base:
		b, err := c.readByte()
		if err != nil {
			return nil, err
		}
		length = int(b)
	case base + 1:
		v, err := c.readUint16()
		if err != nil {
			return nil, err
		}
		length = int(v)
	case base + 2:
		v, err := c.readUint32()
		if err != nil {
			return nil, err
		}
		if v > 0x7FFFFFFF {
			return nil, fmt.Errorf("%w: length %d overflows", types.ErrCorruptedIR, v)
		}
		length = int(v)
	}
	return c.readBytes(length)
}

func (d *Decoder) readTimestamp(c *cursorView) (types.Epochtime, error) {
	tag, err := c.readByte()
	if err != nil {
		return 0, err
	}
	if d.encoding == EncodingEightByte {
		if tag != TagTimestamp {
			return 0, fmt.Errorf("%w: expected timestamp tag, got %#x", types.ErrCorruptedIR, tag)
		}
		v, err := c.readUint64()
		if err != nil {
			return 0, err
		}
		return types.Epochtime(v), nil
	}

	var delta int64
	switch tag {
	case TagTimestampDelta1:
		b, err := c.readByte()
		if err != nil {
			return 0, err
		}
		delta = int64(int8(b))
	case TagTimestampDelta2:
		v, err := c.readUint16()
		if err != nil {
			return 0, err
		}
		delta = int64(int16(v))
	case TagTimestampDelta4:
		v, err := c.readUint32()
		if err != nil {
			return 0, err
		}
		delta = int64(int32(v))
	case TagTimestampDelta8:
		v, err := c.readUint64()
		if err != nil {
			return 0, err
		}
		delta = int64(v)
	default:
		return 0, fmt.Errorf("%w: expected timestamp delta tag, got %#x", types.ErrCorruptedIR, tag)
	}
	return types.Epochtime(int64(d.refTs) + delta), nil
}

func (d *Decoder) buildMessage(logtype []byte, eightVars []types.EncodedVariable,
	fourVars []types.FourByteEncodedVariable, dictVars []string) (string, error) {

	out := make([]byte, 0, len(logtype))
	encIx, dictIx := 0, 0
	for i := 0; i < len(logtype); i++ {
		ch := logtype[i]
		switch ch {
		case codec.PlaceholderEscape:
			if i == len(logtype)-1 {
				return "", fmt.Errorf("%w: dangling escape in logtype", types.ErrDecode)
			}
			i++
			out = append(out, logtype[i])
		case codec.PlaceholderInteger:
			s, err := d.decodeNumeric(eightVars, fourVars, encIx, codec.DecodeInt, codec.DecodeIntFourByte)
			if err != nil {
				return "", err
			}
			out = append(out, s...)
			encIx++
		case codec.PlaceholderFloat:
			s, err := d.decodeNumeric(eightVars, fourVars, encIx, codec.DecodeFloat, codec.DecodeFloatFourByte)
			if err != nil {
				return "", err
			}
			out = append(out, s...)
			encIx++
		case codec.PlaceholderDictionary:
			if dictIx >= len(dictVars) {
				return "", fmt.Errorf("%w: missing dictionary variable", types.ErrDecode)
			}
			out = append(out, dictVars[dictIx]...)
			dictIx++
		default:
			out = append(out, ch)
		}
	}
	return string(out), nil
}

func (d *Decoder) decodeNumeric(eightVars []types.EncodedVariable,
	fourVars []types.FourByteEncodedVariable, ix int,
	eight func(types.EncodedVariable) string,
	four func(types.FourByteEncodedVariable) string) (string, error) {

	if d.encoding == EncodingEightByte {
		if ix >= len(eightVars) {
			return "", fmt.Errorf("%w: missing encoded variable", types.ErrDecode)
		}
		return eight(eightVars[ix]), nil
	}
	if ix >= len(fourVars) {
		return "", fmt.Errorf("%w: missing encoded variable", types.ErrDecode)
	}
	return four(fourVars[ix]), nil
}
