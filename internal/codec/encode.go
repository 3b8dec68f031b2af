package codec

import (
	"strconv"

	"github.com/gftdcojp/logvault/internal/strutil"
	"github.com/gftdcojp/logvault/internal/types"
)

// Eight-byte encoding limits. Integers are stored directly when
// |v| < 2^54; larger values go through the dictionary. Floats pack
// (sign, digits, num_digits, decimal_pos) as below.
const (
	intCutoff = int64(1) << 54

	floatDigitsBits = 54
	floatMaxDigits  = 16
	maxDigitsValue  = (int64(1) << floatDigitsBits) - 1
)

// Dictionary slot layout: low 40 bits hold the variable ID, the high 24
// bits hold the segment component identifying where the entry lives. The
// component is zero while the owning file is still in memory and is
// patched when the file is appended to a segment.
const (
	dictVarIDBits = 40
	MaxVarID      = types.VarID(1)<<dictVarIDBits - 1

	segComponentMask = types.SegmentID(1)<<24 - 1
)

// TryEncodeInt encodes a token as an integer variable. The token must be a
// canonical base-10 integer (no leading zeros, no '+') with |v| < 2^54.
func TryEncodeInt(token string) (types.EncodedVariable, bool) {
	v, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, false
	}
	if v <= -intCutoff || v >= intCutoff {
		return 0, false
	}
	// Non-canonical representations ("007", "+5", "-0") must round-trip
	// exactly, so they take the dictionary path instead.
	if strconv.FormatInt(v, 10) != token {
		return 0, false
	}
	return types.EncodedVariable(v), true
}

// DecodeInt reproduces the original digit string of an integer variable.
func DecodeInt(ev types.EncodedVariable) string {
	return strconv.FormatInt(int64(ev), 10)
}

// floatProperties is the factored form of a decimal float token.
type floatProperties struct {
	negative   bool
	digits     int64 // the digit string as an integer, leading zeros kept
	numDigits  int   // 1..16
	decimalPos int   // digits after the decimal point, 1..16
}

func parseFloatProperties(token string, maxSignificand int64, maxDigits int) (floatProperties, bool) {
	var p floatProperties
	s := token
	if len(s) > 0 && s[0] == '-' {
		p.negative = true
		s = s[1:]
	}

	pointIx := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' {
			if pointIx >= 0 {
				return p, false
			}
			pointIx = i
			continue
		}
		if !strutil.IsDecimalDigit(c) {
			return p, false
		}
	}
	// Exactly one point with at least one digit after it
	if pointIx < 0 || pointIx == len(s)-1 {
		return p, false
	}

	p.numDigits = len(s) - 1
	p.decimalPos = len(s) - 1 - pointIx
	if p.numDigits < 1 || p.numDigits > maxDigits || p.decimalPos > maxDigits {
		return p, false
	}

	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			continue
		}
		p.digits = p.digits*10 + int64(s[i]-'0')
		if p.digits > maxSignificand {
			return p, false
		}
	}
	return p, true
}

func (p floatProperties) format() string {
	digits := strconv.FormatInt(p.digits, 10)
	for len(digits) < p.numDigits {
		digits = "0" + digits
	}
	pointIx := len(digits) - p.decimalPos
	out := digits[:pointIx] + "." + digits[pointIx:]
	if p.negative {
		out = "-" + out
	}
	return out
}

// TryEncodeFloat encodes a token as a float variable. The token must be a
// plain decimal with exactly one point, at least one digit after it, and
// at most 16 digits overall. The original digit string, including trailing
// zeros, is recoverable exactly.
func TryEncodeFloat(token string) (types.EncodedVariable, bool) {
	p, ok := parseFloatProperties(token, maxDigitsValue, floatMaxDigits)
	if !ok {
		return 0, false
	}
	var ev uint64
	ev = uint64(p.decimalPos-1) & 0xF
	ev |= (uint64(p.numDigits-1) & 0xF) << 4
	ev |= uint64(p.digits) << 8
	if p.negative {
		ev |= uint64(1) << 63
	}
	return types.EncodedVariable(ev), true
}

// DecodeFloat reproduces the original digit string of a float variable.
func DecodeFloat(ev types.EncodedVariable) string {
	u := uint64(ev)
	p := floatProperties{
		negative:   u>>63 != 0,
		digits:     int64((u >> 8) & uint64(maxDigitsValue)),
		numDigits:  int(u>>4&0xF) + 1,
		decimalPos: int(u&0xF) + 1,
	}
	return p.format()
}

// EncodeDictVar packs a variable-dictionary ID and the segment component
// that identifies where the entry lives.
func EncodeDictVar(id types.VarID, segment types.SegmentID) types.EncodedVariable {
	return types.EncodedVariable(uint64(id) | uint64(segment&segComponentMask)<<dictVarIDBits)
}

// DecodeDictVar unpacks a dictionary slot.
func DecodeDictVar(ev types.EncodedVariable) (types.VarID, types.SegmentID) {
	u := uint64(ev)
	return types.VarID(u & uint64(MaxVarID)), types.SegmentID(u >> dictVarIDBits)
}

// Four-byte encoding limits for IR streams. Integers must fit int32;
// floats pack (sign 1, digits 25, num_digits 3, decimal_pos 3) and carry
// at most eight digits.
const (
	fourByteFloatDigitsBits = 25
	fourByteFloatMaxDigits  = 8
	fourByteMaxDigitsValue  = (int64(1) << fourByteFloatDigitsBits) - 1
)

// TryEncodeIntFourByte is the four-byte analogue of TryEncodeInt.
func TryEncodeIntFourByte(token string) (types.FourByteEncodedVariable, bool) {
	v, err := strconv.ParseInt(token, 10, 32)
	if err != nil {
		return 0, false
	}
	if strconv.FormatInt(v, 10) != token {
		return 0, false
	}
	return types.FourByteEncodedVariable(v), true
}

// DecodeIntFourByte reproduces the digit string of a four-byte integer.
func DecodeIntFourByte(ev types.FourByteEncodedVariable) string {
	return strconv.FormatInt(int64(ev), 10)
}

// TryEncodeFloatFourByte is the four-byte analogue of TryEncodeFloat.
func TryEncodeFloatFourByte(token string) (types.FourByteEncodedVariable, bool) {
	p, ok := parseFloatProperties(token, fourByteMaxDigitsValue, fourByteFloatMaxDigits)
	if !ok {
		return 0, false
	}
	var ev uint32
	ev = uint32(p.decimalPos-1) & 0x7
	ev |= (uint32(p.numDigits-1) & 0x7) << 3
	ev |= uint32(p.digits) << 6
	if p.negative {
		ev |= uint32(1) << 31
	}
	return types.FourByteEncodedVariable(ev), true
}

// DecodeFloatFourByte reproduces the digit string of a four-byte float.
func DecodeFloatFourByte(ev types.FourByteEncodedVariable) string {
	u := uint32(ev)
	p := floatProperties{
		negative:   u>>31 != 0,
		digits:     int64(u >> 6 & uint32(fourByteMaxDigitsValue)),
		numDigits:  int(u>>3&0x7) + 1,
		decimalPos: int(u&0x7) + 1,
	}
	return p.format()
}

// ConvertFourByteFloatToEightByte re-encodes a four-byte float variable in
// the eight-byte layout, preserving the digit string.
func ConvertFourByteFloatToEightByte(ev types.FourByteEncodedVariable) types.EncodedVariable {
	out, _ := TryEncodeFloat(DecodeFloatFourByte(ev))
	return out
}
