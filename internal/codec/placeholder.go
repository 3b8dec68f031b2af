// Package codec implements the reversible transform between a raw log
// message and its (logtype, encoded variables, dictionary variable IDs)
// factored form.
package codec

// Variable placeholders are reserved bytes that mark variable positions
// inside a logtype string. Literal occurrences in static text are prefixed
// with the escape byte.
const (
	PlaceholderInteger    byte = 0x11
	PlaceholderDictionary byte = 0x12
	PlaceholderFloat      byte = 0x13
	PlaceholderEscape     byte = 0x5C
)

// IsPlaceholder reports whether c is one of the reserved placeholder bytes.
func IsPlaceholder(c byte) bool {
	return PlaceholderInteger == c || PlaceholderDictionary == c || PlaceholderFloat == c
}

// AppendConstant appends static text to a logtype, escaping any literal
// placeholder or escape bytes.
func AppendConstant(logtype []byte, constant string) []byte {
	for i := 0; i < len(constant); i++ {
		c := constant[i]
		if IsPlaceholder(c) || PlaceholderEscape == c {
			logtype = append(logtype, PlaceholderEscape)
		}
		logtype = append(logtype, c)
	}
	return logtype
}

// PlaceholderPositions returns the byte offsets of the unescaped variable
// placeholders in a logtype.
func PlaceholderPositions(logtype []byte) []uint32 {
	var positions []uint32
	for i := 0; i < len(logtype); i++ {
		c := logtype[i]
		if PlaceholderEscape == c {
			i++
			continue
		}
		if IsPlaceholder(c) {
			positions = append(positions, uint32(i))
		}
	}
	return positions
}
