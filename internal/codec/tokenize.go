package codec

import "github.com/gftdcojp/logvault/internal/strutil"

// NextVar finds the bounds of the next variable token in text, starting the
// scan at the end of the previous token. A token is a maximal run between
// delimiters; an escaped delimiter belongs to the token. The token is a
// variable iff it contains a decimal digit, could be a multi-digit hex
// value, or directly follows '=' and contains a letter.
//
// beginPos and endPos carry the bounds of the previous variable; on return
// they hold the bounds of the next one. Returns false once the text is
// exhausted.
func NextVar(text string, beginPos, endPos int) (int, int, bool) {
	length := len(text)
	if endPos >= length {
		return beginPos, endPos, false
	}

	isVar := false
	for !isVar && beginPos < length {
		beginPos = endPos

		// Find the start of the next token
		isEscaped := false
		for ; beginPos < length; beginPos++ {
			c := text[beginPos]
			if isEscaped {
				isEscaped = false
				if !strutil.IsDelim(c) {
					// Escaped non-delimiter starts a token; keep the escape
					beginPos--
					break
				}
			} else if '\\' == c {
				isEscaped = true
			} else if !strutil.IsDelim(c) {
				break
			}
		}

		containsDigit := false
		containsAlphabet := false

		// Find the end of the token
		isEscaped = false
		endPos = beginPos
		for ; endPos < length; endPos++ {
			c := text[endPos]
			if isEscaped {
				isEscaped = false
				if strutil.IsDelim(c) {
					// Escaped delimiter stays in the token
					endPos--
					break
				}
			} else if '\\' == c {
				isEscaped = true
			} else if strutil.IsDelim(c) {
				break
			}
			if strutil.IsDecimalDigit(c) {
				containsDigit = true
			} else if strutil.IsAlphabet(c) {
				containsAlphabet = true
			}
		}

		if containsDigit || strutil.CouldBeMultiDigitHexValue(text[beginPos:endPos]) {
			isVar = true
		} else if beginPos > 0 && '=' == text[beginPos-1] && containsAlphabet {
			isVar = true
		}
	}

	return beginPos, endPos, beginPos != length
}
